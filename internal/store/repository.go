// Package store persists binds and serves them to the editor as rendered
// markup.
package store

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/bindpad/api/schemas"
)

// ErrNotFound is returned by Get when no bind has the id.
var ErrNotFound = errors.New("bind not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository is the persistence port of the bind store. List returns binds
// in creation order; Put keeps the original position of an existing id.
type Repository interface {
	List(ctx context.Context) ([]schemas.Bind, error)
	Get(ctx context.Context, id string) (schemas.Bind, error)
	Put(ctx context.Context, bind schemas.Bind) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// encodeAction serializes an action to its wire JSON for storage.
func encodeAction(a schemas.Action) (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode action: %w", err)
	}
	return string(raw), nil
}

func decodeAction(raw string) (schemas.Action, error) {
	var a schemas.Action
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return schemas.Action{}, fmt.Errorf("failed to decode action %q: %w", raw, err)
	}
	return a, nil
}
