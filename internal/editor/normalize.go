package editor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/browser/form"
)

// Form field names of a bind editor.
const (
	FieldID     = "id"
	FieldCode   = "code"
	FieldAction = "action"
	FieldValue  = "value"
	FieldRepeat = "repeat"
)

var (
	// ErrMissingID means the snapshot had no usable bind id.
	ErrMissingID = errors.New("bind form has no id")
	// ErrMissingAction means no action radio was checked.
	ErrMissingAction = errors.New("bind form has no action selected")
	// ErrUnknownAction means the checked action is not a known kind.
	ErrUnknownAction = errors.New("bind form has an unknown action")
)

// Normalize turns a bind form snapshot into the update_bind request. The raw
// value field is folded into the action and never sent on its own.
func Normalize(snap form.Snapshot) (schemas.BindUpdate, error) {
	id, ok := snap.Text(FieldID)
	if !ok || strings.TrimSpace(id) == "" {
		return schemas.BindUpdate{}, ErrMissingID
	}

	name, ok := snap.Text(FieldAction)
	if !ok {
		return schemas.BindUpdate{}, ErrMissingAction
	}
	kind, err := schemas.ParseActionKind(name)
	if err != nil {
		return schemas.BindUpdate{}, fmt.Errorf("%w: %v", ErrUnknownAction, err)
	}

	raw, _ := snap.Text(FieldValue)
	update := schemas.BindUpdate{ID: id}
	switch kind {
	case schemas.ActionKeyboardPress:
		update.Action = schemas.KeyboardPress(SplitKeys(raw)...)
	case schemas.ActionBrowserOpen:
		update.Action = schemas.BrowserOpen(raw)
	default:
		update.Action = schemas.Simple(kind)
	}

	if code, ok := snap.Text(FieldCode); ok {
		update.Code = &code
	}
	if repeat, ok := snap.Bool(FieldRepeat); ok {
		update.Repeat = &repeat
	}
	return update, nil
}

// SplitKeys splits a comma separated key list, trimming each piece and
// dropping empty ones. Order and duplicates are kept.
func SplitKeys(raw string) []string {
	keys := []string{}
	for _, piece := range strings.Split(raw, ",") {
		if k := strings.TrimSpace(piece); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
