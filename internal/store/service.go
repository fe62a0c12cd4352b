package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/render"
)

// Service answers editor requests from a Repository. Every answer that
// carries a bind carries its rendered markup.
type Service struct {
	repo Repository
	log  *zap.Logger

	// mu serializes read-modify-write cycles on the repository.
	mu sync.Mutex
}

// NewService wraps repo.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, log: logger.Named("store.service")}
}

// Binds returns the stored binds in display order.
func (s *Service) Binds(ctx context.Context) ([]schemas.Bind, error) {
	return s.repo.List(ctx)
}

// ListBinds renders every stored bind.
func (s *Service) ListBinds(ctx context.Context) ([]string, error) {
	binds, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return render.Binds(binds)
}

// AddBind stores a new default bind under a fresh id.
func (s *Service) AddBind(ctx context.Context) (string, error) {
	b := schemas.Bind{
		ID:     uuid.NewString(),
		Code:   schemas.DefaultBindCode,
		Action: schemas.Simple(schemas.DefaultBindAction),
	}

	s.mu.Lock()
	err := s.repo.Put(ctx, b)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.log.Info("Added bind", zap.String("bind_id", b.ID))
	return render.Bind(b)
}

// UpdateBind merges update into the stored bind. An unknown id is not saved
// but the merged bind is still rendered, so the editor always gets markup back.
func (s *Service) UpdateBind(ctx context.Context, update schemas.BindUpdate) (string, error) {
	if update.ID == "" {
		return "", fmt.Errorf("update has no bind id")
	}

	s.mu.Lock()
	current, err := s.repo.Get(ctx, update.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.mu.Unlock()
		return "", err
	}
	if !exists {
		current = schemas.Bind{ID: update.ID, Code: schemas.DefaultBindCode}
	}
	merged := update.Apply(current)
	if exists {
		err = s.repo.Put(ctx, merged)
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	if !exists {
		s.log.Warn("Update for unknown bind was not saved", zap.String("bind_id", update.ID))
	} else {
		s.log.Debug("Updated bind", zap.String("bind_id", merged.ID), zap.Stringer("action", merged.Action))
	}
	return render.Bind(merged)
}

// RemoveBind deletes the bind. Removing an unknown id succeeds.
func (s *Service) RemoveBind(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("Removed bind", zap.String("bind_id", id))
	return nil
}

// Match returns the binds triggered by code, in display order.
func (s *Service) Match(ctx context.Context, code string) ([]schemas.Bind, error) {
	binds, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []schemas.Bind
	for _, b := range binds {
		if b.Code == code {
			out = append(out, b)
		}
	}
	return out, nil
}

// Close releases the repository.
func (s *Service) Close() error {
	return s.repo.Close()
}
