package repository

import (
	"context"

	"shellbox/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// RunRepository persists batch execution history. Runs are append-only;
// there is no update.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
	Delete(ctx context.Context, id string) error
}
