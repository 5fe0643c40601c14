package store

import (
	"context"

	"github.com/vertoapp/verto/pkg/models"
)

// Storage is the persistence boundary: the whole client collection is read
// and replaced as one unit. Save must either persist the full collection or
// fail without partial effect.
type Storage interface {
	Load(ctx context.Context) ([]*models.Cliente, error)
	Save(ctx context.Context, clientes []*models.Cliente) error

	Close() error
}
