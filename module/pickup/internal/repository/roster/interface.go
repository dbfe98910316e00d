package roster

import (
	"context"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

// Source lists the students visible to a viewer.
type Source interface {
	Students(ctx context.Context, viewer domain.Viewer) ([]domain.Student, error)
}
