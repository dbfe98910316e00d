package location

import (
	"context"
	"errors"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

var ErrNotFound = errors.New("no location reported")

type Store interface {
	Save(ctx context.Context, loc *domain.DeviceLocation) error
	Latest(ctx context.Context, parentID string) (*domain.DeviceLocation, error)
}
