package repositories

import (
	"context"

	"github.com/mnemosyne/server/domain/entities"
)

// DeviceRegistry enumerates capturable audio endpoints from the host
// audio server. Listing has no side effects.
type DeviceRegistry interface {
	ListDevices(ctx context.Context) ([]entities.Device, error)
}
