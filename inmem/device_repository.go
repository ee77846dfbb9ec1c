package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// DeviceRepository is an in-memory domain.DeviceRepository. Claim performs the
// check-and-insert under one lock, matching the atomicity the mongo unique
// index provides.
type DeviceRepository struct {
	mu      sync.Mutex
	devices map[string]*domain.ConnectedDevice
}

// NewDeviceRepository creates an empty in-memory claim registry.
func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{devices: make(map[string]*domain.ConnectedDevice)}
}

func deviceKey(provider, deviceID string) string {
	return provider + "/" + deviceID
}

func (r *DeviceRepository) ListByUser(_ context.Context, userID, provider string) ([]*domain.ConnectedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var devices []*domain.ConnectedDevice
	for _, d := range r.devices {
		if d.UserID == userID && d.Provider == provider {
			clone := *d
			devices = append(devices, &clone)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ClaimedAt.Before(devices[j].ClaimedAt)
	})
	return devices, nil
}

func (r *DeviceRepository) FindClaims(_ context.Context, provider string, deviceIDs []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claims := make(map[string]string)
	for _, id := range deviceIDs {
		if d, ok := r.devices[deviceKey(provider, id)]; ok {
			claims[id] = d.UserID
		}
	}
	return claims, nil
}

func (r *DeviceRepository) Claim(_ context.Context, device *domain.ConnectedDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey(device.Provider, device.DeviceID)
	if _, taken := r.devices[key]; taken {
		return herrors.ErrAlreadyClaimed
	}
	clone := *device
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.ClaimedAt.IsZero() {
		clone.ClaimedAt = time.Now().UTC()
	}
	r.devices[key] = &clone
	*device = clone
	return nil
}

func (r *DeviceRepository) Release(_ context.Context, userID, provider, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey(provider, deviceID)
	existing, ok := r.devices[key]
	if !ok {
		return nil
	}
	if existing.UserID != userID {
		return herrors.ErrNotOwner
	}
	delete(r.devices, key)
	return nil
}
