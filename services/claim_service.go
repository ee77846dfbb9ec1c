package services

import (
	"context"

	"github.com/heliowatt/heliowatt/domain"
	"github.com/heliowatt/heliowatt/log"
)

// ClaimService is the device claim registry: it associates physical hardware
// with exactly one user account so two accounts can never harvest the same
// device.
type ClaimService struct {
	devices domain.DeviceRepository
	logger  log.Logger
}

// NewClaimService creates the claim registry service.
func NewClaimService(devices domain.DeviceRepository, logger log.Logger) *ClaimService {
	return &ClaimService{devices: devices, logger: logger}
}

// Annotate fills each descriptor's ClaimedBy from the registry so the device
// selection step can show which hardware is already owned.
func (s *ClaimService) Annotate(ctx context.Context, provider string, descriptors []domain.DeviceDescriptor) ([]domain.DeviceDescriptor, error) {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.DeviceID
	}
	claims, err := s.devices.FindClaims(ctx, provider, ids)
	if err != nil {
		return nil, err
	}
	for i := range descriptors {
		descriptors[i].ClaimedBy = claims[descriptors[i].DeviceID]
	}
	return descriptors, nil
}

// Claim atomically claims the device for the user. The storage layer's
// uniqueness constraint closes the race window between listing and claiming;
// losing that race returns ErrAlreadyClaimed, never a silent overwrite.
func (s *ClaimService) Claim(ctx context.Context, userID, provider, deviceID, name string, kind domain.DeviceKind, metadata map[string]string) (*domain.ConnectedDevice, error) {
	device := &domain.ConnectedDevice{
		Provider: provider,
		DeviceID: deviceID,
		UserID:   userID,
		Name:     name,
		Kind:     kind,
		Metadata: metadata,
	}
	if err := s.devices.Claim(ctx, device); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "device claimed", map[string]interface{}{
		"user_id":   userID,
		"provider":  provider,
		"device_id": deviceID,
		"kind":      string(kind),
	})
	return device, nil
}

// Release removes the user's claim. Releasing a device held by another
// account fails with ErrNotOwner.
func (s *ClaimService) Release(ctx context.Context, userID, provider, deviceID string) error {
	if err := s.devices.Release(ctx, userID, provider, deviceID); err != nil {
		return err
	}
	s.logger.Info(ctx, "device released", map[string]interface{}{
		"user_id":   userID,
		"provider":  provider,
		"device_id": deviceID,
	})
	return nil
}

// ListClaimed returns the user's claimed devices for a provider.
func (s *ClaimService) ListClaimed(ctx context.Context, userID, provider string) ([]*domain.ConnectedDevice, error) {
	return s.devices.ListByUser(ctx, userID, provider)
}
