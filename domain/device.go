package domain

import "time"

// DeviceKind classifies the physical hardware behind a claim.
type DeviceKind string

const (
	DeviceKindVehicle DeviceKind = "vehicle"
	DeviceKindBattery DeviceKind = "battery"
	DeviceKindSolar   DeviceKind = "solar"
	DeviceKindCharger DeviceKind = "charger"
)

// ConnectedDevice is a hardware device claimed by exactly one user account.
// The (provider, device_id) pair is unique across the whole user base; a claim
// is never silently reassigned.
type ConnectedDevice struct {
	ID       string            `bson:"_id,omitempty" json:"id"`
	Provider string            `bson:"provider" json:"provider"`
	// DeviceID is the vendor-scoped identifier: a VIN, an energy site id,
	// a system id or a charger serial.
	DeviceID  string            `bson:"device_id" json:"device_id"`
	UserID    string            `bson:"user_id" json:"user_id"`
	Name      string            `bson:"name" json:"name"`
	Kind      DeviceKind        `bson:"kind" json:"kind"`
	Metadata  map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ClaimedAt time.Time         `bson:"claimed_at" json:"claimed_at"`
}

// DeviceDescriptor is one row of a provider's device listing, annotated with
// the current claim state so a selection UI can grey out taken hardware.
type DeviceDescriptor struct {
	DeviceID string            `json:"device_id"`
	Name     string            `json:"name"`
	Kind     DeviceKind        `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// ClaimedBy is the owning user id, empty when unclaimed.
	ClaimedBy string `json:"claimed_by,omitempty"`
}
