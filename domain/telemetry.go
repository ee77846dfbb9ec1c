package domain

import "time"

// UnitStatus is a telemetry unit's reporting state as mapped from the vendor.
type UnitStatus string

const (
	UnitStatusNormal   UnitStatus = "normal"
	UnitStatusDegraded UnitStatus = "degraded"
	UnitStatusSilent   UnitStatus = "silent"
)

// TelemetryUnit is a single reporting sub-unit of a device: a microinverter,
// a site-level inverter reading or a charging session. Fetched live, never
// persisted by this core.
type TelemetryUnit struct {
	SerialNumber string     `json:"serial_number"`
	// ArrayID groups units belonging to one physical sub-array (the
	// microinverter vendor reports per gateway). Empty for ungrouped vendors.
	ArrayID      string     `json:"array_id,omitempty"`
	Status       UnitStatus `json:"status"`
	LastReportAt time.Time  `json:"last_report_at"`
	PowerW       float64    `json:"power_w"`
	EnergyWh     float64    `json:"energy_wh"`
}

// ArraySummary is the reduction of one physical sub-array's units.
type ArraySummary struct {
	ArrayID         string          `json:"array_id"`
	UnitCount       int             `json:"unit_count"`
	EnergyWhTotal   float64         `json:"energy_wh_total"`
	EnergyWhPerUnit float64         `json:"energy_wh_per_unit"`
	BestUnitSerial  string          `json:"best_unit_serial,omitempty"`
	WorstUnitSerial string          `json:"worst_unit_serial,omitempty"`
	LastReportAt    time.Time       `json:"last_report_at"`
	Units           []TelemetryUnit `json:"units"`
}

// DeviceFailure annotates a device whose telemetry fetch failed during an
// otherwise successful aggregation. The reason is a client-safe message;
// vendor detail is only logged server-side.
type DeviceFailure struct {
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}

// AggregateSummary is the normalized statistical summary across all of a
// user's claimed devices for one provider. Computed fresh on every request.
type AggregateSummary struct {
	Provider        string          `json:"provider"`
	UnitCount       int             `json:"unit_count"`
	EnergyWhTotal   float64         `json:"energy_wh_total"`
	EnergyWhPerUnit float64         `json:"energy_wh_per_unit"`
	BestUnitSerial  string          `json:"best_unit_serial,omitempty"`
	WorstUnitSerial string          `json:"worst_unit_serial,omitempty"`
	LastReportAt    time.Time       `json:"last_report_at"`
	Arrays          []ArraySummary  `json:"arrays,omitempty"`
	FailedDevices   []DeviceFailure `json:"failed_devices,omitempty"`
}
