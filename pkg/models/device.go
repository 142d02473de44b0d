// Package models holds the entities shared between Depot modules.
package models

import "time"

// DeviceType categorizes a tracked physical unit.
type DeviceType string

const (
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeActuator DeviceType = "actuator"
	DeviceTypeGateway  DeviceType = "gateway"
	DeviceTypeOther    DeviceType = "other"
)

// DeviceStatus is a device's position in the inventory lifecycle.
type DeviceStatus string

const (
	StatusInStock     DeviceStatus = "in_stock"
	StatusReserved    DeviceStatus = "reserved"
	StatusDeployed    DeviceStatus = "deployed"
	StatusMaintenance DeviceStatus = "maintenance"
	StatusRetired     DeviceStatus = "retired"
)

// ValidType reports whether t is one of the declared device types.
func ValidType(t DeviceType) bool {
	switch t {
	case DeviceTypeSensor, DeviceTypeActuator, DeviceTypeGateway, DeviceTypeOther:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the declared lifecycle statuses.
func ValidStatus(s DeviceStatus) bool {
	switch s {
	case StatusInStock, StatusReserved, StatusDeployed, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// Device is one physical unit in the inventory. ID, Type, SerialNumber,
// and PurchaseDate are immutable after creation; Status changes only
// through the transition engine.
type Device struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Type                DeviceType        `json:"type"`
	SerialNumber        string            `json:"serial_number"`
	Description         string            `json:"description,omitempty"`
	Location            string            `json:"location,omitempty"`
	Specifications      map[string]string `json:"specifications,omitempty"`
	Status              DeviceStatus      `json:"status"`
	PurchaseDate        *time.Time        `json:"purchase_date,omitempty"`
	DeployDate          *time.Time        `json:"deploy_date,omitempty"`
	LastMaintenanceDate *time.Time        `json:"last_maintenance_date,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// DeviceLog is one immutable audit record of a lifecycle transition.
// DeviceID is a reference, not ownership: log rows outlive the device.
type DeviceLog struct {
	ID          string       `json:"id"`
	DeviceID    string       `json:"device_id"`
	Action      string       `json:"action"`
	OldStatus   DeviceStatus `json:"old_status"`
	NewStatus   DeviceStatus `json:"new_status"`
	PerformedBy string       `json:"performed_by,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
