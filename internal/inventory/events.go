package inventory

import "github.com/depotlabs/depot/pkg/models"

// Event topics published by the inventory module. The notify module
// forwards the externally visible ones to the message broker.
const (
	TopicDeviceCreated    = "inventory.device.created"
	TopicDeviceUpdated    = "inventory.device.updated"
	TopicDeviceReserved   = "inventory.device.reserved"
	TopicDeviceRetired    = "inventory.device.retired"
	TopicDeviceTelemetry  = "inventory.device.telemetry"
	TopicDeviceEvent      = "inventory.device.event"
	TopicDeviceTransition = "inventory.device.transition"
)

// CreatedEvent is the payload for TopicDeviceCreated.
type CreatedEvent struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
}

// UpdatedEvent is the payload for TopicDeviceUpdated, published after a
// non-status field update.
type UpdatedEvent struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// RetiredEvent is the payload for TopicDeviceRetired.
type RetiredEvent struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// ReservedEvent is the payload for TopicDeviceReserved.
type ReservedEvent struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Notes    string `json:"notes,omitempty"`
}

// TelemetryEvent is the payload for TopicDeviceTelemetry. Data carries
// the device's arbitrary sensor readings.
type TelemetryEvent struct {
	DeviceID string         `json:"device_id"`
	Name     string         `json:"name"`
	Data     map[string]any `json:"data"`
}

// DeviceEvent is the payload for TopicDeviceEvent (generic device
// events and alerts).
type DeviceEvent struct {
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
}

// TransitionEvent is the payload for TopicDeviceTransition, published
// after every committed lifecycle transition.
type TransitionEvent struct {
	DeviceID  string              `json:"device_id"`
	Action    string              `json:"action"`
	OldStatus models.DeviceStatus `json:"old_status"`
	NewStatus models.DeviceStatus `json:"new_status"`
}
