package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/depotlabs/depot/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test
// fixtures. Override individual fields with options or after creation.
func NewDevice(opts ...func(*models.Device)) models.Device {
	now := time.Now().UTC()
	purchase := now.AddDate(0, -1, 0)
	d := models.Device{
		ID:           uuid.New().String(),
		Name:         "test-device",
		Type:         models.DeviceTypeSensor,
		SerialNumber: "SN-" + uuid.New().String()[:8],
		Status:       models.StatusInStock,
		Location:     "Warehouse-1",
		PurchaseDate: &purchase,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName sets the device name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithSerial sets the device serial number.
func WithSerial(serial string) func(*models.Device) {
	return func(d *models.Device) { d.SerialNumber = serial }
}

// WithStatus sets the device status.
func WithStatus(s models.DeviceStatus) func(*models.Device) {
	return func(d *models.Device) { d.Status = s }
}

// WithType sets the device type.
func WithType(t models.DeviceType) func(*models.Device) {
	return func(d *models.Device) { d.Type = t }
}

// WithLocation sets the device location.
func WithLocation(loc string) func(*models.Device) {
	return func(d *models.Device) { d.Location = loc }
}

// WithSpecs sets the device specifications map.
func WithSpecs(specs map[string]string) func(*models.Device) {
	return func(d *models.Device) { d.Specifications = specs }
}
