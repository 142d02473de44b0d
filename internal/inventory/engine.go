package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/depotlabs/depot/pkg/models"
	"github.com/depotlabs/depot/pkg/plugin"
	"go.uber.org/zap"
)

// Audit log action names. These are stable identifiers stored in the
// device log, not display strings.
const (
	ActionReserved     = "reserved"
	ActionDeployed     = "deployed"
	ActionRecalled     = "recalled"
	ActionMaintenance  = "maintenance"
	ActionRetired      = "retired"
	ActionStatusChange = "status_change"
)

// TransitionRequest carries the caller-supplied context for a lifecycle
// transition. Location is applied only by actions that touch location.
type TransitionRequest struct {
	Actor    string
	Notes    string
	Location *string
}

// rule describes one lifecycle action: which statuses it may start
// from (nil means any), where it lands, and the field mutations it
// applies alongside the status change.
type rule struct {
	from   []models.DeviceStatus
	target models.DeviceStatus
	apply  func(d *models.Device, req TransitionRequest, now time.Time)
}

func (r rule) allows(from models.DeviceStatus) bool {
	if r.from == nil {
		return true
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// rules is the full lifecycle table. Maintenance and retire are
// deliberately unrestricted: field repairs and write-offs happen from
// any state, including retired hardware pulled back for inspection.
var rules = map[string]rule{
	ActionReserved: {
		from:   []models.DeviceStatus{models.StatusInStock},
		target: models.StatusReserved,
	},
	ActionDeployed: {
		from:   []models.DeviceStatus{models.StatusInStock, models.StatusReserved, models.StatusMaintenance},
		target: models.StatusDeployed,
		apply: func(d *models.Device, req TransitionRequest, now time.Time) {
			if req.Location != nil {
				d.Location = *req.Location
			}
			d.DeployDate = &now
		},
	},
	ActionRecalled: {
		from:   []models.DeviceStatus{models.StatusDeployed},
		target: models.StatusInStock,
		apply: func(d *models.Device, req TransitionRequest, now time.Time) {
			if req.Location != nil {
				d.Location = *req.Location
			}
			d.DeployDate = nil
		},
	},
	ActionMaintenance: {
		target: models.StatusMaintenance,
		apply: func(d *models.Device, req TransitionRequest, now time.Time) {
			d.LastMaintenanceDate = &now
		},
	},
	ActionRetired: {
		target: models.StatusRetired,
	},
}

// Engine applies lifecycle transitions. The status mutation runs inside
// a single transaction; the audit entry and domain events follow after
// commit and are non-fatal when they fail.
type Engine struct {
	store  plugin.Store
	audit  AuditLog
	bus    plugin.EventBus
	logger *zap.Logger

	// Now stamps deploy, maintenance, and update times. Overridable in
	// tests.
	Now func() time.Time
}

func NewEngine(store plugin.Store, audit AuditLog, bus plugin.EventBus, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		audit:  audit,
		bus:    bus,
		logger: logger,
		Now:    time.Now,
	}
}

// Reserve moves an in-stock device to reserved.
func (e *Engine) Reserve(ctx context.Context, id string, req TransitionRequest) (*models.Device, error) {
	d, _, err := e.transition(ctx, id, ActionReserved, rules[ActionReserved], req)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, plugin.Event{
		Topic:  TopicDeviceReserved,
		Source: "inventory",
		Payload: ReservedEvent{
			DeviceID: d.ID,
			Name:     d.Name,
			Notes:    req.Notes,
		},
	})
	return d, nil
}

// Deploy moves a device into the field, stamping its deploy date and
// optionally updating its location.
func (e *Engine) Deploy(ctx context.Context, id string, req TransitionRequest) (*models.Device, error) {
	d, _, err := e.transition(ctx, id, ActionDeployed, rules[ActionDeployed], req)
	return d, err
}

// Recall pulls a deployed device back to stock, clearing its deploy
// date.
func (e *Engine) Recall(ctx context.Context, id string, req TransitionRequest) (*models.Device, error) {
	d, _, err := e.transition(ctx, id, ActionRecalled, rules[ActionRecalled], req)
	return d, err
}

// SendToMaintenance moves a device to maintenance from any status and
// stamps its last maintenance date.
func (e *Engine) SendToMaintenance(ctx context.Context, id string, req TransitionRequest) (*models.Device, error) {
	d, _, err := e.transition(ctx, id, ActionMaintenance, rules[ActionMaintenance], req)
	return d, err
}

// Retire soft-deletes a device from any status. Retired devices remain
// queryable but leave the active pool.
func (e *Engine) Retire(ctx context.Context, id string, req TransitionRequest) (*models.Device, error) {
	d, _, err := e.transition(ctx, id, ActionRetired, rules[ActionRetired], req)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, plugin.Event{
		Topic:  TopicDeviceRetired,
		Source: "inventory",
		Payload: RetiredEvent{
			DeviceID: d.ID,
			Name:     d.Name,
		},
	})
	return d, nil
}

// SetStatus assigns any valid status directly, bypassing the per-action
// source restrictions but still audited as a status_change.
func (e *Engine) SetStatus(ctx context.Context, id string, status models.DeviceStatus, req TransitionRequest) (*models.Device, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, status)
	}
	r := rule{
		target: status,
		apply: func(d *models.Device, req TransitionRequest, now time.Time) {
			if req.Location != nil {
				d.Location = *req.Location
			}
		},
	}
	d, _, err := e.transition(ctx, id, ActionStatusChange, r, req)
	return d, err
}

// transition runs the shared load-guard-mutate-save path in one
// transaction, then records the audit entry and publishes the
// transition event. Returns the updated device and its prior status.
func (e *Engine) transition(ctx context.Context, id, action string, r rule, req TransitionRequest) (*models.Device, models.DeviceStatus, error) {
	now := e.Now().UTC()

	var device *models.Device
	var oldStatus models.DeviceStatus

	err := e.store.Tx(ctx, func(tx *sql.Tx) error {
		d, err := getDeviceByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.allows(d.Status) {
			return fmt.Errorf("%w: cannot %s device in status %q", ErrIllegalTransition, action, d.Status)
		}

		oldStatus = d.Status
		d.Status = r.target
		if r.apply != nil {
			r.apply(d, req, now)
		}
		d.UpdatedAt = now

		if err := saveDevice(ctx, tx, d); err != nil {
			return err
		}
		device = d
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	transitionsTotal.WithLabelValues(action).Inc()

	// Post-commit bookkeeping. Neither failure undoes the transition.
	entry := &models.DeviceLog{
		DeviceID:    device.ID,
		Action:      action,
		OldStatus:   oldStatus,
		NewStatus:   device.Status,
		PerformedBy: req.Actor,
		Notes:       req.Notes,
		Timestamp:   now,
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		auditFailuresTotal.Inc()
		e.logger.Warn("audit write failed after committed transition",
			zap.String("device_id", device.ID),
			zap.String("action", action),
			zap.Error(err))
	}

	e.publish(ctx, plugin.Event{
		Topic:  TopicDeviceTransition,
		Source: "inventory",
		Payload: TransitionEvent{
			DeviceID:  device.ID,
			Action:    action,
			OldStatus: oldStatus,
			NewStatus: device.Status,
		},
	})

	return device, oldStatus, nil
}

func (e *Engine) publish(ctx context.Context, event plugin.Event) {
	if err := e.bus.Publish(ctx, event); err != nil {
		publishFailuresTotal.Inc()
		e.logger.Warn("event publish failed",
			zap.String("topic", event.Topic),
			zap.Error(err))
	}
}
