package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/depotlabs/depot/internal/server"
	"github.com/depotlabs/depot/pkg/models"
	"github.com/depotlabs/depot/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider. Literal segments like
// /devices/in_stock are matched before the /devices/{id} wildcard by
// the router.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/devices", Handler: m.handleListDevices},
		{Method: http.MethodGet, Path: "/devices/in_stock", Handler: m.statusShortcut(models.StatusInStock)},
		{Method: http.MethodGet, Path: "/devices/deployed", Handler: m.statusShortcut(models.StatusDeployed)},
		{Method: http.MethodGet, Path: "/devices/maintenance", Handler: m.statusShortcut(models.StatusMaintenance)},
		{Method: http.MethodGet, Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: http.MethodGet, Path: "/devices/{id}/type", Handler: m.handleGetDeviceType},
		{Method: http.MethodGet, Path: "/devices/{id}/logs", Handler: m.handleGetDeviceLogs},
		{Method: http.MethodPost, Path: "/devices", Handler: m.handleCreateDevice},
		{Method: http.MethodPut, Path: "/devices/{id}", Handler: m.handleUpdateDevice},
		{Method: http.MethodPut, Path: "/devices/{id}/status", Handler: m.handleSetStatus},
		{Method: http.MethodPut, Path: "/devices/{id}/reserve", Handler: m.handleReserve},
		{Method: http.MethodPut, Path: "/devices/{id}/deploy", Handler: m.handleDeploy},
		{Method: http.MethodPut, Path: "/devices/{id}/recall", Handler: m.handleRecall},
		{Method: http.MethodPut, Path: "/devices/{id}/maintenance", Handler: m.handleMaintenance},
		{Method: http.MethodDelete, Path: "/devices/{id}", Handler: m.handleRetireDevice},
		{Method: http.MethodPost, Path: "/telemetry", Handler: m.handleTelemetry},
		{Method: http.MethodPost, Path: "/events", Handler: m.handleEvent},
	}
}

type createDeviceRequest struct {
	Name           string            `json:"name"`
	Type           models.DeviceType `json:"type"`
	SerialNumber   string            `json:"serial_number"`
	Description    string            `json:"description"`
	Location       string            `json:"location"`
	Specifications map[string]string `json:"specifications"`
	PurchaseDate   *time.Time        `json:"purchase_date"`
}

type updateDeviceRequest struct {
	Name           *string           `json:"name"`
	Description    *string           `json:"description"`
	Location       *string           `json:"location"`
	Specifications map[string]string `json:"specifications"`
}

type actionRequest struct {
	Location    *string `json:"location"`
	PerformedBy string  `json:"performed_by"`
	Notes       string  `json:"notes"`
}

type setStatusRequest struct {
	Status      models.DeviceStatus `json:"status"`
	Location    *string             `json:"location"`
	PerformedBy string              `json:"performed_by"`
	Notes       string              `json:"notes"`
}

type telemetryRequest struct {
	DeviceID string         `json:"device_id"`
	Data     map[string]any `json:"data"`
}

type eventRequest struct {
	DeviceID  string         `json:"device_id"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details"`
}

// actionResponse is the envelope returned by lifecycle action endpoints.
type actionResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Device  *models.Device `json:"device,omitempty"`
}

func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := Filter{
		Status: models.DeviceStatus(q.Get("status")),
		Type:   models.DeviceType(q.Get("type")),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		server.BadRequest(w, "unknown status filter: "+string(filter.Status), r.URL.Path)
		return
	}
	if filter.Type != "" && !models.ValidType(filter.Type) {
		server.BadRequest(w, "unknown type filter: "+string(filter.Type), r.URL.Path)
		return
	}

	page := intQuery(q.Get("page"), 1)
	pageSize := intQuery(q.Get("page_size"), m.pageSize)

	result, err := m.repo.List(r.Context(), filter, page, pageSize)
	if err != nil {
		m.logger.Error("list devices failed", zap.Error(err))
		server.InternalError(w, "listing devices failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusShortcut serves the fixed-status listing endpoints.
func (m *Module) statusShortcut(status models.DeviceStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices, err := m.repo.ListByStatus(r.Context(), status)
		if err != nil {
			m.logger.Error("list devices by status failed",
				zap.String("status", string(status)), zap.Error(err))
			server.InternalError(w, "listing devices failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"devices": devices,
			"total":   len(devices),
		})
	}
}

func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := m.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (m *Module) handleGetDeviceType(w http.ResponseWriter, r *http.Request) {
	device, err := m.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   device.ID,
		"type": device.Type,
	})
}

func (m *Module) handleGetDeviceLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Verify the device exists so an unknown id is a 404, not an empty list.
	if _, err := m.repo.GetByID(r.Context(), id); err != nil {
		m.writeRepoError(w, r, err)
		return
	}

	logs, err := m.audit.ListByDevice(r.Context(), id)
	if err != nil {
		m.logger.Error("list device logs failed", zap.String("device_id", id), zap.Error(err))
		server.InternalError(w, "listing device logs failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"logs":      logs,
	})
}

func (m *Module) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}
	if req.Name == "" {
		server.BadRequest(w, "name is required", r.URL.Path)
		return
	}
	if req.SerialNumber == "" {
		server.BadRequest(w, "serial_number is required", r.URL.Path)
		return
	}
	if req.Type == "" {
		req.Type = models.DeviceTypeOther
	}
	if !models.ValidType(req.Type) {
		server.BadRequest(w, "unknown device type: "+string(req.Type), r.URL.Path)
		return
	}

	device := &models.Device{
		Name:           req.Name,
		Type:           req.Type,
		SerialNumber:   req.SerialNumber,
		Description:    req.Description,
		Location:       req.Location,
		Specifications: req.Specifications,
		PurchaseDate:   req.PurchaseDate,
	}
	if err := m.repo.Create(r.Context(), device); err != nil {
		if errors.Is(err, ErrDuplicateSerial) {
			server.BadRequest(w, "serial number already exists: "+req.SerialNumber, r.URL.Path)
			return
		}
		m.logger.Error("create device failed", zap.Error(err))
		server.InternalError(w, "creating device failed", r.URL.Path)
		return
	}

	m.publishEvent(r.Context(), plugin.Event{
		Topic:  TopicDeviceCreated,
		Source: "inventory",
		Payload: CreatedEvent{
			DeviceID:     device.ID,
			Name:         device.Name,
			SerialNumber: device.SerialNumber,
		},
	})
	writeJSON(w, http.StatusCreated, device)
}

func (m *Module) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}

	patch := FieldPatch{
		Name:           req.Name,
		Description:    req.Description,
		Location:       req.Location,
		Specifications: req.Specifications,
	}
	device, err := m.repo.UpdateFields(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		m.writeRepoError(w, r, err)
		return
	}

	m.publishEvent(r.Context(), plugin.Event{
		Topic:  TopicDeviceUpdated,
		Source: "inventory",
		Payload: UpdatedEvent{
			DeviceID: device.ID,
			Name:     device.Name,
		},
	})
	writeJSON(w, http.StatusOK, device)
}

func (m *Module) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}

	device, err := m.engine.SetStatus(r.Context(), r.PathValue("id"), req.Status, TransitionRequest{
		Actor:    actor(r, req.PerformedBy),
		Notes:    req.Notes,
		Location: req.Location,
	})
	if err != nil {
		m.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: "status updated to " + string(device.Status),
		Device:  device,
	})
}

func (m *Module) handleReserve(w http.ResponseWriter, r *http.Request) {
	m.handleAction(w, r, "device reserved", m.engine.Reserve)
}

func (m *Module) handleDeploy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.Location == nil || *req.Location == "" {
		server.BadRequest(w, "location is required to deploy", r.URL.Path)
		return
	}
	device, err := m.engine.Deploy(r.Context(), r.PathValue("id"), TransitionRequest{
		Actor:    actor(r, req.PerformedBy),
		Notes:    req.Notes,
		Location: req.Location,
	})
	if err != nil {
		m.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: "device deployed to " + device.Location,
		Device:  device,
	})
}

func (m *Module) handleRecall(w http.ResponseWriter, r *http.Request) {
	m.handleAction(w, r, "device recalled to stock", m.engine.Recall)
}

func (m *Module) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	m.handleAction(w, r, "device sent to maintenance", m.engine.SendToMaintenance)
}

func (m *Module) handleRetireDevice(w http.ResponseWriter, r *http.Request) {
	m.handleAction(w, r, "device retired", m.engine.Retire)
}

// handleAction is the shared body for lifecycle endpoints that take an
// optional actionRequest and run one engine method.
func (m *Module) handleAction(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	apply func(ctx context.Context, id string, req TransitionRequest) (*models.Device, error),
) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	device, err := apply(r.Context(), r.PathValue("id"), TransitionRequest{
		Actor:    actor(r, req.PerformedBy),
		Notes:    req.Notes,
		Location: req.Location,
	})
	if err != nil {
		m.writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: message,
		Device:  device,
	})
}

func (m *Module) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}
	if req.DeviceID == "" {
		server.BadRequest(w, "device_id is required", r.URL.Path)
		return
	}

	device, err := m.repo.GetByID(r.Context(), req.DeviceID)
	if err != nil {
		m.writeRepoError(w, r, err)
		return
	}
	if device.Status != models.StatusDeployed {
		server.BadRequest(w, "device is not deployed; telemetry rejected", r.URL.Path)
		return
	}

	m.publishEvent(r.Context(), plugin.Event{
		Topic:  TopicDeviceTelemetry,
		Source: "inventory",
		Payload: TelemetryEvent{
			DeviceID: device.ID,
			Name:     device.Name,
			Data:     req.Data,
		},
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "telemetry accepted",
	})
}

func (m *Module) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}
	if req.DeviceID == "" {
		server.BadRequest(w, "device_id is required", r.URL.Path)
		return
	}
	if req.EventType == "" {
		server.BadRequest(w, "event_type is required", r.URL.Path)
		return
	}

	device, err := m.repo.GetByID(r.Context(), req.DeviceID)
	if err != nil {
		m.writeRepoError(w, r, err)
		return
	}

	m.publishEvent(r.Context(), plugin.Event{
		Topic:  TopicDeviceEvent,
		Source: "inventory",
		Payload: DeviceEvent{
			DeviceID:  device.ID,
			Name:      device.Name,
			EventType: req.EventType,
			Details:   req.Details,
		},
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "event accepted",
	})
}

// publishEvent publishes on the internal bus; failures are counted and
// logged, never surfaced to the client.
func (m *Module) publishEvent(ctx context.Context, event plugin.Event) {
	if err := m.bus.Publish(ctx, event); err != nil {
		publishFailuresTotal.Inc()
		m.logger.Warn("event publish failed", zap.String("topic", event.Topic), zap.Error(err))
	}
}

// writeRepoError maps repository errors onto problem responses.
func (m *Module) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		server.NotFound(w, "device not found", r.URL.Path)
	default:
		m.logger.Error("storage operation failed", zap.Error(err))
		server.InternalError(w, "storage operation failed", r.URL.Path)
	}
}

// writeTransitionError maps engine errors onto problem responses.
func (m *Module) writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		server.NotFound(w, "device not found", r.URL.Path)
	case errors.Is(err, ErrIllegalTransition):
		server.BadRequest(w, err.Error(), r.URL.Path)
	default:
		m.logger.Error("transition failed", zap.Error(err))
		server.InternalError(w, "applying transition failed", r.URL.Path)
	}
}

// decodeAction parses an optional actionRequest body. An empty body is
// a valid request with no overrides.
func decodeAction(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return req, false
	}
	return req, true
}

// actor resolves who performed an operation: the explicit body field
// wins, then the X-Actor header.
func actor(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.Header.Get("X-Actor")
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
