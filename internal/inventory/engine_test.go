package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/depotlabs/depot/internal/store"
	"github.com/depotlabs/depot/internal/testutil"
	"github.com/depotlabs/depot/pkg/models"
)

type engineFixture struct {
	engine *Engine
	repo   *SQLiteDeviceRepository
	audit  *SQLiteAuditLog
	bus    *testutil.MockBus
	store  *store.SQLiteStore
	clock  *testutil.Clock
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	st := testutil.NewStore(t)
	if err := st.Migrate(context.Background(), "inventory", migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := testutil.NewMockBus()
	audit := NewSQLiteAuditLog(st.DB())
	engine := NewEngine(st, audit, bus, testutil.Logger())
	clock := testutil.NewClock()
	engine.Now = clock.Now

	return &engineFixture{
		engine: engine,
		repo:   NewSQLiteDeviceRepository(st),
		audit:  audit,
		bus:    bus,
		store:  st,
		clock:  clock,
	}
}

// seed inserts a device directly in the given status.
func (f *engineFixture) seed(t *testing.T, status models.DeviceStatus, opts ...func(*models.Device)) *models.Device {
	t.Helper()
	d := testutil.NewDevice(append(opts, testutil.WithStatus(status))...)
	if err := insertDevice(context.Background(), f.store.DB(), &d); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return &d
}

func TestReserve(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock)

	got, err := f.engine.Reserve(ctx, d.ID, TransitionRequest{Actor: "alice", Notes: "for project x"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got.Status != models.StatusReserved {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusReserved)
	}

	logs, err := f.audit.ListByDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(logs))
	}
	entry := logs[0]
	if entry.Action != ActionReserved {
		t.Errorf("Action = %q, want %q", entry.Action, ActionReserved)
	}
	if entry.OldStatus != models.StatusInStock || entry.NewStatus != models.StatusReserved {
		t.Errorf("transition logged as %s->%s, want in_stock->reserved", entry.OldStatus, entry.NewStatus)
	}
	if entry.PerformedBy != "alice" {
		t.Errorf("PerformedBy = %q, want %q", entry.PerformedBy, "alice")
	}

	reservedEvents := f.bus.TopicEvents(TopicDeviceReserved)
	if len(reservedEvents) != 1 {
		t.Fatalf("got %d reserved events, want 1", len(reservedEvents))
	}
	payload, ok := reservedEvents[0].Payload.(ReservedEvent)
	if !ok {
		t.Fatalf("payload type = %T, want ReservedEvent", reservedEvents[0].Payload)
	}
	if payload.DeviceID != d.ID || payload.Notes != "for project x" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestReserveRejectsNonStock(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock)

	if _, err := f.engine.Reserve(ctx, d.ID, TransitionRequest{}); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	_, err := f.engine.Reserve(ctx, d.ID, TransitionRequest{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second Reserve = %v, want ErrIllegalTransition", err)
	}

	// The rejected attempt must leave no trace.
	logs, err := f.audit.ListByDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("got %d audit entries after rejected reserve, want 1", len(logs))
	}
	got, err := f.repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.StatusReserved {
		t.Errorf("Status after rejected reserve = %q, want %q", got.Status, models.StatusReserved)
	}
}

func TestDeployLegality(t *testing.T) {
	tests := []struct {
		from models.DeviceStatus
		ok   bool
	}{
		{models.StatusInStock, true},
		{models.StatusReserved, true},
		{models.StatusMaintenance, true},
		{models.StatusDeployed, false},
		{models.StatusRetired, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			f := setupEngine(t)
			d := f.seed(t, tt.from)
			loc := "Site-7"

			_, err := f.engine.Deploy(context.Background(), d.ID, TransitionRequest{Location: &loc})
			if tt.ok && err != nil {
				t.Fatalf("Deploy from %s: %v", tt.from, err)
			}
			if !tt.ok && !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("Deploy from %s = %v, want ErrIllegalTransition", tt.from, err)
			}
		})
	}
}

func TestDeploySetsLocationAndDate(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock)
	loc := "Site-7"

	got, err := f.engine.Deploy(ctx, d.ID, TransitionRequest{Location: &loc})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if got.Location != "Site-7" {
		t.Errorf("Location = %q, want %q", got.Location, "Site-7")
	}
	if got.DeployDate == nil {
		t.Fatal("DeployDate is nil after deploy")
	}
	if !got.DeployDate.Equal(f.clock.Now()) {
		t.Errorf("DeployDate = %v, want %v", got.DeployDate, f.clock.Now())
	}
}

func TestDeployThenRecallRoundTrip(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock, testutil.WithSerial("SN-1"))
	loc := "Site-7"

	if _, err := f.engine.Deploy(ctx, d.ID, TransitionRequest{Location: &loc, Actor: "ops"}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	f.clock.Advance(time.Hour)

	got, err := f.engine.Recall(ctx, d.ID, TransitionRequest{Actor: "ops"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if got.Status != models.StatusInStock {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusInStock)
	}
	if got.DeployDate != nil {
		t.Errorf("DeployDate = %v after recall, want nil", got.DeployDate)
	}

	logs, err := f.audit.ListByDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(logs))
	}
	want := []struct {
		action   string
		from, to models.DeviceStatus
	}{
		{ActionDeployed, models.StatusInStock, models.StatusDeployed},
		{ActionRecalled, models.StatusDeployed, models.StatusInStock},
	}
	for i, w := range want {
		if logs[i].Action != w.action || logs[i].OldStatus != w.from || logs[i].NewStatus != w.to {
			t.Errorf("log[%d] = %s %s->%s, want %s %s->%s",
				i, logs[i].Action, logs[i].OldStatus, logs[i].NewStatus, w.action, w.from, w.to)
		}
	}
	if !logs[0].Timestamp.Before(logs[1].Timestamp) {
		t.Errorf("log timestamps out of order: %v then %v", logs[0].Timestamp, logs[1].Timestamp)
	}
}

func TestRecallRequiresDeployed(t *testing.T) {
	f := setupEngine(t)
	d := f.seed(t, models.StatusInStock)

	_, err := f.engine.Recall(context.Background(), d.ID, TransitionRequest{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Recall from in_stock = %v, want ErrIllegalTransition", err)
	}
}

func TestMaintenanceFromAnyStatus(t *testing.T) {
	for _, from := range []models.DeviceStatus{
		models.StatusInStock,
		models.StatusReserved,
		models.StatusDeployed,
		models.StatusMaintenance,
		models.StatusRetired,
	} {
		t.Run(string(from), func(t *testing.T) {
			f := setupEngine(t)
			d := f.seed(t, from)

			got, err := f.engine.SendToMaintenance(context.Background(), d.ID, TransitionRequest{})
			if err != nil {
				t.Fatalf("SendToMaintenance from %s: %v", from, err)
			}
			if got.Status != models.StatusMaintenance {
				t.Errorf("Status = %q, want %q", got.Status, models.StatusMaintenance)
			}
			if got.LastMaintenanceDate == nil {
				t.Error("LastMaintenanceDate is nil after maintenance")
			}
		})
	}
}

func TestRetireFromAnyStatus(t *testing.T) {
	for _, from := range []models.DeviceStatus{
		models.StatusInStock,
		models.StatusReserved,
		models.StatusDeployed,
		models.StatusMaintenance,
		models.StatusRetired,
	} {
		t.Run(string(from), func(t *testing.T) {
			f := setupEngine(t)
			ctx := context.Background()
			d := f.seed(t, from)

			got, err := f.engine.Retire(ctx, d.ID, TransitionRequest{})
			if err != nil {
				t.Fatalf("Retire from %s: %v", from, err)
			}
			if got.Status != models.StatusRetired {
				t.Errorf("Status = %q, want %q", got.Status, models.StatusRetired)
			}

			// Retired devices stay queryable.
			if _, err := f.repo.GetByID(ctx, d.ID); err != nil {
				t.Errorf("GetByID after retire: %v", err)
			}
		})
	}
}

func TestRetiredBlocksReserveAndDeploy(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusRetired)

	if _, err := f.engine.Reserve(ctx, d.ID, TransitionRequest{}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Reserve retired = %v, want ErrIllegalTransition", err)
	}
	loc := "Site-1"
	if _, err := f.engine.Deploy(ctx, d.ID, TransitionRequest{Location: &loc}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Deploy retired = %v, want ErrIllegalTransition", err)
	}
}

func TestSetStatus(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusRetired)
	loc := "Shelf-3"

	// Direct assignment ignores per-action restrictions.
	got, err := f.engine.SetStatus(ctx, d.ID, models.StatusInStock, TransitionRequest{
		Actor:    "bob",
		Location: &loc,
	})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got.Status != models.StatusInStock {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusInStock)
	}
	if got.Location != "Shelf-3" {
		t.Errorf("Location = %q, want %q", got.Location, "Shelf-3")
	}

	logs, err := f.audit.ListByDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != ActionStatusChange {
		t.Errorf("audit = %+v, want one status_change entry", logs)
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	f := setupEngine(t)
	d := f.seed(t, models.StatusInStock)

	_, err := f.engine.SetStatus(context.Background(), d.ID, "scrapped", TransitionRequest{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("SetStatus unknown = %v, want ErrIllegalTransition", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.Reserve(context.Background(), "no-such-id", TransitionRequest{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reserve missing device = %v, want ErrNotFound", err)
	}
	if len(f.bus.Events()) != 0 {
		t.Errorf("events published for a failed transition: %v", f.bus.Events())
	}
}

func TestTransitionEventPublished(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock)

	if _, err := f.engine.SendToMaintenance(ctx, d.ID, TransitionRequest{}); err != nil {
		t.Fatalf("SendToMaintenance: %v", err)
	}

	events := f.bus.TopicEvents(TopicDeviceTransition)
	if len(events) != 1 {
		t.Fatalf("got %d transition events, want 1", len(events))
	}
	payload, ok := events[0].Payload.(TransitionEvent)
	if !ok {
		t.Fatalf("payload type = %T, want TransitionEvent", events[0].Payload)
	}
	want := TransitionEvent{
		DeviceID:  d.ID,
		Action:    ActionMaintenance,
		OldStatus: models.StatusInStock,
		NewStatus: models.StatusMaintenance,
	}
	if payload != want {
		t.Errorf("payload = %+v, want %+v", payload, want)
	}
}

// failingAudit always errors, simulating a broken audit table.
type failingAudit struct{}

func (failingAudit) Record(context.Context, *models.DeviceLog) error {
	return errors.New("audit table unavailable")
}

func (failingAudit) ListByDevice(context.Context, string) ([]models.DeviceLog, error) {
	return nil, errors.New("audit table unavailable")
}

func TestAuditFailureDoesNotBlockTransition(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d := f.seed(t, models.StatusInStock)

	f.engine.audit = failingAudit{}

	got, err := f.engine.Reserve(ctx, d.ID, TransitionRequest{})
	if err != nil {
		t.Fatalf("Reserve with failing audit: %v", err)
	}
	if got.Status != models.StatusReserved {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusReserved)
	}

	// The committed transition is durable despite the audit failure.
	stored, err := f.repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.StatusReserved {
		t.Errorf("stored Status = %q, want %q", stored.Status, models.StatusReserved)
	}
	if len(f.bus.TopicEvents(TopicDeviceTransition)) != 1 {
		t.Error("transition event not published despite audit failure")
	}
}
