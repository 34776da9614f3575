package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/countdown"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/database/memory"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

const testKey = "yoye_booking_state:test"

type fixture struct {
	clk     *clock.Manual
	repo    database.StateRepository
	catalog database.EventRepository
}

func newFixture() *fixture {
	clk := clock.NewManual(t0)
	return &fixture{
		clk:     clk,
		repo:    memory.NewStateRepository(clk),
		catalog: memory.NewEventRepository(memory.DefaultCatalog()),
	}
}

func (f *fixture) controller() *Controller {
	return NewController(NewStore(f.repo, testKey), WithClock(f.clk))
}

func (f *fixture) event(t *testing.T, id int64) *entity.Event {
	t.Helper()
	ev, err := f.catalog.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ev
}

// walkToForm accepts the terms and selects the event.
func walkToForm(t *testing.T, ctx context.Context, c *Controller, ev *entity.Event) {
	t.Helper()
	require.NoError(t, c.AcceptTerms(ctx, true, true))
	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.SelectEvent(ctx, ev))
	require.Equal(t, entity.StepBookingForm, c.State().Step)
}

func walkToPayment(t *testing.T, ctx context.Context, c *Controller, ev *entity.Event) {
	t.Helper()
	walkToForm(t, ctx, c, ev)
	require.NoError(t, c.SetNickname(ctx, "Mint"))
	require.NoError(t, c.Advance(ctx))
	require.Equal(t, entity.StepPayment, c.State().Step)
}

func TestRestoreFreshSession(t *testing.T) {
	f := newFixture()
	state := f.controller().Restore(context.Background())

	assert.Equal(t, entity.StepTerms, state.Step)
	assert.Nil(t, state.SelectedEvent)
	assert.Nil(t, state.BookingForm)
	assert.Nil(t, state.PaymentStartedAt)
	assert.False(t, state.IsExpired)
}

func TestFormEventScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)

	walkToForm(t, ctx, c, f.event(t, 2))
	require.NoError(t, c.SetNickname(ctx, "Mint"))
	require.NoError(t, c.SetTicketCount(ctx, 3))

	deposit, ready := c.Deposit()
	require.True(t, ready)
	assert.Equal(t, int64(300), deposit)
	assert.Len(t, c.State().BookingForm.NameList, 3)

	require.NoError(t, c.Advance(ctx))
	state := c.State()
	require.NotNil(t, state.PaymentStartedAt)
	assert.True(t, state.PaymentStartedAt.Equal(t0))

	var fired int32
	timer := countdown.NewTimer(f.clk, state.StartedAt(), countdown.OnExpire(func() {
		atomic.AddInt32(&fired, 1)
		assert.NoError(t, c.Expire(ctx))
	}))
	timer.Start(ctx)
	require.Eventually(t, func() bool { return f.clk.Tickers() == 1 }, 2*time.Second, time.Millisecond)

	for i := 0; i < 601; i++ {
		f.clk.Advance(time.Second)
	}
	<-timer.Done()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	remaining, ok := c.RemainingSeconds()
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, entity.StatusExpired, c.Status())

	assert.ErrorIs(t, c.Retreat(ctx), entity.ErrSessionExpired)
	assert.ErrorIs(t, c.Advance(ctx), entity.ErrSessionExpired)

	c.Reset(ctx)
	fresh := f.controller().Restore(ctx)
	assert.Equal(t, entity.StepTerms, fresh.Step)
	assert.Nil(t, fresh.SelectedEvent)
}

func TestTermsNeedScrollAndCheckbox(t *testing.T) {
	ctx := context.Background()
	c := newFixture().controller()
	c.Restore(ctx)

	assert.ErrorIs(t, c.Advance(ctx), entity.ErrStepIncomplete)

	require.NoError(t, c.AcceptTerms(ctx, false, true))
	assert.False(t, c.State().Terms.Accepted)
	assert.ErrorIs(t, c.Advance(ctx), entity.ErrStepIncomplete)

	require.NoError(t, c.AcceptTerms(ctx, true, false))
	assert.ErrorIs(t, c.Advance(ctx), entity.ErrStepIncomplete)

	require.NoError(t, c.AcceptTerms(ctx, false, true))
	assert.True(t, c.CanProceed())
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, entity.StepEventSelect, c.State().Step)
}

func TestEventSelectRequiresAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	require.NoError(t, c.AcceptTerms(ctx, true, true))
	require.NoError(t, c.Advance(ctx))

	assert.ErrorIs(t, c.Advance(ctx), entity.ErrStepIncomplete)
	assert.ErrorIs(t, c.SelectEvent(ctx, f.event(t, 4)), entity.ErrEventUnavailable)
	assert.Equal(t, entity.StepEventSelect, c.State().Step)
	assert.Nil(t, c.State().SelectedEvent)
	assert.ErrorIs(t, c.SelectEvent(ctx, nil), entity.ErrEventNotFound)
}

func ticketEvent() *entity.Event {
	return &entity.Event{
		ID:   50,
		Name: "Test Live",
		Type: entity.EventTypeTicket,
		ShowTimes: []entity.ShowTime{{
			ID: 1,
			Zones: []entity.Zone{
				{ID: 10, Name: "A", Remaining: 2, TicketPrice: 3000, ServicePrice: 500, Status: entity.ZoneStatusAvailable},
				{ID: 11, Name: "B", Remaining: 0, TicketPrice: 2000, ServicePrice: 300, Status: entity.ZoneStatusTempFull},
			},
		}, {
			ID:    2,
			Zones: []entity.Zone{{ID: 20, Name: "C", Remaining: 9, TicketPrice: 1000, ServicePrice: 200, Status: entity.ZoneStatusAvailable}},
		}},
	}
}

func TestTicketEventDepositAndCapacity(t *testing.T) {
	ctx := context.Background()
	c := newFixture().controller()
	c.Restore(ctx)
	walkToForm(t, ctx, c, ticketEvent())

	require.NoError(t, c.SetNickname(ctx, "Ploy"))
	_, ready := c.Deposit()
	assert.False(t, ready)
	assert.False(t, c.CanProceed())
	assert.ErrorIs(t, c.IncrementTickets(ctx), entity.ErrZoneNotFound)

	require.NoError(t, c.SelectShowTime(ctx, 1))
	assert.ErrorIs(t, c.SelectZone(ctx, 11), entity.ErrZoneUnavailable)
	require.NoError(t, c.SelectZone(ctx, 10))
	require.NoError(t, c.IncrementTickets(ctx))

	deposit, ready := c.Deposit()
	require.True(t, ready)
	assert.Equal(t, int64(1000), deposit)

	assert.ErrorIs(t, c.IncrementTickets(ctx), entity.ErrCapacityReached)
	assert.ErrorIs(t, c.SetTicketCount(ctx, 5), entity.ErrCapacityReached)
	assert.ErrorIs(t, c.SetTicketCount(ctx, 0), entity.ErrInvalidQuantity)
	assert.Equal(t, 2, c.State().BookingForm.TicketCount)
	assert.True(t, c.CanProceed())
}

func TestShowTimeChangeClearsZone(t *testing.T) {
	ctx := context.Background()
	c := newFixture().controller()
	c.Restore(ctx)
	walkToForm(t, ctx, c, ticketEvent())

	require.NoError(t, c.SelectShowTime(ctx, 1))
	require.NoError(t, c.SelectZone(ctx, 10))
	require.NoError(t, c.SetTicketCount(ctx, 2))

	require.NoError(t, c.SelectShowTime(ctx, 2))
	d := c.State().BookingForm
	assert.Equal(t, int64(2), d.ShowTimeID)
	assert.Zero(t, d.ZoneID)
	assert.Equal(t, 1, d.TicketCount)

	assert.ErrorIs(t, c.SelectShowTime(ctx, 99), entity.ErrShowTimeNotFound)
	assert.ErrorIs(t, c.SelectZone(ctx, 10), entity.ErrZoneNotFound)
}

func TestDecrementStopsAtOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToForm(t, ctx, c, f.event(t, 1))

	require.NoError(t, c.SetTicketCount(ctx, 2))
	require.NoError(t, c.DecrementTickets(ctx))
	require.NoError(t, c.DecrementTickets(ctx))
	assert.Equal(t, 1, c.State().BookingForm.TicketCount)
}

func TestNameListDrivesFormCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToForm(t, ctx, c, f.event(t, 1))

	require.NoError(t, c.SetNameList(ctx, []string{"Mint", "Ploy", "Fah", "Nan"}))
	assert.Equal(t, 4, c.State().BookingForm.TicketCount)
	deposit, _ := c.Deposit()
	assert.Equal(t, int64(400), deposit)

	require.NoError(t, c.SetNameList(ctx, nil))
	assert.Equal(t, 1, c.State().BookingForm.TicketCount)
	assert.Equal(t, []string{""}, c.State().BookingForm.NameList)
}

func TestRetreatKeepsData(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	require.NoError(t, c.Retreat(ctx))
	require.NoError(t, c.Retreat(ctx))
	state := c.State()
	assert.Equal(t, entity.StepEventSelect, state.Step)
	require.NotNil(t, state.SelectedEvent)
	assert.Equal(t, int64(2), state.SelectedEvent.ID)
	assert.Equal(t, "Mint", state.BookingForm.Nickname)

	// same event again keeps the draft
	require.NoError(t, c.SelectEvent(ctx, f.event(t, 2)))
	assert.Equal(t, "Mint", c.State().BookingForm.Nickname)

	require.NoError(t, c.Retreat(ctx))
	require.NoError(t, c.SelectEvent(ctx, f.event(t, 1)))
	assert.Empty(t, c.State().BookingForm.Nickname)

	require.NoError(t, c.Retreat(ctx))
	require.NoError(t, c.Retreat(ctx))
	assert.ErrorIs(t, c.Retreat(ctx), entity.ErrNoPreviousStep)
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	f.clk.Advance(90 * time.Second)
	first := f.controller().Restore(ctx)
	second := f.controller().Restore(ctx)
	assert.Equal(t, first, second)
}

func TestRestoreExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	f.clk.Set(t0.Add(599_999 * time.Millisecond))
	state := f.controller().Restore(ctx)
	assert.Equal(t, entity.StepPayment, state.Step)
	assert.False(t, state.IsExpired)

	f.clk.Set(t0.Add(600_000 * time.Millisecond))
	restored := f.controller()
	state = restored.Restore(ctx)
	assert.Equal(t, entity.StepPayment, state.Step)
	assert.True(t, state.IsExpired)
	assert.Equal(t, entity.StatusExpired, restored.Status())
}

func TestReloadKeepsDeadlineButForwardNavigationRestamps(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	f.clk.Advance(5 * time.Minute)
	reloaded := f.controller()
	state := reloaded.Restore(ctx)
	assert.True(t, state.PaymentStartedAt.Equal(t0))
	remaining, _ := reloaded.RemainingSeconds()
	assert.Equal(t, 300, remaining)

	require.NoError(t, reloaded.Retreat(ctx))
	require.NoError(t, reloaded.Advance(ctx))
	state = reloaded.State()
	assert.True(t, state.PaymentStartedAt.Equal(t0.Add(5*time.Minute)))
	remaining, _ = reloaded.RemainingSeconds()
	assert.Equal(t, 600, remaining)
}

func TestRestoreDiscardsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.repo.Set(ctx, testKey, []byte("{not json")))

	state := f.controller().Restore(ctx)
	assert.Equal(t, entity.NewWizardState(), state)
}

func TestRestoreNormalizesMissingPrerequisites(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.repo.Set(ctx, testKey, []byte(`{"step":3,"selectedEvent":null}`)))
	assert.Equal(t, entity.StepEventSelect, f.controller().Restore(ctx).Step)

	require.NoError(t, f.repo.Set(ctx, testKey, []byte(`{"step":9}`)))
	assert.Equal(t, entity.StepTerms, f.controller().Restore(ctx).Step)

	blob, err := json.Marshal(entity.WizardState{
		Step:          entity.StepPayment,
		SelectedEvent: f.event(t, 2),
		BookingForm:   &entity.FormDraft{TicketCount: 1},
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.Set(ctx, testKey, blob))
	assert.Equal(t, entity.StepBookingForm, f.controller().Restore(ctx).Step)
}

func TestRestoreStampsUnstartedPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	blob, err := json.Marshal(entity.WizardState{
		Step:          entity.StepPayment,
		SelectedEvent: f.event(t, 2),
		BookingForm:   &entity.FormDraft{Nickname: "Mint", TicketCount: 1},
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.Set(ctx, testKey, blob))

	state := f.controller().Restore(ctx)
	require.NotNil(t, state.PaymentStartedAt)
	assert.True(t, state.PaymentStartedAt.Equal(t0))

	f.clk.Advance(time.Minute)
	again := f.controller().Restore(ctx)
	assert.True(t, again.PaymentStartedAt.Equal(t0))
}

func TestPersistedBlobShape(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	blob, err := f.repo.Get(ctx, testKey)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &raw))
	assert.Equal(t, float64(4), raw["step"])
	assert.Equal(t, float64(t0.UnixMilli()), raw["paymentStartedAt"])
	assert.Equal(t, false, raw["isExpired"])
	assert.Contains(t, raw, "selectedEvent")
	form := raw["bookingForm"].(map[string]interface{})
	assert.Equal(t, "Mint", form["nickName"])
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingRepo) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (failingRepo) Delete(context.Context, string) error        { return errors.New("disk gone") }

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := NewController(NewStore(failingRepo{}, testKey), WithClock(f.clk))

	state := c.Restore(ctx)
	assert.Equal(t, entity.StepTerms, state.Step)

	walkToPayment(t, ctx, c, f.event(t, 2))
	c.Reset(ctx)
	assert.Equal(t, entity.StepTerms, c.State().Step)
}

func TestResetClearsStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToForm(t, ctx, c, f.event(t, 1))

	c.Reset(ctx)
	_, err := f.repo.Get(ctx, testKey)
	assert.ErrorIs(t, err, entity.ErrStateNotFound)
	assert.Equal(t, entity.NewWizardState(), f.controller().Restore(ctx))
}

func TestSubmitNeedsPaymentProof(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	_, err := c.Submit(ctx)
	assert.ErrorIs(t, err, entity.ErrStepIncomplete)
	assert.ErrorIs(t, c.Advance(ctx), entity.ErrNoNextStep)

	// international path needs every field
	slip := &entity.Attachment{FileName: "slip.png", ContentType: "image/png", Size: 2048}
	require.NoError(t, c.AttachPaymentProof(ctx, entity.PaymentProof{
		Method:            entity.PaymentInternational,
		InternationalFile: slip,
		TransferDate:      "2026-02-01",
	}))
	assert.False(t, c.CanProceed())

	require.NoError(t, c.AttachPaymentProof(ctx, entity.PaymentProof{
		Method:            entity.PaymentInternational,
		InternationalFile: slip,
		TransferDate:      "2026-02-01",
		TransferTime:      "09:03",
		Amount:            100,
	}))
	assert.True(t, c.CanProceed())

	snapshot, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.StepPayment, snapshot.Step)
	assert.Equal(t, "Mint", snapshot.BookingForm.Nickname)

	assert.Equal(t, entity.StepTerms, c.State().Step)
	_, err = f.repo.Get(ctx, testKey)
	assert.ErrorIs(t, err, entity.ErrStateNotFound)
}

func TestAttachPaymentProofValidatesFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))

	err := c.AttachPaymentProof(ctx, entity.PaymentProof{
		DomesticFile: &entity.Attachment{FileName: "a.exe", ContentType: "application/octet-stream", Size: 10},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidProof)

	err = c.AttachPaymentProof(ctx, entity.PaymentProof{
		DomesticFile: &entity.Attachment{FileName: "a.pdf", ContentType: "application/pdf", Size: MaxProofSize + 1},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidProof)
	assert.False(t, c.CanProceed())
}

func TestExpireOnlyAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)

	assert.ErrorIs(t, c.Expire(ctx), entity.ErrWrongStep)

	walkToPayment(t, ctx, c, f.event(t, 2))
	assert.ErrorIs(t, c.Expire(ctx), entity.ErrNotExpired)

	f.clk.Advance(10 * time.Minute)
	require.NoError(t, c.Expire(ctx))
	require.NoError(t, c.Expire(ctx))
	assert.True(t, c.State().IsExpired)

	_, err := c.Submit(ctx)
	assert.ErrorIs(t, err, entity.ErrSessionExpired)
}

func TestLateSubmitIsExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := f.controller()
	c.Restore(ctx)
	walkToPayment(t, ctx, c, f.event(t, 2))
	require.NoError(t, c.AttachPaymentProof(ctx, entity.PaymentProof{
		DomesticFile: &entity.Attachment{FileName: "slip.jpg", ContentType: "image/jpeg", Size: 100},
	}))

	f.clk.Advance(11 * time.Minute)
	_, err := c.Submit(ctx)
	assert.ErrorIs(t, err, entity.ErrSessionExpired)

	state := f.controller().Restore(ctx)
	assert.True(t, state.IsExpired)
}

func TestEditsRejectedOutsideFormStep(t *testing.T) {
	ctx := context.Background()
	c := newFixture().controller()
	c.Restore(ctx)

	assert.ErrorIs(t, c.SetNickname(ctx, "Mint"), entity.ErrWrongStep)
	assert.ErrorIs(t, c.SelectEvent(ctx, ticketEvent()), entity.ErrWrongStep)
	assert.ErrorIs(t, c.AttachPaymentProof(ctx, entity.PaymentProof{}), entity.ErrWrongStep)
}
