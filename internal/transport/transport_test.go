package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/yoye-booking/config"
	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/database/memory"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/internal/service"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// minimal PNG header, enough for content sniffing
var pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	clk      *clock.Manual
	bookings database.BookingRepository
	router   *gin.Engine
}

func newTestEnv(q QueueInspector) *testEnv {
	clk := clock.NewManual(t0)
	events := memory.NewEventRepository(memory.DefaultCatalog())
	bookings := memory.NewBookingRepository()

	wizardService := service.NewWizardService(memory.NewStateRepository(clk), events, bookings, nil, clk, service.WizardConfig{})
	trackingService := service.NewTrackingService(bookings, events, nil, clk, service.TrackingConfig{PageSize: 10})

	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"*"}

	return &testEnv{
		clk:      clk,
		bookings: bookings,
		router: InitRoutes(cfg,
			NewEventHandler(service.NewCatalogService(events)),
			NewSessionHandler(wizardService, 0),
			NewBookingHandler(trackingService, q),
		),
	}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, path string, fields map[string]string, field, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) service.SessionView {
	t.Helper()
	var view service.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view), w.Body.String())
	return view
}

// toPayment walks a new session to the payment step of event 1.
func (e *testEnv) toPayment(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeView(t, w).SessionID
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/terms", gin.H{"scrolledToBottom": true, "accepted": true}).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/next", nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/event", gin.H{"eventId": 1}).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPatch, base+"/form", gin.H{"nickName": "Mint"}).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, base+"/next", nil).Code)
	return id
}

func TestWizardFlowOverHTTP(t *testing.T) {
	env := newTestEnv(nil)

	w := env.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decodeView(t, w)
	assert.Equal(t, "terms", view.Status)
	base := "/api/v1/sessions/" + view.SessionID

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, base+"/next", nil).Code, "terms not accepted yet")

	w = env.do(http.MethodPost, base+"/terms", gin.H{"scrolledToBottom": true, "accepted": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeView(t, w).CanProceed)

	w = env.do(http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StepEventSelect, decodeView(t, w).State.Step)

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, base+"/event", gin.H{"eventId": 4}).Code, "sold out")
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, base+"/event", gin.H{"eventId": 99}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, base+"/event", gin.H{}).Code)

	w = env.do(http.MethodPost, base+"/event", gin.H{"eventId": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StepBookingForm, decodeView(t, w).State.Step)

	w = env.do(http.MethodPatch, base+"/form", gin.H{"nickName": "Mint", "nameList": []string{"Mint", "Ploy"}})
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	require.NotNil(t, view.Deposit)
	assert.Equal(t, int64(200), *view.Deposit)

	w = env.do(http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	assert.Equal(t, "payment", view.Status)
	require.NotNil(t, view.RemainingSeconds)
	assert.Equal(t, 600, *view.RemainingSeconds)

	w = env.upload(t, base+"/payment/proof", map[string]string{"method": "instant"}, "domesticFile", "slip.png", []byte("just some text"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "content is sniffed, not trusted from the name")

	w = env.upload(t, base+"/payment/proof", map[string]string{"method": "instant"}, "domesticFile", "slip.png", pngHead)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeView(t, w)
	require.NotNil(t, view.State.Payment.DomesticFile)
	assert.Equal(t, "image/png", view.State.Payment.DomesticFile.ContentType)
	assert.Equal(t, int64(len(pngHead)), view.State.Payment.DomesticFile.Size)
	assert.True(t, view.CanProceed)

	w = env.do(http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var booking entity.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booking))
	assert.True(t, strings.HasPrefix(booking.Code, "YJI-BP-BKK-2026-"), booking.Code)
	assert.Equal(t, int64(200), booking.Deposit)

	// сессия начинается заново
	w = env.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "terms", decodeView(t, w).Status)

	w = env.do(http.MethodGet, "/api/v1/tracking?q="+booking.Code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.TrackingPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Rows, 1)
	assert.Equal(t, booking.Code, page.Rows[0].BookingCode)
	assert.Equal(t, entity.TrackingBookingConfirmed, page.Rows[0].Status)

	w = env.do(http.MethodGet, "/api/v1/bookings/"+booking.Code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.BookingDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, booking.Code, detail.Booking.Code)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"malformed id", http.MethodGet, "/api/v1/sessions/nope", nil, http.StatusNotFound},
		{"unknown id", http.MethodPost, "/api/v1/sessions/6f1c1a9e-8d43-4c5e-9b1a-2f0d1b7c3e55/next", nil, http.StatusNotFound},
		{"bad event id", http.MethodGet, "/api/v1/events/abc", nil, http.StatusBadRequest},
		{"missing event", http.MethodGet, "/api/v1/events/42", nil, http.StatusNotFound},
		{"missing booking", http.MethodGet, "/api/v1/bookings/YJI-NOPE", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestBackFromTermsConflicts(t *testing.T) {
	env := newTestEnv(nil)
	w := env.do(http.MethodPost, "/api/v1/sessions", nil)
	id := decodeView(t, w).SessionID

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/v1/sessions/"+id+"/back", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/v1/sessions/"+id+"/expire", nil).Code)
}

func TestExpiredSessionOverHTTP(t *testing.T) {
	env := newTestEnv(nil)
	id := env.toPayment(t)
	base := "/api/v1/sessions/" + id

	env.clk.Set(t0.Add(10*time.Minute + time.Second))

	w := env.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StatusExpired, decodeView(t, w).Status)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, base+"/submit", nil).Code)

	w = env.do(http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "terms", decodeView(t, w).Status)
}

func TestCountdownStream(t *testing.T) {
	env := newTestEnv(nil)
	id := env.toPayment(t)
	env.clk.Set(t0.Add(11 * time.Minute))

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/countdown", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			events = append(events, strings.TrimSpace(name))
		}
	}
	assert.Equal(t, []string{"tick", "expired"}, events)
}

func TestCountdownStreamStopsAfterReset(t *testing.T) {
	env := newTestEnv(nil)
	id := env.toPayment(t)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/countdown", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for len(events) == 0 && scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			events = append(events, strings.TrimSpace(name))
		}
	}
	require.Equal(t, []string{"tick"}, events)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/sessions/"+id+"/reset", nil).Code)
	require.Eventually(t, func() bool { return env.clk.Tickers() == 1 }, 2*time.Second, time.Millisecond)
	env.clk.Advance(10 * time.Minute)

	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
			events = append(events, strings.TrimSpace(name))
		}
	}
	assert.Equal(t, []string{"tick", "stopped"}, events)
}

func TestCountdownOutsidePayment(t *testing.T) {
	env := newTestEnv(nil)
	w := env.do(http.MethodPost, "/api/v1/sessions", nil)
	id := decodeView(t, w).SessionID

	assert.Equal(t, http.StatusConflict, env.do(http.MethodGet, "/api/v1/sessions/"+id+"/countdown", nil).Code)
}

func TestTrackingAdminRoutes(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.bookings.Create(ctx, &entity.Booking{
		Code:       "YJI-BP-BKK-2026-AAAAAA",
		EventID:    1,
		EventName:  "BLACKPINK WORLD TOUR [BORN PINK] IN BANGKOK",
		EventType:  entity.EventTypeForm,
		Quantity:   2,
		Deposit:    200,
		ServiceFee: 500,
		Total:      1000,
		Status:     entity.TrackingBookingConfirmed,
		CreatedAt:  t0,
	}))

	w := env.do(http.MethodPatch, "/api/v1/admin/bookings/YJI-BP-BKK-2026-AAAAAA/status", gin.H{"status": "wait_full_payment"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "waiting statuses need a deadline")

	w = env.do(http.MethodPatch, "/api/v1/admin/bookings/YJI-BP-BKK-2026-AAAAAA/status", gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	deadline := t0.Add(12 * time.Hour)
	w = env.do(http.MethodPatch, "/api/v1/admin/bookings/YJI-BP-BKK-2026-AAAAAA/status",
		gin.H{"status": "wait_full_payment", "paymentDeadline": deadline})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPut, "/api/v1/bookings/YJI-BP-BKK-2026-AAAAAA", gin.H{"paymentMethod": "self_pay"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "required extra fields are missing")

	w = env.do(http.MethodPut, "/api/v1/bookings/YJI-BP-BKK-2026-AAAAAA", gin.H{
		"paymentMethod": "self_pay",
		"extraFields":   gin.H{"other1": "0812345678", "other2": "mint@example.com"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/v1/tracking", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.TrackingPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Urgent, 1)

	w = env.do(http.MethodPost, "/api/v1/admin/bookings/reminders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":1}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/v1/admin/bookings/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats entity.TrackingStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalBookings)
	assert.Equal(t, 1, stats.AwaitingPay)
}

func TestQueueRoutes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(nil)
		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/v1/admin/queue/stats", nil).Code)
		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/v1/admin/queue/dlq", nil).Code)
	})

	t.Run("memory queue", func(t *testing.T) {
		q := queue.NewMemoryQueue(10, queue.NewRetryManager(0, time.Millisecond))
		defer q.Close()
		env := newTestEnv(q)

		w := env.do(http.MethodGet, "/api/v1/admin/queue/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodGet, "/api/v1/admin/queue/dlq?limit=500", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp SuccessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, float64(100), resp.Meta.(map[string]interface{})["limit"])

		w = env.do(http.MethodPost, "/api/v1/admin/queue/dlq/missing/requeue", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(nil)
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
