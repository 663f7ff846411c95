package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "exchangebooking"
	testExchange   = "exchange-1"
)

type recordingInvalidator struct {
	mutex     sync.Mutex
	dates     []string
	exchanges []string
}

func (invalidator *recordingInvalidator) InvalidateDate(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) error {
	invalidator.mutex.Lock()
	defer invalidator.mutex.Unlock()
	invalidator.dates = append(invalidator.dates, exchangeID.String()+"/"+date.String())
	return nil
}

func (invalidator *recordingInvalidator) InvalidateExchange(ctx context.Context, exchangeID booking.ExchangeID) error {
	invalidator.mutex.Lock()
	defer invalidator.mutex.Unlock()
	invalidator.exchanges = append(invalidator.exchanges, exchangeID.String())
	return nil
}

type apiFixture struct {
	router *gin.Engine
	cache  *recordingInvalidator
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	return newConfiguredAPIFixture(t, nil)
}

// newConfiguredAPIFixture lets configure adjust the router config before it is built.
func newConfiguredAPIFixture(t *testing.T, configure func(cfg *Config)) apiFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/api.db"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	ctx := context.Background()
	if err := gormstore.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	directory := gormstore.NewDirectory(db)
	if err := directory.UpsertExchange(ctx, booking.Exchange{ID: mustExchangeID(t, testExchange), Name: "Downtown", OwnerID: mustUserID(t, "owner-1")}); err != nil {
		t.Fatalf("upsert exchange: %v", err)
	}
	for _, user := range []booking.User{
		{ID: mustUserID(t, "owner-1"), Email: "owner@example.com", DisplayName: "Olive Owner"},
		{ID: mustUserID(t, "customer-1"), Email: "casey@example.com", DisplayName: "Casey Customer"},
		{ID: mustUserID(t, "customer-2"), Email: "drew@example.com", DisplayName: "Drew Customer"},
	} {
		if err := directory.UpsertUser(ctx, user); err != nil {
			t.Fatalf("upsert user: %v", err)
		}
	}

	clock := func() time.Time { return time.Date(2030, time.January, 7, 8, 0, 0, 0, time.UTC) }
	service, err := booking.NewService(gormstore.New(db), directory, clock)
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}
	cache := &recordingInvalidator{}
	cfg := Config{
		JWTSigningKey:  testSigningKey,
		JWTIssuer:      testIssuer,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	if configure != nil {
		configure(&cfg)
	}
	router, err := NewRouter(cfg, Dependencies{Service: service, Cache: cache})
	if err != nil {
		t.Fatalf("router init failed: %v", err)
	}
	return apiFixture{router: router, cache: cache}
}

func mintToken(t *testing.T, subject string, role string, signingKey string, issuer string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (fx apiFixture) call(t *testing.T, method string, path string, subject string, body any) (int, apiResponse) {
	t.Helper()
	token := ""
	if subject != "" {
		token = mintToken(t, subject, "", testSigningKey, testIssuer)
	}
	return fx.callWithToken(t, method, path, token, body)
}

func (fx apiFixture) callWithToken(t *testing.T, method string, path string, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(typed))
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	fx.router.ServeHTTP(recorder, request)
	var decoded apiResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, recorder.Body.String(), err)
	}
	return recorder.Code, decoded
}

func decodeData(t *testing.T, response apiResponse, target any) {
	t.Helper()
	if err := json.Unmarshal(response.Data, target); err != nil {
		t.Fatalf("decode data %s: %v", string(response.Data), err)
	}
}

func intPointer(value int) *int {
	return &value
}

func (fx apiFixture) openMonday(t *testing.T) {
	t.Helper()
	status, response := fx.call(t, http.MethodPost, "/api/v1/business-hours/bulk", "owner-1", bulkHoursPayload{
		Exchange: testExchange,
		Hours:    []hoursEntryPayload{{DayOfWeek: intPointer(1), OpenTime: "09:00", CloseTime: "17:00"}},
	})
	if status != http.StatusOK || !response.Success {
		t.Fatalf("set hours: %d %+v", status, response.Error)
	}
}

func TestBookingFlowOverHTTP(t *testing.T) {
	fx := newAPIFixture(t)
	fx.openMonday(t)

	status, response := fx.call(t, http.MethodGet, "/api/v1/availability?exchange=exchange-1&date=2030-01-07", "", nil)
	if status != http.StatusOK {
		t.Fatalf("availability: %d %+v", status, response.Error)
	}
	var availability availabilityResponse
	decodeData(t, response, &availability)
	if len(availability.Slots) != 8 || !availability.Slots[0].IsAvailable || availability.SlotDurationMinutes != 60 {
		t.Fatalf("unexpected availability %+v", availability)
	}

	create := createBookingPayload{Exchange: testExchange, Date: "2030-01-07", StartTime: "09:00", EndTime: "10:00"}
	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings", "customer-1", create)
	if status != http.StatusCreated {
		t.Fatalf("create booking: %d %+v", status, response.Error)
	}
	var created bookingResponse
	decodeData(t, response, &created)
	if created.Status != "pending" || created.CustomerEmail != "casey@example.com" || created.StartTime != "09:00" {
		t.Fatalf("unexpected booking %+v", created)
	}
	if len(fx.cache.dates) != 1 || fx.cache.dates[0] != "exchange-1/2030-01-07" {
		t.Fatalf("expected the booked day invalidated, got %v", fx.cache.dates)
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings", "customer-2", create)
	if status != http.StatusConflict || response.Error == nil || response.Error.Code != "capacity_exceeded" {
		t.Fatalf("expected capacity conflict, got %d %+v", status, response.Error)
	}

	_, response = fx.call(t, http.MethodGet, "/api/v1/availability?exchange=exchange-1&date=2030-01-07", "", nil)
	decodeData(t, response, &availability)
	if availability.Slots[0].IsAvailable || availability.Slots[0].CurrentBookings != 1 {
		t.Fatalf("expected the first slot full, got %+v", availability.Slots[0])
	}

	status, response = fx.call(t, http.MethodGet, "/api/v1/bookings/"+created.ID, "customer-2", nil)
	if status != http.StatusForbidden || response.Error.Kind != "authorization" {
		t.Fatalf("expected forbidden read, got %d %+v", status, response.Error)
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/confirm", "customer-1", nil)
	if status != http.StatusForbidden {
		t.Fatalf("customers must not confirm, got %d", status)
	}
	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/confirm", "owner-1", nil)
	if status != http.StatusOK {
		t.Fatalf("confirm: %d %+v", status, response.Error)
	}

	status, response = fx.call(t, http.MethodGet, "/api/v1/bookings", "customer-1", nil)
	var listed []bookingResponse
	decodeData(t, response, &listed)
	if status != http.StatusOK || len(listed) != 1 || listed[0].Status != "confirmed" {
		t.Fatalf("unexpected listing %d %+v", status, listed)
	}

	status, response = fx.call(t, http.MethodGet, "/api/v1/exchanges/exchange-1/stats", "owner-1", nil)
	var stats statsResponse
	decodeData(t, response, &stats)
	if status != http.StatusOK || stats.TotalBookings != 1 || stats.BookingsByStatus["confirmed"] != 1 {
		t.Fatalf("unexpected stats %d %+v", status, stats)
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", "customer-1", map[string]string{"cancellation_reason": "plans changed"})
	var cancelled bookingResponse
	decodeData(t, response, &cancelled)
	if status != http.StatusOK || cancelled.Status != "cancelled" || cancelled.CancellationReason != "plans changed" || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancel %d %+v", status, cancelled)
	}
	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", "customer-1", nil)
	if status != http.StatusConflict || response.Error.Code != "booking_closed" {
		t.Fatalf("expected second cancel to conflict, got %d %+v", status, response.Error)
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/bookings", "customer-2", create)
	if status != http.StatusCreated {
		t.Fatalf("expected the released unit to be bookable, got %d %+v", status, response.Error)
	}
}

func TestUpdateStatusOverHTTP(t *testing.T) {
	fx := newAPIFixture(t)
	fx.openMonday(t)
	_, response := fx.call(t, http.MethodPost, "/api/v1/bookings", "customer-1", createBookingPayload{Exchange: testExchange, Date: "2030-01-07", StartTime: "11:00", EndTime: "12:00"})
	var created bookingResponse
	decodeData(t, response, &created)

	adminToken := mintToken(t, "admin-1", AdminRole, testSigningKey, testIssuer)
	status, response := fx.callWithToken(t, http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", adminToken, map[string]string{"status": "rejected", "admin_notes": "double booked"})
	var rejected bookingResponse
	decodeData(t, response, &rejected)
	if status != http.StatusOK || rejected.Status != "rejected" || rejected.AdminNotes != "double booked" {
		t.Fatalf("unexpected rejection %d %+v", status, rejected)
	}

	status, response = fx.callWithToken(t, http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", adminToken, map[string]string{"status": "sleeping"})
	if status != http.StatusBadRequest || response.Error.Code != "invalid_status" || response.Error.Field != "status" {
		t.Fatalf("expected invalid status, got %d %+v", status, response.Error)
	}
	status, response = fx.callWithToken(t, http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", adminToken, map[string]string{})
	if status != http.StatusBadRequest || response.Error.Code != "invalid_payload" || response.Error.Field != "status" {
		t.Fatalf("expected missing status, got %d %+v", status, response.Error)
	}
}

func TestProtectedRoutesRequireAValidToken(t *testing.T) {
	fx := newAPIFixture(t)
	path := "/api/v1/bookings"
	cases := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong key", token: mintToken(t, "customer-1", "", "other-key", testIssuer)},
		{name: "wrong issuer", token: mintToken(t, "customer-1", "", testSigningKey, "someone-else")},
		{name: "no subject", token: mintToken(t, "", "", testSigningKey, testIssuer)},
	}
	for _, testCase := range cases {
		status, response := fx.callWithToken(t, http.MethodGet, path, testCase.token, nil)
		if status != http.StatusUnauthorized || response.Success || response.Error.Kind != "unauthenticated" {
			t.Fatalf("%s: expected 401, got %d %+v", testCase.name, status, response.Error)
		}
	}
}

func TestRequestValidationErrors(t *testing.T) {
	fx := newAPIFixture(t)
	fx.openMonday(t)
	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   string
		field  string
	}{
		{
			name: "missing start", method: http.MethodPost, path: "/api/v1/bookings", user: "customer-1",
			body:   map[string]string{"exchange": testExchange, "date": "2030-01-07", "end_time": "10:00"},
			status: http.StatusBadRequest, code: "invalid_payload", field: "start_time",
		},
		{
			name: "malformed json", method: http.MethodPost, path: "/api/v1/bookings", user: "customer-1",
			body: "{", status: http.StatusBadRequest, code: "invalid_payload",
		},
		{
			name: "end before start", method: http.MethodPost, path: "/api/v1/bookings", user: "customer-1",
			body:   createBookingPayload{Exchange: testExchange, Date: "2030-01-07", StartTime: "10:00", EndTime: "09:00"},
			status: http.StatusBadRequest, code: "validation", field: "end_time",
		},
		{
			name: "outside hours", method: http.MethodPost, path: "/api/v1/bookings", user: "customer-1",
			body:   createBookingPayload{Exchange: testExchange, Date: "2030-01-07", StartTime: "16:30", EndTime: "17:30"},
			status: http.StatusBadRequest, code: "outside_business_hours",
		},
		{
			name: "bad duration", method: http.MethodGet, path: "/api/v1/availability?exchange=exchange-1&slot_duration=abc",
			status: http.StatusBadRequest, code: "invalid_slot_duration", field: "slot_duration",
		},
		{
			name: "duration out of range", method: http.MethodGet, path: "/api/v1/availability?exchange=exchange-1&slot_duration=5",
			status: http.StatusBadRequest, code: "invalid_slot_duration",
		},
		{
			name: "unknown exchange", method: http.MethodGet, path: "/api/v1/availability?exchange=missing",
			status: http.StatusNotFound, code: "exchange_not_found",
		},
		{
			name: "unknown booking", method: http.MethodGet, path: "/api/v1/bookings/no-such-booking", user: "customer-1",
			status: http.StatusNotFound, code: "booking_not_found",
		},
	}
	for _, testCase := range cases {
		status, response := fx.call(t, testCase.method, testCase.path, testCase.user, testCase.body)
		if status != testCase.status || response.Error == nil || response.Error.Code != testCase.code {
			t.Fatalf("%s: expected %d %s, got %d %+v", testCase.name, testCase.status, testCase.code, status, response.Error)
		}
		if testCase.field != "" && response.Error.Field != testCase.field {
			t.Fatalf("%s: expected field %s, got %+v", testCase.name, testCase.field, response.Error)
		}
	}
}

func TestBusinessHoursEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	status, response := fx.call(t, http.MethodPost, "/api/v1/business-hours/bulk", "owner-1", bulkHoursPayload{
		Exchange: testExchange,
		Hours: []hoursEntryPayload{
			{DayOfWeek: intPointer(2), OpenTime: "09:00", CloseTime: "17:00"},
			{DayOfWeek: intPointer(9), OpenTime: "09:00", CloseTime: "17:00"},
			{DayOfWeek: intPointer(3), OpenTime: "09:00"},
			{DayOfWeek: intPointer(4), OpenTime: "18:00", CloseTime: "09:00"},
			{DayOfWeek: intPointer(7), IsClosed: true},
		},
	})
	var bulk bulkHoursResponse
	decodeData(t, response, &bulk)
	if status != http.StatusOK || bulk.Created != 2 || bulk.Failed != 3 || len(bulk.Results) != 5 {
		t.Fatalf("unexpected bulk result %d %+v", status, bulk)
	}
	expectedFields := map[int]string{1: "day_of_week", 2: "close_time", 3: "close_time"}
	for index, field := range expectedFields {
		result := bulk.Results[index]
		if result.Success || result.Index != index || result.Error == nil || result.Error.Field != field {
			t.Fatalf("entry %d: expected failure on %s, got %+v", index, field, result)
		}
	}
	if !bulk.Results[4].Success || !bulk.Results[4].Hours.IsClosed {
		t.Fatalf("expected the closed day stored, got %+v", bulk.Results[4])
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/business-hours/template", "owner-1", templatePayload{Exchange: testExchange, Template: booking.TemplateWeekdayNineToFive})
	var template templateResponse
	decodeData(t, response, &template)
	if status != http.StatusOK || len(template.Created) != 5 || len(template.SkippedDays) != 2 {
		t.Fatalf("unexpected template report %d %+v", status, template)
	}

	status, response = fx.call(t, http.MethodPost, "/api/v1/business-hours/shifts", "owner-1", shiftPayload{Exchange: testExchange, DayOfWeek: intPointer(1), OpenTime: "18:00", CloseTime: "20:00"})
	if status != http.StatusCreated {
		t.Fatalf("add shift: %d %+v", status, response.Error)
	}
	status, response = fx.call(t, http.MethodPost, "/api/v1/business-hours/shifts", "owner-1", shiftPayload{Exchange: testExchange, DayOfWeek: intPointer(1), OpenTime: "18:00", CloseTime: "19:00"})
	if status != http.StatusConflict || response.Error.Code != "duplicate_shift" {
		t.Fatalf("expected duplicate shift, got %d %+v", status, response.Error)
	}
	status, response = fx.call(t, http.MethodPost, "/api/v1/business-hours/shifts", "customer-1", shiftPayload{Exchange: testExchange, DayOfWeek: intPointer(6), OpenTime: "10:00", CloseTime: "12:00"})
	if status != http.StatusForbidden {
		t.Fatalf("customers must not add shifts, got %d", status)
	}

	status, response = fx.call(t, http.MethodGet, "/api/v1/business-hours?exchange=exchange-1", "", nil)
	var rows []businessHoursResponse
	decodeData(t, response, &rows)
	if status != http.StatusOK || len(rows) != 8 || rows[0].DayName != "monday" {
		t.Fatalf("unexpected hours listing %d %+v", status, rows)
	}

	generate := generatePayload{Exchange: testExchange, StartDate: "2030-01-07", EndDate: "2030-01-07", MaxCapacity: 3}
	status, response = fx.call(t, http.MethodPost, "/api/v1/time-slots/generate", "owner-1", generate)
	var report generationResponse
	decodeData(t, response, &report)
	if status != http.StatusOK || report.Created != 10 || report.Skipped != 0 {
		t.Fatalf("unexpected generation %d %+v", status, report)
	}
	_, response = fx.call(t, http.MethodPost, "/api/v1/time-slots/generate", "owner-1", generate)
	decodeData(t, response, &report)
	if report.Created != 0 || report.Skipped != 10 {
		t.Fatalf("expected an idempotent rerun, got %+v", report)
	}
	status, _ = fx.call(t, http.MethodPost, "/api/v1/time-slots/generate", "customer-1", generate)
	if status != http.StatusForbidden {
		t.Fatalf("customers must not generate slots, got %d", status)
	}
	if len(fx.cache.exchanges) < 4 {
		t.Fatalf("expected hours writes to invalidate the exchange, got %v", fx.cache.exchanges)
	}
}

func TestRequestBodiesNameTheExchange(t *testing.T) {
	fx := newAPIFixture(t)
	steps := []struct {
		name   string
		path   string
		user   string
		body   map[string]any
		status int
	}{
		{
			name: "bulk hours", path: "/api/v1/business-hours/bulk", user: "owner-1",
			body:   map[string]any{"exchange": testExchange, "hours": []map[string]any{{"day_of_week": 1, "open_time": "09:00", "close_time": "17:00"}}},
			status: http.StatusOK,
		},
		{
			name: "shift", path: "/api/v1/business-hours/shifts", user: "owner-1",
			body:   map[string]any{"exchange": testExchange, "day_of_week": 1, "open_time": "18:00", "close_time": "20:00"},
			status: http.StatusCreated,
		},
		{
			name: "template", path: "/api/v1/business-hours/template", user: "owner-1",
			body:   map[string]any{"exchange": testExchange, "template": booking.TemplateSevenDays},
			status: http.StatusOK,
		},
		{
			name: "generate", path: "/api/v1/time-slots/generate", user: "owner-1",
			body:   map[string]any{"exchange": testExchange, "start_date": "2030-01-07", "end_date": "2030-01-07", "slot_duration_minutes": 60, "max_capacity": 2},
			status: http.StatusOK,
		},
		{
			name: "booking", path: "/api/v1/bookings", user: "customer-1",
			body:   map[string]any{"exchange": testExchange, "date": "2030-01-07", "start_time": "09:00", "end_time": "10:00"},
			status: http.StatusCreated,
		},
		{
			name: "booking through the exchange_id alias", path: "/api/v1/bookings", user: "customer-2",
			body:   map[string]any{"exchange_id": testExchange, "date": "2030-01-07", "start_time": "09:00", "end_time": "10:00"},
			status: http.StatusCreated,
		},
	}
	for _, step := range steps {
		status, response := fx.call(t, http.MethodPost, step.path, step.user, step.body)
		if status != step.status || !response.Success {
			t.Fatalf("%s: expected %d, got %d %+v", step.name, step.status, status, response.Error)
		}
	}

	status, response := fx.call(t, http.MethodPost, "/api/v1/bookings", "customer-1", map[string]any{"date": "2030-01-08", "start_time": "09:00", "end_time": "10:00"})
	if status != http.StatusBadRequest || response.Error == nil || response.Error.Field != "exchange" {
		t.Fatalf("expected a missing exchange to be reported, got %d %+v", status, response.Error)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	testCases := []struct {
		name           string
		trustedProxies []string
		secondStatus   int
	}{
		{name: "no trusted proxies", secondStatus: http.StatusTooManyRequests},
		{name: "trusted proxy", trustedProxies: []string{"192.0.2.1"}, secondStatus: http.StatusOK},
	}
	for _, testCase := range testCases {
		fx := newConfiguredAPIFixture(t, func(cfg *Config) {
			cfg.RateLimitRPS = 0.001
			cfg.RateLimitBurst = 1
			cfg.TrustedProxies = testCase.trustedProxies
		})
		statuses := make([]int, 0, 2)
		for _, forwardedFor := range []string{"203.0.113.10", "203.0.113.11"} {
			request := httptest.NewRequest(http.MethodGet, "/api/v1/availability?exchange=exchange-1&date=2030-01-07", nil)
			request.RemoteAddr = "192.0.2.1:41000"
			request.Header.Set("X-Forwarded-For", forwardedFor)
			recorder := httptest.NewRecorder()
			fx.router.ServeHTTP(recorder, request)
			statuses = append(statuses, recorder.Code)
		}
		if statuses[0] != http.StatusOK || statuses[1] != testCase.secondStatus {
			t.Fatalf("%s: expected 200 then %d, got %v", testCase.name, testCase.secondStatus, statuses)
		}
	}
}

func TestNewRouterRejectsMalformedTrustedProxies(t *testing.T) {
	_, err := NewRouter(Config{JWTSigningKey: testSigningKey, TrustedProxies: []string{"not-an-ip"}}, Dependencies{Service: &booking.Service{}})
	if err == nil {
		t.Fatalf("expected malformed proxies to be rejected")
	}
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t)
	recorder := httptest.NewRecorder()
	fx.router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func mustExchangeID(t *testing.T, raw string) booking.ExchangeID {
	t.Helper()
	id, err := booking.NewExchangeID(raw)
	if err != nil {
		t.Fatalf("exchange id: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, raw string) booking.UserID {
	t.Helper()
	id, err := booking.NewUserID(raw)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}
