package availcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// fakeRedis is an in-memory stand-in for the few commands the cache issues.
type fakeRedis struct {
	mutex  sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (client *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.getErr != nil {
		return redis.NewStringResult("", client.getErr)
	}
	value, found := client.values[key]
	if !found {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (client *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	switch typed := value.(type) {
	case []byte:
		client.values[key] = string(typed)
	case string:
		client.values[key] = typed
	}
	client.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (client *fakeRedis) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.getErr != nil {
		return redis.NewSliceResult(nil, client.getErr)
	}
	values := make([]interface{}, len(keys))
	for index, key := range keys {
		if value, found := client.values[key]; found {
			values[index] = value
		}
	}
	return redis.NewSliceResult(values, nil)
}

func (client *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	current, _ := strconv.ParseInt(client.values[key], 10, 64)
	current++
	client.values[key] = strconv.FormatInt(current, 10)
	return redis.NewIntResult(current, nil)
}

func (client *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	_, found := client.values[key]
	if found {
		client.ttls[key] = expiration
	}
	return redis.NewBoolResult(found, nil)
}

type countingSource struct {
	calls  int
	today  booking.Date
	err    error
	during func(query booking.AvailabilityQuery)
}

func (source *countingSource) Availability(ctx context.Context, query booking.AvailabilityQuery) (booking.Availability, error) {
	source.calls++
	if source.during != nil {
		source.during(query)
	}
	if source.err != nil {
		return booking.Availability{}, source.err
	}
	start, _ := booking.ParseTimeOfDay("09:00")
	end, _ := booking.ParseTimeOfDay("10:00")
	return booking.Availability{
		ExchangeID:      query.ExchangeID,
		Date:            query.Date,
		DurationMinutes: query.DurationMinutes,
		Slots: []booking.AvailableSlot{
			{Start: start, End: end, IsAvailable: true, AvailableCapacity: 2, MaxCapacity: 3, CurrentBookings: 1},
		},
	}, nil
}

func (source *countingSource) Today() booking.Date {
	return source.today
}

func mustExchangeID(test *testing.T, raw string) booking.ExchangeID {
	test.Helper()
	id, err := booking.NewExchangeID(raw)
	if err != nil {
		test.Fatalf("exchange id: %v", err)
	}
	return id
}

func TestCacheServesRepeatReadsFromRedis(test *testing.T) {
	test.Parallel()
	client := newFakeRedis()
	source := &countingSource{today: booking.NewDate(2030, time.January, 7)}
	cache := newCache(client, source, time.Minute, zap.NewNop())
	query := booking.AvailabilityQuery{ExchangeID: mustExchangeID(test, "exchange-1")}

	first, err := cache.Availability(context.Background(), query)
	if err != nil {
		test.Fatalf("first read: %v", err)
	}
	second, err := cache.Availability(context.Background(), query)
	if err != nil {
		test.Fatalf("second read: %v", err)
	}
	if source.calls != 1 {
		test.Fatalf("expected one source call, got %d", source.calls)
	}
	if second.Date.String() != "2030-01-07" || second.DurationMinutes != booking.DefaultSlotDurationMinutes {
		test.Fatalf("defaults were not applied before caching: %+v", second)
	}
	if len(second.Slots) != 1 || second.Slots[0] != first.Slots[0] {
		test.Fatalf("cached slots differ: %+v vs %+v", second.Slots, first.Slots)
	}
	if client.ttls["availability:exchange-1:2030-01-07:60:g0.0"] != time.Minute {
		test.Fatalf("expected ttl on %v", client.ttls)
	}
}

func TestCacheInvalidation(test *testing.T) {
	test.Parallel()
	client := newFakeRedis()
	source := &countingSource{today: booking.NewDate(2030, time.January, 7)}
	cache := newCache(client, source, 0, nil)
	exchangeID := mustExchangeID(test, "exchange-1")
	ctx := context.Background()
	monday := booking.NewDate(2030, time.January, 7)
	tuesday := monday.AddDays(1)
	mondayShort := booking.AvailabilityQuery{ExchangeID: exchangeID, Date: monday, DurationMinutes: 30}
	mondayLong := booking.AvailabilityQuery{ExchangeID: exchangeID, Date: monday, DurationMinutes: 60}
	tuesdayLong := booking.AvailabilityQuery{ExchangeID: exchangeID, Date: tuesday, DurationMinutes: 60}
	otherExchange := booking.AvailabilityQuery{ExchangeID: mustExchangeID(test, "exchange-2"), Date: monday, DurationMinutes: 60}
	read := func(queries ...booking.AvailabilityQuery) int {
		test.Helper()
		before := source.calls
		for _, query := range queries {
			if _, err := cache.Availability(ctx, query); err != nil {
				test.Fatalf("read %+v: %v", query, err)
			}
		}
		return source.calls - before
	}
	if misses := read(mondayShort, mondayLong, tuesdayLong, otherExchange); misses != 4 {
		test.Fatalf("expected a cold cache, got %d misses", misses)
	}

	if err := cache.InvalidateDate(ctx, exchangeID, monday); err != nil {
		test.Fatalf("invalidate date: %v", err)
	}
	if misses := read(mondayShort, mondayLong); misses != 2 {
		test.Fatalf("expected both monday durations recomputed, got %d misses", misses)
	}
	if misses := read(tuesdayLong, otherExchange); misses != 0 {
		test.Fatalf("other days must stay cached, got %d misses", misses)
	}
	if client.ttls["availability-gen:exchange-1:2030-01-07"] < minGenerationTTL {
		test.Fatalf("generation counter needs a ttl, got %v", client.ttls)
	}

	if err := cache.InvalidateExchange(ctx, exchangeID); err != nil {
		test.Fatalf("invalidate exchange: %v", err)
	}
	if misses := read(mondayLong, tuesdayLong); misses != 2 {
		test.Fatalf("expected every exchange-1 day recomputed, got %d misses", misses)
	}
	if misses := read(otherExchange); misses != 0 {
		test.Fatalf("other exchanges must survive, got %d misses", misses)
	}
}

func TestCacheDropsResultsComputedAcrossAnInvalidation(test *testing.T) {
	test.Parallel()
	client := newFakeRedis()
	monday := booking.NewDate(2030, time.January, 7)
	source := &countingSource{today: monday}
	cache := newCache(client, source, time.Minute, zap.NewNop())
	ctx := context.Background()
	exchangeID := mustExchangeID(test, "exchange-1")
	// A booking commits while the first read is still computing.
	source.during = func(query booking.AvailabilityQuery) {
		source.during = nil
		if err := cache.InvalidateDate(ctx, query.ExchangeID, query.Date); err != nil {
			test.Errorf("invalidate: %v", err)
		}
	}
	query := booking.AvailabilityQuery{ExchangeID: exchangeID, Date: monday}
	if _, err := cache.Availability(ctx, query); err != nil {
		test.Fatalf("first read: %v", err)
	}
	if _, err := cache.Availability(ctx, query); err != nil {
		test.Fatalf("second read: %v", err)
	}
	if source.calls != 2 {
		test.Fatalf("a result computed before the write must not be served after it, got %d source calls", source.calls)
	}
	if _, err := cache.Availability(ctx, query); err != nil {
		test.Fatalf("third read: %v", err)
	}
	if source.calls != 2 {
		test.Fatalf("expected the fresh result cached, got %d source calls", source.calls)
	}
}

func TestCacheFallsBackWhenRedisFails(test *testing.T) {
	test.Parallel()
	client := newFakeRedis()
	client.getErr = errors.New("connection refused")
	source := &countingSource{today: booking.NewDate(2030, time.January, 7)}
	cache := newCache(client, source, time.Minute, zap.NewNop())
	query := booking.AvailabilityQuery{ExchangeID: mustExchangeID(test, "exchange-1")}
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := cache.Availability(context.Background(), query); err != nil {
			test.Fatalf("read %d: %v", attempt, err)
		}
	}
	if source.calls != 2 {
		test.Fatalf("expected every read to hit the source, got %d", source.calls)
	}
}

func TestCacheDoesNotStoreErrors(test *testing.T) {
	test.Parallel()
	client := newFakeRedis()
	source := &countingSource{err: booking.ErrExchangeNotFound}
	cache := newCache(client, source, time.Minute, zap.NewNop())
	_, err := cache.Availability(context.Background(), booking.AvailabilityQuery{ExchangeID: mustExchangeID(test, "missing"), Date: booking.NewDate(2030, time.January, 7)})
	if !errors.Is(err, booking.ErrExchangeNotFound) {
		test.Fatalf("expected ErrExchangeNotFound, got %v", err)
	}
	if len(client.values) != 0 {
		test.Fatalf("errors must not be cached")
	}
}
