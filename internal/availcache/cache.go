// Package availcache puts a redis read-through cache in front of availability reads.
package availcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	keyPrefix        = "availability"
	generationPrefix = "availability-gen"
	DefaultTTL       = 30 * time.Second
	// generation counters must outlive every entry stamped with them.
	minGenerationTTL = 24 * time.Hour
)

// Source computes availability on a cache miss.
type Source interface {
	Availability(ctx context.Context, query booking.AvailabilityQuery) (booking.Availability, error)
	Today() booking.Date
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Cache serves availability from redis and falls back to Source.
// Redis failures degrade to uncached reads.
//
// Entry keys carry the exchange and day generations read before the source
// call. Invalidation bumps a generation instead of deleting entries, so a
// read that raced a write stores its result under a key nobody reads again.
type Cache struct {
	client redisClient
	source Source
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps source with a cache backed by client.
func New(client *redis.Client, source Source, ttl time.Duration, logger *zap.Logger) *Cache {
	return newCache(client, source, ttl, logger)
}

func newCache(client redisClient, source Source, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, source: source, ttl: ttl, logger: logger}
}

type cachedSlot struct {
	Start             string `json:"start"`
	End               string `json:"end"`
	IsAvailable       bool   `json:"is_available"`
	AvailableCapacity int    `json:"available_capacity"`
	MaxCapacity       int    `json:"max_capacity"`
	CurrentBookings   int    `json:"current_bookings"`
}

type cachedAvailability struct {
	ExchangeID      string       `json:"exchange_id"`
	Date            string       `json:"date"`
	DurationMinutes int          `json:"duration_minutes"`
	Reason          string       `json:"reason,omitempty"`
	Slots           []cachedSlot `json:"slots"`
}

func (cache *Cache) Availability(ctx context.Context, query booking.AvailabilityQuery) (booking.Availability, error) {
	if query.Date.IsZero() {
		query.Date = cache.source.Today()
	}
	if query.DurationMinutes == 0 {
		query.DurationMinutes = booking.DefaultSlotDurationMinutes
	}
	generation, err := cache.generation(ctx, query.ExchangeID, query.Date)
	if err != nil {
		cache.logger.Warn("availability cache generation read failed", zap.String("exchange_id", query.ExchangeID.String()), zap.Error(err))
		return cache.source.Availability(ctx, query)
	}
	key := availabilityKey(query.ExchangeID, query.Date, query.DurationMinutes, generation)
	raw, err := cache.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		cached, decodeErr := decodeAvailability(raw)
		if decodeErr == nil {
			return cached, nil
		}
		cache.logger.Warn("availability cache entry unreadable", zap.String("key", key), zap.Error(decodeErr))
	case !errors.Is(err, redis.Nil):
		cache.logger.Warn("availability cache read failed", zap.String("key", key), zap.Error(err))
	}

	result, err := cache.source.Availability(ctx, query)
	if err != nil {
		return booking.Availability{}, err
	}
	encoded, err := encodeAvailability(result)
	if err != nil {
		return result, nil
	}
	if err := cache.client.Set(ctx, key, encoded, cache.ttl).Err(); err != nil {
		cache.logger.Warn("availability cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

func (cache *Cache) Today() booking.Date {
	return cache.source.Today()
}

// InvalidateDate retires every cached duration of one exchange day.
func (cache *Cache) InvalidateDate(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) error {
	return cache.bump(ctx, dateGenerationKey(exchangeID, date))
}

// InvalidateExchange retires every cached day of one exchange.
func (cache *Cache) InvalidateExchange(ctx context.Context, exchangeID booking.ExchangeID) error {
	return cache.bump(ctx, exchangeGenerationKey(exchangeID))
}

func (cache *Cache) bump(ctx context.Context, key string) error {
	if err := cache.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", key, err)
	}
	ttl := minGenerationTTL
	if 2*cache.ttl > ttl {
		ttl = 2 * cache.ttl
	}
	if err := cache.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// generation returns "<exchange>.<day>" counters; missing counters read as zero.
func (cache *Cache) generation(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) (string, error) {
	values, err := cache.client.MGet(ctx, exchangeGenerationKey(exchangeID), dateGenerationKey(exchangeID, date)).Result()
	if err != nil {
		return "", err
	}
	counters := make([]int64, 2)
	for index := 0; index < len(values) && index < len(counters); index++ {
		raw, ok := values[index].(string)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("generation %q: %w", raw, err)
		}
		counters[index] = parsed
	}
	return fmt.Sprintf("%d.%d", counters[0], counters[1]), nil
}

func availabilityKey(exchangeID booking.ExchangeID, date booking.Date, durationMinutes int, generation string) string {
	return fmt.Sprintf("%s:%s:%s:%d:g%s", keyPrefix, exchangeID, date, durationMinutes, generation)
}

func exchangeGenerationKey(exchangeID booking.ExchangeID) string {
	return fmt.Sprintf("%s:%s", generationPrefix, exchangeID)
}

func dateGenerationKey(exchangeID booking.ExchangeID, date booking.Date) string {
	return fmt.Sprintf("%s:%s:%s", generationPrefix, exchangeID, date)
}

func encodeAvailability(availability booking.Availability) ([]byte, error) {
	cached := cachedAvailability{
		ExchangeID:      availability.ExchangeID.String(),
		Date:            availability.Date.String(),
		DurationMinutes: availability.DurationMinutes,
		Reason:          availability.Reason,
		Slots:           make([]cachedSlot, 0, len(availability.Slots)),
	}
	for _, slot := range availability.Slots {
		cached.Slots = append(cached.Slots, cachedSlot{
			Start:             slot.Start.String(),
			End:               slot.End.String(),
			IsAvailable:       slot.IsAvailable,
			AvailableCapacity: slot.AvailableCapacity,
			MaxCapacity:       slot.MaxCapacity,
			CurrentBookings:   slot.CurrentBookings,
		})
	}
	return json.Marshal(cached)
}

func decodeAvailability(raw []byte) (booking.Availability, error) {
	var cached cachedAvailability
	if err := json.Unmarshal(raw, &cached); err != nil {
		return booking.Availability{}, err
	}
	exchangeID, err := booking.NewExchangeID(cached.ExchangeID)
	if err != nil {
		return booking.Availability{}, err
	}
	date, err := booking.ParseDate(cached.Date)
	if err != nil {
		return booking.Availability{}, err
	}
	result := booking.Availability{
		ExchangeID:      exchangeID,
		Date:            date,
		DurationMinutes: cached.DurationMinutes,
		Reason:          cached.Reason,
		Slots:           make([]booking.AvailableSlot, 0, len(cached.Slots)),
	}
	for _, slot := range cached.Slots {
		start, err := booking.ParseTimeOfDay(slot.Start)
		if err != nil {
			return booking.Availability{}, err
		}
		end, err := booking.ParseTimeOfDay(slot.End)
		if err != nil {
			return booking.Availability{}, err
		}
		result.Slots = append(result.Slots, booking.AvailableSlot{
			Start:             start,
			End:               end,
			IsAvailable:       slot.IsAvailable,
			AvailableCapacity: slot.AvailableCapacity,
			MaxCapacity:       slot.MaxCapacity,
			CurrentBookings:   slot.CurrentBookings,
		})
	}
	return result, nil
}
