package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type stubState struct {
	hours      []BusinessHours
	slots      map[SlotID]TimeSlot
	bookings   map[BookingID]Booking
	activeKeys map[string]BookingID
	sequence   int
}

func (state *stubState) clone() *stubState {
	copied := &stubState{
		hours:      append([]BusinessHours(nil), state.hours...),
		slots:      make(map[SlotID]TimeSlot, len(state.slots)),
		bookings:   make(map[BookingID]Booking, len(state.bookings)),
		activeKeys: make(map[string]BookingID, len(state.activeKeys)),
		sequence:   state.sequence,
	}
	for id, slot := range state.slots {
		copied.slots[id] = slot
	}
	for id, booking := range state.bookings {
		copied.bookings[id] = booking
	}
	for key, id := range state.activeKeys {
		copied.activeKeys[key] = id
	}
	return copied
}

func (state *stubState) nextID(prefix string) string {
	state.sequence++
	return fmt.Sprintf("%s-%d", prefix, state.sequence)
}

// stubStore is an in-memory Store. Transactions are serialised and roll back
// on error.
type stubStore struct {
	mutex *sync.Mutex
	root  **stubState
	tx    *stubState
	txs   *int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	state := &stubState{
		slots:      map[SlotID]TimeSlot{},
		bookings:   map[BookingID]Booking{},
		activeKeys: map[string]BookingID{},
	}
	return &stubStore{mutex: &sync.Mutex{}, root: &state, txs: new(int)}
}

// view runs fn against the transaction state, or against the committed state under the lock.
func (store *stubStore) view(fn func(state *stubState) error) error {
	if store.tx != nil {
		return fn(store.tx)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return fn(*store.root)
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.tx != nil {
		return fn(ctx, store)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	*store.txs++
	working := (*store.root).clone()
	txStore := &stubStore{mutex: store.mutex, root: store.root, tx: working, txs: store.txs}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	*store.root = working
	return nil
}

func (store *stubStore) ListBusinessHours(_ context.Context, exchangeID ExchangeID) ([]BusinessHours, error) {
	var rows []BusinessHours
	err := store.view(func(state *stubState) error {
		for _, row := range state.hours {
			if row.ExchangeID == exchangeID {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

func (store *stubStore) ListBusinessHoursForDay(_ context.Context, exchangeID ExchangeID, day Weekday) ([]BusinessHours, error) {
	var rows []BusinessHours
	err := store.view(func(state *stubState) error {
		for _, row := range state.hours {
			if row.ExchangeID == exchangeID && row.DayOfWeek == day {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

func (store *stubStore) ReplaceBusinessHoursForDay(_ context.Context, hours BusinessHours) (BusinessHours, bool, error) {
	created := true
	err := store.view(func(state *stubState) error {
		kept := state.hours[:0:0]
		for _, row := range state.hours {
			if row.ExchangeID == hours.ExchangeID && row.DayOfWeek == hours.DayOfWeek {
				created = false
				continue
			}
			kept = append(kept, row)
		}
		hours.ID = state.nextID("hours")
		state.hours = append(kept, hours)
		return nil
	})
	return hours, created, err
}

func (store *stubStore) InsertBusinessHours(_ context.Context, hours BusinessHours) (BusinessHours, error) {
	err := store.view(func(state *stubState) error {
		for _, row := range state.hours {
			if row.ExchangeID != hours.ExchangeID || row.DayOfWeek != hours.DayOfWeek {
				continue
			}
			if sameOpenTime(row.OpenTime, hours.OpenTime) {
				return ErrDuplicateShift
			}
		}
		hours.ID = state.nextID("hours")
		state.hours = append(state.hours, hours)
		return nil
	})
	return hours, err
}

func sameOpenTime(left *TimeOfDay, right *TimeOfDay) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}

func (state *stubState) slotByKey(key SlotKey) (TimeSlot, bool) {
	for _, slot := range state.slots {
		if slot.Key() == key {
			return slot, true
		}
	}
	return TimeSlot{}, false
}

func (store *stubStore) FindTimeSlot(_ context.Context, key SlotKey) (TimeSlot, bool, error) {
	var (
		slot  TimeSlot
		found bool
	)
	err := store.view(func(state *stubState) error {
		slot, found = state.slotByKey(key)
		return nil
	})
	return slot, found, err
}

func (store *stubStore) ListTimeSlots(_ context.Context, exchangeID ExchangeID, date Date) ([]TimeSlot, error) {
	var slots []TimeSlot
	err := store.view(func(state *stubState) error {
		for _, slot := range state.slots {
			if slot.ExchangeID() == exchangeID && slot.Date().Equal(date) {
				slots = append(slots, slot)
			}
		}
		return nil
	})
	sort.Slice(slots, func(left, right int) bool {
		return slots[left].Interval().Start.Before(slots[right].Interval().Start)
	})
	return slots, err
}

func (store *stubStore) InsertTimeSlotIfAbsent(_ context.Context, key SlotKey, maxCapacity int) (bool, error) {
	created := false
	err := store.view(func(state *stubState) error {
		if _, found := state.slotByKey(key); found {
			return nil
		}
		slotID, err := NewSlotID(state.nextID("slot"))
		if err != nil {
			return err
		}
		slot, err := NewTimeSlot(slotID, key, maxCapacity, 0)
		if err != nil {
			return err
		}
		state.slots[slotID] = slot
		created = true
		return nil
	})
	return created, err
}

func (store *stubStore) LockTimeSlot(_ context.Context, key SlotKey) (TimeSlot, error) {
	var slot TimeSlot
	err := store.view(func(state *stubState) error {
		found := false
		slot, found = state.slotByKey(key)
		if !found {
			return ErrSlotNotFound
		}
		return nil
	})
	return slot, err
}

func (store *stubStore) LockTimeSlotByID(_ context.Context, slotID SlotID) (TimeSlot, error) {
	var slot TimeSlot
	err := store.view(func(state *stubState) error {
		found := false
		slot, found = state.slots[slotID]
		if !found {
			return ErrSlotNotFound
		}
		return nil
	})
	return slot, err
}

func (store *stubStore) SaveSlotCounters(_ context.Context, slot TimeSlot) error {
	return store.view(func(state *stubState) error {
		if _, found := state.slots[slot.ID()]; !found {
			return ErrSlotNotFound
		}
		state.slots[slot.ID()] = slot
		return nil
	})
}

func (store *stubStore) InsertBooking(_ context.Context, draft BookingDraft) (BookingID, error) {
	var bookingID BookingID
	err := store.view(func(state *stubState) error {
		slot, found := state.slots[draft.SlotID]
		if !found {
			return ErrSlotNotFound
		}
		id, err := NewBookingID(state.nextID("booking"))
		if err != nil {
			return err
		}
		if draft.ActiveKey != nil {
			if _, taken := state.activeKeys[*draft.ActiveKey]; taken {
				return ErrDuplicateActiveBooking
			}
			state.activeKeys[*draft.ActiveKey] = id
		}
		state.bookings[id] = Booking{
			ID:         id,
			UserID:     draft.UserID,
			ExchangeID: draft.ExchangeID,
			Slot:       slot,
			Status:     draft.Status,
			Contact:    draft.Contact,
			Notes:      draft.Notes,
			CreatedAt:  draft.CreatedAt,
			UpdatedAt:  draft.CreatedAt,
		}
		bookingID = id
		return nil
	})
	return bookingID, err
}

func (state *stubState) hydrate(booking Booking) Booking {
	if slot, found := state.slots[booking.Slot.ID()]; found {
		booking.Slot = slot
	}
	return booking
}

func (store *stubStore) GetBooking(_ context.Context, bookingID BookingID) (Booking, error) {
	var booking Booking
	err := store.view(func(state *stubState) error {
		stored, found := state.bookings[bookingID]
		if !found {
			return ErrBookingNotFound
		}
		booking = state.hydrate(stored)
		return nil
	})
	return booking, err
}

func (store *stubStore) LockBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	return store.GetBooking(ctx, bookingID)
}

func (store *stubStore) UpdateBookingStatus(_ context.Context, update BookingUpdate) error {
	return store.view(func(state *stubState) error {
		stored, found := state.bookings[update.BookingID]
		if !found {
			return ErrBookingNotFound
		}
		if stored.Status != update.From {
			return ErrConcurrentUpdate
		}
		if update.ActiveKey != nil {
			if owner, taken := state.activeKeys[*update.ActiveKey]; taken && owner != stored.ID {
				return ErrDuplicateActiveBooking
			}
		}
		for key, owner := range state.activeKeys {
			if owner == stored.ID {
				delete(state.activeKeys, key)
			}
		}
		if update.ActiveKey != nil {
			state.activeKeys[*update.ActiveKey] = stored.ID
		}
		state.bookings[update.BookingID] = update.Apply(stored)
		return nil
	})
}

func (store *stubStore) HasActiveBookingOnDate(_ context.Context, userID UserID, exchangeID ExchangeID, date Date) (bool, error) {
	active := false
	err := store.view(func(state *stubState) error {
		for _, stored := range state.bookings {
			booking := state.hydrate(stored)
			if booking.UserID == userID && booking.ExchangeID == exchangeID && booking.Status.IsActive() && booking.Slot.Date().Equal(date) {
				active = true
			}
		}
		return nil
	})
	return active, err
}

func (store *stubStore) ListBookings(_ context.Context, filter BookingFilter) ([]Booking, error) {
	var bookings []Booking
	err := store.view(func(state *stubState) error {
		for _, stored := range state.bookings {
			booking := state.hydrate(stored)
			if !filter.UserID.IsZero() && booking.UserID != filter.UserID {
				continue
			}
			if !filter.ExchangeID.IsZero() && booking.ExchangeID != filter.ExchangeID {
				continue
			}
			if filter.Status != "" && booking.Status != filter.Status {
				continue
			}
			if !filter.Date.IsZero() && !booking.Slot.Date().Equal(filter.Date) {
				continue
			}
			bookings = append(bookings, booking)
		}
		return nil
	})
	sort.Slice(bookings, func(left, right int) bool {
		return bookings[left].ID.String() < bookings[right].ID.String()
	})
	if filter.Limit > 0 && len(bookings) > filter.Limit {
		bookings = bookings[:filter.Limit]
	}
	return bookings, err
}

func (store *stubStore) ListPendingBookingsOnOrBefore(_ context.Context, date Date) ([]Booking, error) {
	var bookings []Booking
	err := store.view(func(state *stubState) error {
		for _, stored := range state.bookings {
			booking := state.hydrate(stored)
			if booking.Status == StatusPending && !booking.Slot.Date().After(date) {
				bookings = append(bookings, booking)
			}
		}
		return nil
	})
	return bookings, err
}

func (store *stubStore) CountBookingsByStatus(_ context.Context, exchangeID ExchangeID) (map[Status]int, error) {
	counts := map[Status]int{}
	err := store.view(func(state *stubState) error {
		for _, booking := range state.bookings {
			if booking.ExchangeID == exchangeID {
				counts[booking.Status]++
			}
		}
		return nil
	})
	return counts, err
}

func (store *stubStore) SlotUsage(_ context.Context, exchangeID ExchangeID) (SlotUsage, error) {
	var usage SlotUsage
	err := store.view(func(state *stubState) error {
		for _, slot := range state.slots {
			if slot.ExchangeID() != exchangeID {
				continue
			}
			usage.TotalSlots++
			usage.BookedUnits += slot.CurrentBookings()
			usage.CapacityUnits += slot.MaxCapacity()
		}
		return nil
	})
	return usage, err
}

func (store *stubStore) slotAt(test *testing.T, exchangeID ExchangeID, date Date, start string, end string) TimeSlot {
	test.Helper()
	key := SlotKey{ExchangeID: exchangeID, Date: date, Interval: mustInterval(test, start, end)}
	slot, found, err := store.FindTimeSlot(context.Background(), key)
	if err != nil || !found {
		test.Fatalf("slot %s %s-%s not found: %v", date, start, end, err)
	}
	return slot
}

func (store *stubStore) slotCount() int {
	count := 0
	_ = store.view(func(state *stubState) error {
		count = len(state.slots)
		return nil
	})
	return count
}

// failingStore fails every call with err.
type failingStore struct {
	*stubStore
	err error
}

func newFailingStore(test *testing.T, err error) *failingStore {
	test.Helper()
	return &failingStore{stubStore: newStubStore(test), err: err}
}

func (store *failingStore) WithTx(context.Context, func(context.Context, Store) error) error {
	return store.err
}

func (store *failingStore) ListBusinessHoursForDay(context.Context, ExchangeID, Weekday) ([]BusinessHours, error) {
	return nil, store.err
}

func (store *failingStore) HasActiveBookingOnDate(context.Context, UserID, ExchangeID, Date) (bool, error) {
	return false, store.err
}

type stubDirectory struct {
	users     map[UserID]User
	exchanges map[ExchangeID]Exchange
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: map[UserID]User{}, exchanges: map[ExchangeID]Exchange{}}
}

func (directory *stubDirectory) FindUser(_ context.Context, userID UserID) (User, bool, error) {
	user, found := directory.users[userID]
	return user, found, nil
}

func (directory *stubDirectory) FindExchange(_ context.Context, exchangeID ExchangeID) (Exchange, bool, error) {
	exchange, found := directory.exchanges[exchangeID]
	return exchange, found, nil
}

type recordingNotifier struct {
	mutex         sync.Mutex
	notifications []Notification
	err           error
}

func (notifier *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.err
}

func (notifier *recordingNotifier) kinds() []EventKind {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	kinds := make([]EventKind, 0, len(notifier.notifications))
	for _, notification := range notifier.notifications {
		kinds = append(kinds, notification.Kind)
	}
	return kinds
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

// fixture is a service over a stub store with one exchange, its owner, a
// customer and an admin. The clock reads Monday 2030-01-07 08:00 UTC.
type fixture struct {
	store     *stubStore
	directory *stubDirectory
	notifier  *recordingNotifier
	logger    *recorderLogger
	service   *Service
	now       *time.Time
	exchange  Exchange
	owner     Actor
	customer  Actor
	admin     Actor
	monday    Date
}

func newFixture(test *testing.T) *fixture {
	test.Helper()
	now := time.Date(2030, time.January, 7, 8, 0, 0, 0, time.UTC)
	current := &now
	store := newStubStore(test)
	directory := newStubDirectory()
	notifier := &recordingNotifier{}
	logger := &recorderLogger{}
	ownerID := mustUserID(test, "owner-1")
	customerID := mustUserID(test, "customer-1")
	exchange := Exchange{ID: mustExchangeID(test, "exchange-1"), Name: "Corner Cafe", OwnerID: ownerID}
	directory.exchanges[exchange.ID] = exchange
	directory.users[ownerID] = User{ID: ownerID, Email: "owner@example.com", DisplayName: "Olive Owner"}
	directory.users[customerID] = User{ID: customerID, Email: "casey@example.com", DisplayName: "Casey Customer"}
	service, err := NewService(store, directory, func() time.Time { return *current },
		WithNotifier(notifier),
		WithOperationLogger(logger),
	)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return &fixture{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		service:   service,
		now:       current,
		exchange:  exchange,
		owner:     NewActor(ownerID, false),
		customer:  NewActor(customerID, false),
		admin:     NewActor(mustUserID(test, "admin-1"), true),
		monday:    NewDate(2030, time.January, 7),
	}
}

func (fx *fixture) addUser(test *testing.T, raw string) Actor {
	test.Helper()
	userID := mustUserID(test, raw)
	fx.directory.users[userID] = User{ID: userID, Email: raw + "@example.com", DisplayName: raw}
	return NewActor(userID, false)
}

func (fx *fixture) setHours(test *testing.T, entries ...HoursEntry) {
	test.Helper()
	results, err := fx.service.SetBusinessHours(context.Background(), fx.owner, fx.exchange.ID, entries)
	if err != nil {
		test.Fatalf("set business hours: %v", err)
	}
	for _, result := range results {
		if result.Err != nil {
			test.Fatalf("set business hours entry %d: %v", result.Index, result.Err)
		}
	}
}

func (fx *fixture) book(test *testing.T, actor Actor, date Date, start string, end string) Booking {
	test.Helper()
	booking, err := fx.service.CreateBooking(context.Background(), fx.request(test, actor, date, start, end))
	if err != nil {
		test.Fatalf("create booking %s %s-%s: %v", date, start, end, err)
	}
	return booking
}

func (fx *fixture) request(test *testing.T, actor Actor, date Date, start string, end string) CreateBookingRequest {
	test.Helper()
	return CreateBookingRequest{
		Actor:      actor,
		ExchangeID: fx.exchange.ID,
		Date:       date,
		Start:      mustTimeOfDay(test, start),
		End:        mustTimeOfDay(test, end),
	}
}

func mustExchangeID(test *testing.T, raw string) ExchangeID {
	test.Helper()
	id, err := NewExchangeID(raw)
	if err != nil {
		test.Fatalf("exchange id: %v", err)
	}
	return id
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	id, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return id
}

func mustTimeOfDay(test *testing.T, raw string) TimeOfDay {
	test.Helper()
	value, err := ParseTimeOfDay(raw)
	if err != nil {
		test.Fatalf("time of day %q: %v", raw, err)
	}
	return value
}

func mustInterval(test *testing.T, start string, end string) Interval {
	test.Helper()
	interval, err := NewInterval(mustTimeOfDay(test, start), mustTimeOfDay(test, end))
	if err != nil {
		test.Fatalf("interval %s-%s: %v", start, end, err)
	}
	return interval
}

func mustDate(test *testing.T, raw string) Date {
	test.Helper()
	date, err := ParseDate(raw)
	if err != nil {
		test.Fatalf("date %q: %v", raw, err)
	}
	return date
}
