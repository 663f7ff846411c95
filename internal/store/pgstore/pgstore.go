package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintBusinessHoursDayOpen = "idx_business_hours_day_open"
	constraintBookingsActiveKey    = "idx_bookings_active_key"
	pgUniqueViolationCode          = "23505"
	errorOperationStore            = "store"
	errorSubjectHours              = "business_hours"
	errorSubjectTimeSlot           = "time_slot"
	errorSubjectBooking            = "booking"
	errorSubjectStatistics         = "statistics"
	errorSubjectTransaction        = "transaction"
	errorCodeBegin                 = "begin"
	errorCodeCommit                = "commit"
	errorCodeCount                 = "count"
	errorCodeDelete                = "delete"
	errorCodeDuplicate             = "duplicate"
	errorCodeGet                   = "get"
	errorCodeInsert                = "insert"
	errorCodeInvalid               = "invalid"
	errorCodeList                  = "list"
	errorCodeLock                  = "lock"
	errorCodeUpdate                = "update"
	errorCodeUpdateStatus          = "update_status"

	columnTimeLayout = "15:04:05"

	sqlHoursColumns = `id, exchange_id, day_of_week, open_time, close_time, is_closed`

	sqlListBusinessHours = `
		select ` + sqlHoursColumns + ` from business_hours
		where exchange_id = $1
		order by day_of_week, open_time
	`

	sqlListBusinessHoursForDay = `
		select ` + sqlHoursColumns + ` from business_hours
		where exchange_id = $1 and day_of_week = $2
		order by open_time
	`

	sqlDeleteBusinessHoursForDay = `
		delete from business_hours where exchange_id = $1 and day_of_week = $2
	`

	sqlInsertBusinessHours = `
		insert into business_hours(id, exchange_id, day_of_week, open_time, close_time, is_closed, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
	`

	sqlSlotColumns = `id, exchange_id, slot_date, start_time, end_time, max_capacity, current_bookings`

	sqlSelectSlotByKey = `
		select ` + sqlSlotColumns + ` from time_slots
		where exchange_id = $1 and slot_date = $2 and start_time = $3 and end_time = $4
	`

	sqlListSlotsForDate = `
		select ` + sqlSlotColumns + ` from time_slots
		where exchange_id = $1 and slot_date = $2
		order by start_time, end_time
	`

	sqlSelectSlotByID = `
		select ` + sqlSlotColumns + ` from time_slots where id = $1
	`

	sqlSelectSlotsByIDs = `
		select ` + sqlSlotColumns + ` from time_slots where id = any($1)
	`

	sqlInsertSlotIfAbsent = `
		insert into time_slots(id, exchange_id, slot_date, start_time, end_time, max_capacity, current_bookings, is_available, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, 0, true, now(), now())
		on conflict (exchange_id, slot_date, start_time, end_time) do nothing
	`

	sqlUpdateSlotCounters = `
		update time_slots
		set current_bookings = $2, is_available = $3, updated_at = now()
		where id = $1
	`

	sqlBookingColumns = `
		bookings.id, bookings.user_id, bookings.exchange_id, bookings.time_slot_id, bookings.status,
		bookings.customer_name, bookings.customer_email, bookings.customer_phone,
		bookings.notes, bookings.admin_notes, bookings.cancellation_reason,
		bookings.cancelled_at, bookings.created_at, bookings.updated_at
	`

	sqlInsertBooking = `
		insert into bookings(
			id, user_id, exchange_id, time_slot_id, status, active_key,
			customer_name, customer_email, customer_phone, notes, admin_notes, cancellation_reason,
			created_at, updated_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', '', $11, $11)
	`

	sqlSelectBooking = `
		select ` + sqlBookingColumns + ` from bookings where bookings.id = $1
	`

	sqlUpdateBookingStatus = `
		update bookings
		set status = $3,
			active_key = $8,
			admin_notes = coalesce($4, admin_notes),
			cancellation_reason = case when $5::timestamptz is null then cancellation_reason else $6 end,
			cancelled_at = coalesce($5::timestamptz, cancelled_at),
			updated_at = $7
		where id = $1 and status = $2
	`

	sqlCountActiveOnDate = `
		select count(*) from bookings
		join time_slots on time_slots.id = bookings.time_slot_id
		where bookings.user_id = $1 and bookings.exchange_id = $2
		and bookings.status in ('pending', 'confirmed')
		and time_slots.slot_date = $3
	`

	sqlListPendingOnOrBefore = `
		select ` + sqlBookingColumns + ` from bookings
		join time_slots on time_slots.id = bookings.time_slot_id
		where bookings.status = 'pending' and time_slots.slot_date <= $1
		order by time_slots.slot_date, time_slots.start_time
	`

	sqlCountByStatus = `
		select status, count(*) from bookings where exchange_id = $1 group by status
	`

	sqlSlotUsage = `
		select count(*), coalesce(sum(current_bookings),0), coalesce(sum(max_capacity),0)
		from time_slots where exchange_id = $1
	`
)

// querier is the query surface shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store using a pgx connection pool. Inside WithTx
// the same type runs against the open transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{pool: store.pool, db: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) ListBusinessHours(ctx context.Context, exchangeID booking.ExchangeID) ([]booking.BusinessHours, error) {
	rows, err := store.db.Query(ctx, sqlListBusinessHours, exchangeID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeList, err)
	}
	defer rows.Close()
	hours, err := scanBusinessHours(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeInvalid, err)
	}
	return hours, nil
}

func (store *Store) ListBusinessHoursForDay(ctx context.Context, exchangeID booking.ExchangeID, day booking.Weekday) ([]booking.BusinessHours, error) {
	rows, err := store.db.Query(ctx, sqlListBusinessHoursForDay, exchangeID.String(), day.Int())
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeList, err)
	}
	defer rows.Close()
	hours, err := scanBusinessHours(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeInvalid, err)
	}
	return hours, nil
}

func (store *Store) ReplaceBusinessHoursForDay(ctx context.Context, hours booking.BusinessHours) (booking.BusinessHours, bool, error) {
	tag, err := store.db.Exec(ctx, sqlDeleteBusinessHoursForDay, hours.ExchangeID.String(), hours.DayOfWeek.Int())
	if err != nil {
		return booking.BusinessHours{}, false, wrapStoreError(errorSubjectHours, errorCodeDelete, err)
	}
	stored, err := store.InsertBusinessHours(ctx, hours)
	if err != nil {
		return booking.BusinessHours{}, false, err
	}
	return stored, tag.RowsAffected() == 0, nil
}

func (store *Store) InsertBusinessHours(ctx context.Context, hours booking.BusinessHours) (booking.BusinessHours, error) {
	hours.ID = uuid.NewString()
	_, err := store.db.Exec(ctx, sqlInsertBusinessHours,
		hours.ID,
		hours.ExchangeID.String(),
		hours.DayOfWeek.Int(),
		optionalTimeColumn(hours.OpenTime),
		optionalTimeColumn(hours.CloseTime),
		hours.IsClosed,
	)
	if isUniqueViolation(err, constraintBusinessHoursDayOpen) {
		return booking.BusinessHours{}, wrapStoreError(errorSubjectHours, errorCodeDuplicate, booking.ErrDuplicateShift)
	}
	if err != nil {
		return booking.BusinessHours{}, wrapStoreError(errorSubjectHours, errorCodeInsert, err)
	}
	return hours, nil
}

func (store *Store) FindTimeSlot(ctx context.Context, key booking.SlotKey) (booking.TimeSlot, bool, error) {
	slot, err := scanTimeSlot(store.db.QueryRow(ctx, sqlSelectSlotByKey, slotKeyArgs(key)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.TimeSlot{}, false, nil
	}
	if err != nil {
		return booking.TimeSlot{}, false, wrapStoreError(errorSubjectTimeSlot, errorCodeGet, err)
	}
	return slot, true, nil
}

func (store *Store) ListTimeSlots(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) ([]booking.TimeSlot, error) {
	rows, err := store.db.Query(ctx, sqlListSlotsForDate, exchangeID.String(), date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	defer rows.Close()
	slots := make([]booking.TimeSlot, 0, 16)
	for rows.Next() {
		slot, err := scanTimeSlot(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	return slots, nil
}

func (store *Store) InsertTimeSlotIfAbsent(ctx context.Context, key booking.SlotKey, maxCapacity int) (bool, error) {
	args := append([]any{uuid.NewString()}, slotKeyArgs(key)...)
	args = append(args, maxCapacity)
	tag, err := store.db.Exec(ctx, sqlInsertSlotIfAbsent, args...)
	if err != nil {
		return false, wrapStoreError(errorSubjectTimeSlot, errorCodeInsert, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *Store) LockTimeSlot(ctx context.Context, key booking.SlotKey) (booking.TimeSlot, error) {
	slot, err := scanTimeSlot(store.db.QueryRow(ctx, sqlSelectSlotByKey+" for update", slotKeyArgs(key)...))
	return lockedSlot(slot, err)
}

func (store *Store) LockTimeSlotByID(ctx context.Context, slotID booking.SlotID) (booking.TimeSlot, error) {
	slot, err := scanTimeSlot(store.db.QueryRow(ctx, sqlSelectSlotByID+" for update", slotID.String()))
	return lockedSlot(slot, err)
}

func lockedSlot(slot booking.TimeSlot, err error) (booking.TimeSlot, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.TimeSlot{}, wrapStoreError(errorSubjectTimeSlot, errorCodeLock, booking.ErrSlotNotFound)
	}
	if err != nil {
		return booking.TimeSlot{}, wrapStoreError(errorSubjectTimeSlot, errorCodeLock, err)
	}
	return slot, nil
}

func (store *Store) SaveSlotCounters(ctx context.Context, slot booking.TimeSlot) error {
	tag, err := store.db.Exec(ctx, sqlUpdateSlotCounters, slot.ID().String(), slot.CurrentBookings(), slot.IsAvailable())
	if err != nil {
		return wrapStoreError(errorSubjectTimeSlot, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTimeSlot, errorCodeUpdate, booking.ErrSlotNotFound)
	}
	return nil
}

func (store *Store) InsertBooking(ctx context.Context, draft booking.BookingDraft) (booking.BookingID, error) {
	idValue := uuid.NewString()
	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertBooking,
		idValue,
		draft.UserID.String(),
		draft.ExchangeID.String(),
		draft.SlotID.String(),
		draft.Status.String(),
		draft.ActiveKey,
		draft.Contact.Name,
		draft.Contact.Email,
		draft.Contact.Phone,
		draft.Notes,
		createdAt,
	)
	if isUniqueViolation(err, constraintBookingsActiveKey) {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateActiveBooking)
	}
	if err != nil {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, err)
	}
	bookingID, err := booking.NewBookingID(idValue)
	if err != nil {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return bookingID, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	return store.singleBooking(ctx, sqlSelectBooking, bookingID, errorCodeGet)
}

func (store *Store) LockBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	return store.singleBooking(ctx, sqlSelectBooking+" for update", bookingID, errorCodeLock)
}

func (store *Store) singleBooking(ctx context.Context, query string, bookingID booking.BookingID, code string) (booking.Booking, error) {
	rows, err := store.db.Query(ctx, query, bookingID.String())
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, err)
	}
	bookings, err := store.collectBookings(ctx, rows)
	if err != nil {
		return booking.Booking{}, err
	}
	if len(bookings) == 0 {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, booking.ErrBookingNotFound)
	}
	return bookings[0], nil
}

func (store *Store) UpdateBookingStatus(ctx context.Context, update booking.BookingUpdate) error {
	tag, err := store.db.Exec(ctx, sqlUpdateBookingStatus,
		update.BookingID.String(),
		update.From.String(),
		update.To.String(),
		update.AdminNotes,
		update.CancelledAt,
		update.CancellationReason,
		update.UpdatedAt,
		update.ActiveKey,
	)
	if isUniqueViolation(err, constraintBookingsActiveKey) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateActiveBooking)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) HasActiveBookingOnDate(ctx context.Context, userID booking.UserID, exchangeID booking.ExchangeID, date booking.Date) (bool, error) {
	var count int64
	err := store.db.QueryRow(ctx, sqlCountActiveOnDate, userID.String(), exchangeID.String(), date.String()).Scan(&count)
	if err != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) ListBookings(ctx context.Context, filter booking.BookingFilter) ([]booking.Booking, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 5)
	addCondition := func(column string, value string) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if !filter.UserID.IsZero() {
		addCondition("bookings.user_id", filter.UserID.String())
	}
	if !filter.ExchangeID.IsZero() {
		addCondition("bookings.exchange_id", filter.ExchangeID.String())
	}
	if filter.Status != "" {
		addCondition("bookings.status", filter.Status.String())
	}
	if !filter.Date.IsZero() {
		addCondition("time_slots.slot_date", filter.Date.String())
	}
	var query strings.Builder
	query.WriteString("select " + sqlBookingColumns + " from bookings join time_slots on time_slots.id = bookings.time_slot_id")
	if len(conditions) > 0 {
		query.WriteString(" where " + strings.Join(conditions, " and "))
	}
	query.WriteString(" order by time_slots.slot_date, time_slots.start_time, bookings.created_at")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query.WriteString(fmt.Sprintf(" limit $%d", len(args)))
	}
	rows, err := store.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return store.collectBookings(ctx, rows)
}

func (store *Store) ListPendingBookingsOnOrBefore(ctx context.Context, date booking.Date) ([]booking.Booking, error) {
	rows, err := store.db.Query(ctx, sqlListPendingOnOrBefore, date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return store.collectBookings(ctx, rows)
}

func (store *Store) CountBookingsByStatus(ctx context.Context, exchangeID booking.ExchangeID) (map[booking.Status]int, error) {
	rows, err := store.db.Query(ctx, sqlCountByStatus, exchangeID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	defer rows.Close()
	counts := make(map[booking.Status]int)
	for rows.Next() {
		var (
			statusValue string
			total       int64
		)
		if err := rows.Scan(&statusValue, &total); err != nil {
			return nil, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
		}
		status, err := booking.ParseStatus(statusValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectStatistics, errorCodeInvalid, err)
		}
		counts[status] += int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return counts, nil
}

func (store *Store) SlotUsage(ctx context.Context, exchangeID booking.ExchangeID) (booking.SlotUsage, error) {
	var totalSlots, bookedUnits, capacityUnits int64
	err := store.db.QueryRow(ctx, sqlSlotUsage, exchangeID.String()).Scan(&totalSlots, &bookedUnits, &capacityUnits)
	if err != nil {
		return booking.SlotUsage{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return booking.SlotUsage{
		TotalSlots:    int(totalSlots),
		BookedUnits:   int(bookedUnits),
		CapacityUnits: int(capacityUnits),
	}, nil
}

type bookingRow struct {
	booking booking.Booking
	slotID  string
}

// collectBookings scans booking rows, closes them and attaches slots with one extra query.
func (store *Store) collectBookings(ctx context.Context, rows pgx.Rows) ([]booking.Booking, error) {
	scanned, err := scanBookingRows(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	if len(scanned) == 0 {
		return []booking.Booking{}, nil
	}
	slotIDs := make([]string, 0, len(scanned))
	seen := make(map[string]struct{}, len(scanned))
	for _, row := range scanned {
		if _, duplicate := seen[row.slotID]; duplicate {
			continue
		}
		seen[row.slotID] = struct{}{}
		slotIDs = append(slotIDs, row.slotID)
	}
	slotRows, err := store.db.Query(ctx, sqlSelectSlotsByIDs, slotIDs)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	defer slotRows.Close()
	slots := make(map[string]booking.TimeSlot, len(slotIDs))
	for slotRows.Next() {
		slot, err := scanTimeSlot(slotRows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
		}
		slots[slot.ID().String()] = slot
	}
	if err := slotRows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	bookings := make([]booking.Booking, 0, len(scanned))
	for _, row := range scanned {
		slot, found := slots[row.slotID]
		if !found {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, booking.ErrSlotNotFound)
		}
		row.booking.Slot = slot
		bookings = append(bookings, row.booking)
	}
	return bookings, nil
}

func scanBookingRows(rows pgx.Rows) ([]bookingRow, error) {
	defer rows.Close()
	scanned := make([]bookingRow, 0, 16)
	for rows.Next() {
		var (
			idValue       string
			userValue     string
			exchangeValue string
			slotValue     string
			statusValue   string
			contact       booking.CustomerContact
			notes         string
			adminNotes    string
			reason        string
			cancelledAt   *time.Time
			createdAt     time.Time
			updatedAt     time.Time
		)
		if err := rows.Scan(
			&idValue,
			&userValue,
			&exchangeValue,
			&slotValue,
			&statusValue,
			&contact.Name,
			&contact.Email,
			&contact.Phone,
			&notes,
			&adminNotes,
			&reason,
			&cancelledAt,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		bookingID, err := booking.NewBookingID(idValue)
		if err != nil {
			return nil, err
		}
		userID, err := booking.NewUserID(userValue)
		if err != nil {
			return nil, err
		}
		exchangeID, err := booking.NewExchangeID(exchangeValue)
		if err != nil {
			return nil, err
		}
		status, err := booking.ParseStatus(statusValue)
		if err != nil {
			return nil, err
		}
		if cancelledAt != nil {
			value := cancelledAt.UTC()
			cancelledAt = &value
		}
		scanned = append(scanned, bookingRow{
			booking: booking.Booking{
				ID:                 bookingID,
				UserID:             userID,
				ExchangeID:         exchangeID,
				Status:             status,
				Contact:            contact,
				Notes:              notes,
				AdminNotes:         adminNotes,
				CancellationReason: reason,
				CancelledAt:        cancelledAt,
				CreatedAt:          createdAt.UTC(),
				UpdatedAt:          updatedAt.UTC(),
			},
			slotID: slotValue,
		})
	}
	return scanned, rows.Err()
}

func scanBusinessHours(rows pgx.Rows) ([]booking.BusinessHours, error) {
	hours := make([]booking.BusinessHours, 0, 8)
	for rows.Next() {
		var (
			idValue       string
			exchangeValue string
			dayValue      int
			openValue     *string
			closeValue    *string
			isClosed      bool
		)
		if err := rows.Scan(&idValue, &exchangeValue, &dayValue, &openValue, &closeValue, &isClosed); err != nil {
			return nil, err
		}
		exchangeID, err := booking.NewExchangeID(exchangeValue)
		if err != nil {
			return nil, err
		}
		day, err := booking.NewWeekday(dayValue)
		if err != nil {
			return nil, err
		}
		row := booking.BusinessHours{ID: idValue, ExchangeID: exchangeID, DayOfWeek: day, IsClosed: isClosed}
		if row.OpenTime, err = parseOptionalTimeColumn(openValue); err != nil {
			return nil, err
		}
		if row.CloseTime, err = parseOptionalTimeColumn(closeValue); err != nil {
			return nil, err
		}
		hours = append(hours, row)
	}
	return hours, rows.Err()
}

func scanTimeSlot(row pgx.Row) (booking.TimeSlot, error) {
	var (
		idValue         string
		exchangeValue   string
		dateValue       string
		startValue      string
		endValue        string
		maxCapacity     int
		currentBookings int
	)
	if err := row.Scan(&idValue, &exchangeValue, &dateValue, &startValue, &endValue, &maxCapacity, &currentBookings); err != nil {
		return booking.TimeSlot{}, err
	}
	slotID, err := booking.NewSlotID(idValue)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	exchangeID, err := booking.NewExchangeID(exchangeValue)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	date, err := booking.ParseDate(dateValue)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	start, err := parseTimeColumn(startValue)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	end, err := parseTimeColumn(endValue)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	interval, err := booking.NewInterval(start, end)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	key, err := booking.NewSlotKey(exchangeID, date, interval)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	return booking.NewTimeSlot(slotID, key, maxCapacity, currentBookings)
}

func slotKeyArgs(key booking.SlotKey) []any {
	return []any{
		key.ExchangeID.String(),
		key.Date.String(),
		timeColumn(key.Interval.Start),
		timeColumn(key.Interval.End),
	}
}

func timeColumn(value booking.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d:00", value.Hour(), value.Minute())
}

func optionalTimeColumn(value *booking.TimeOfDay) *string {
	if value == nil {
		return nil
	}
	column := timeColumn(*value)
	return &column
}

func parseTimeColumn(raw string) (booking.TimeOfDay, error) {
	parsed, err := time.Parse(columnTimeLayout, raw)
	if err != nil {
		return booking.TimeOfDay{}, err
	}
	return booking.NewTimeOfDay(parsed.Hour(), parsed.Minute())
}

func parseOptionalTimeColumn(raw *string) (*booking.TimeOfDay, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := parseTimeColumn(*raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
