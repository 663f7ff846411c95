package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"

	// Extended sqlite result codes; CHECK and NOT NULL failures share the
	// primary constraint code and must not read as duplicates.
	sqliteConstraintUniqueCode     = 2067
	sqliteConstraintPrimaryKeyCode = 1555

	errorOperationStore    = "store"
	errorSubjectHours      = "business_hours"
	errorSubjectTimeSlot   = "time_slot"
	errorSubjectBooking    = "booking"
	errorSubjectStatistics = "statistics"
	errorCodeCount         = "count"
	errorCodeDelete        = "delete"
	errorCodeDuplicate     = "duplicate"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeLock          = "lock"
	errorCodeUpdate        = "update"
	errorCodeUpdateStatus  = "update_status"

	dateLayout = "2006-01-02"
)

var activeStatuses = []string{booking.StatusPending.String(), booking.StatusConfirmed.String()}

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table owned by the store and the directory.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) ListBusinessHours(ctx context.Context, exchangeID booking.ExchangeID) ([]booking.BusinessHours, error) {
	var rows []BusinessHoursRecord
	err := store.db.WithContext(ctx).
		Where("exchange_id = ?", exchangeID.String()).
		Order("day_of_week, open_time").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeList, err)
	}
	return mapBusinessHoursRows(rows)
}

func (store *Store) ListBusinessHoursForDay(ctx context.Context, exchangeID booking.ExchangeID, day booking.Weekday) ([]booking.BusinessHours, error) {
	var rows []BusinessHoursRecord
	err := store.db.WithContext(ctx).
		Where("exchange_id = ? AND day_of_week = ?", exchangeID.String(), day.Int()).
		Order("open_time").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectHours, errorCodeList, err)
	}
	return mapBusinessHoursRows(rows)
}

func (store *Store) ReplaceBusinessHoursForDay(ctx context.Context, hours booking.BusinessHours) (booking.BusinessHours, bool, error) {
	result := store.db.WithContext(ctx).
		Where("exchange_id = ? AND day_of_week = ?", hours.ExchangeID.String(), hours.DayOfWeek.Int()).
		Delete(&BusinessHoursRecord{})
	if result.Error != nil {
		return booking.BusinessHours{}, false, wrapStoreError(errorSubjectHours, errorCodeDelete, result.Error)
	}
	stored, err := store.InsertBusinessHours(ctx, hours)
	if err != nil {
		return booking.BusinessHours{}, false, err
	}
	return stored, result.RowsAffected == 0, nil
}

func (store *Store) InsertBusinessHours(ctx context.Context, hours booking.BusinessHours) (booking.BusinessHours, error) {
	record := BusinessHoursRecord{
		ExchangeID: hours.ExchangeID.String(),
		DayOfWeek:  hours.DayOfWeek.Int(),
		OpenTime:   optionalTimeColumn(hours.OpenTime),
		CloseTime:  optionalTimeColumn(hours.CloseTime),
		IsClosed:   hours.IsClosed,
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err) {
		return booking.BusinessHours{}, wrapStoreError(errorSubjectHours, errorCodeDuplicate, booking.ErrDuplicateShift)
	}
	if err != nil {
		return booking.BusinessHours{}, wrapStoreError(errorSubjectHours, errorCodeInsert, err)
	}
	hours.ID = record.ID
	return hours, nil
}

func (store *Store) FindTimeSlot(ctx context.Context, key booking.SlotKey) (booking.TimeSlot, bool, error) {
	var record TimeSlotRecord
	err := store.slotKeyQuery(ctx, key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.TimeSlot{}, false, nil
	}
	if err != nil {
		return booking.TimeSlot{}, false, wrapStoreError(errorSubjectTimeSlot, errorCodeGet, err)
	}
	slot, err := mapTimeSlot(record)
	if err != nil {
		return booking.TimeSlot{}, false, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
	}
	return slot, true, nil
}

func (store *Store) ListTimeSlots(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) ([]booking.TimeSlot, error) {
	var records []TimeSlotRecord
	err := store.db.WithContext(ctx).
		Where("exchange_id = ? AND slot_date = ?", exchangeID.String(), date.String()).
		Order("start_time, end_time").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	slots := make([]booking.TimeSlot, 0, len(records))
	for _, record := range records {
		slot, err := mapTimeSlot(record)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (store *Store) InsertTimeSlotIfAbsent(ctx context.Context, key booking.SlotKey, maxCapacity int) (bool, error) {
	record := TimeSlotRecord{
		ExchangeID:  key.ExchangeID.String(),
		SlotDate:    key.Date.String(),
		StartTime:   timeColumn(key.Interval.Start),
		EndTime:     timeColumn(key.Interval.End),
		MaxCapacity: maxCapacity,
		IsAvailable: true,
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exchange_id"}, {Name: "slot_date"}, {Name: "start_time"}, {Name: "end_time"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectTimeSlot, errorCodeInsert, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) LockTimeSlot(ctx context.Context, key booking.SlotKey) (booking.TimeSlot, error) {
	var record TimeSlotRecord
	err := store.slotKeyQuery(ctx, key).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&record).Error
	return store.lockedSlot(record, err)
}

func (store *Store) LockTimeSlotByID(ctx context.Context, slotID booking.SlotID) (booking.TimeSlot, error) {
	var record TimeSlotRecord
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", slotID.String()).
		Take(&record).Error
	return store.lockedSlot(record, err)
}

func (store *Store) lockedSlot(record TimeSlotRecord, err error) (booking.TimeSlot, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.TimeSlot{}, wrapStoreError(errorSubjectTimeSlot, errorCodeLock, booking.ErrSlotNotFound)
	}
	if err != nil {
		return booking.TimeSlot{}, wrapStoreError(errorSubjectTimeSlot, errorCodeLock, err)
	}
	slot, err := mapTimeSlot(record)
	if err != nil {
		return booking.TimeSlot{}, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
	}
	return slot, nil
}

func (store *Store) SaveSlotCounters(ctx context.Context, slot booking.TimeSlot) error {
	result := store.db.WithContext(ctx).
		Model(&TimeSlotRecord{}).
		Where("id = ?", slot.ID().String()).
		Updates(map[string]interface{}{
			"current_bookings": slot.CurrentBookings(),
			"is_available":     slot.IsAvailable(),
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTimeSlot, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTimeSlot, errorCodeUpdate, booking.ErrSlotNotFound)
	}
	return nil
}

func (store *Store) InsertBooking(ctx context.Context, draft booking.BookingDraft) (booking.BookingID, error) {
	record := BookingRecord{
		UserID:        draft.UserID.String(),
		ExchangeID:    draft.ExchangeID.String(),
		TimeSlotID:    draft.SlotID.String(),
		Status:        draft.Status.String(),
		ActiveKey:     draft.ActiveKey,
		CustomerName:  draft.Contact.Name,
		CustomerEmail: draft.Contact.Email,
		CustomerPhone: draft.Contact.Phone,
		Notes:         draft.Notes,
		CreatedAt:     draft.CreatedAt,
		UpdatedAt:     draft.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
		record.UpdatedAt = record.CreatedAt
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isUniqueViolation(err) {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateActiveBooking)
	}
	if err != nil {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, err)
	}
	bookingID, err := booking.NewBookingID(record.ID)
	if err != nil {
		return booking.BookingID{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return bookingID, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	var record BookingRecord
	err := store.db.WithContext(ctx).Where("id = ?", bookingID.String()).Take(&record).Error
	return store.singleBooking(ctx, record, err, errorCodeGet)
}

func (store *Store) LockBooking(ctx context.Context, bookingID booking.BookingID) (booking.Booking, error) {
	var record BookingRecord
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bookingID.String()).
		Take(&record).Error
	return store.singleBooking(ctx, record, err, errorCodeLock)
}

func (store *Store) singleBooking(ctx context.Context, record BookingRecord, err error, code string) (booking.Booking, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, booking.ErrBookingNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, code, err)
	}
	bookings, err := store.hydrateBookings(ctx, []BookingRecord{record})
	if err != nil {
		return booking.Booking{}, err
	}
	return bookings[0], nil
}

func (store *Store) UpdateBookingStatus(ctx context.Context, update booking.BookingUpdate) error {
	var current BookingRecord
	err := store.db.WithContext(ctx).Select("id").Where("id = ?", update.BookingID.String()).Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrBookingNotFound)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, err)
	}
	assignments := map[string]interface{}{
		"status":     update.To.String(),
		"active_key": update.ActiveKey,
		"updated_at": update.UpdatedAt,
	}
	if update.AdminNotes != nil {
		assignments["admin_notes"] = *update.AdminNotes
	}
	if update.CancelledAt != nil {
		assignments["cancelled_at"] = *update.CancelledAt
		assignments["cancellation_reason"] = update.CancellationReason
	}
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("id = ? AND status = ?", update.BookingID.String(), update.From.String()).
		Updates(assignments)
	if isUniqueViolation(result.Error) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrDuplicateActiveBooking)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) HasActiveBookingOnDate(ctx context.Context, userID booking.UserID, exchangeID booking.ExchangeID, date booking.Date) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Joins("JOIN time_slots ON time_slots.id = bookings.time_slot_id").
		Where("bookings.user_id = ? AND bookings.exchange_id = ?", userID.String(), exchangeID.String()).
		Where("bookings.status IN ?", activeStatuses).
		Where("time_slots.slot_date = ?", date.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) ListBookings(ctx context.Context, filter booking.BookingFilter) ([]booking.Booking, error) {
	query := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Select("bookings.*").
		Joins("JOIN time_slots ON time_slots.id = bookings.time_slot_id")
	if !filter.UserID.IsZero() {
		query = query.Where("bookings.user_id = ?", filter.UserID.String())
	}
	if !filter.ExchangeID.IsZero() {
		query = query.Where("bookings.exchange_id = ?", filter.ExchangeID.String())
	}
	if filter.Status != "" {
		query = query.Where("bookings.status = ?", filter.Status.String())
	}
	if !filter.Date.IsZero() {
		query = query.Where("time_slots.slot_date = ?", filter.Date.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var records []BookingRecord
	if err := query.Order("time_slots.slot_date, time_slots.start_time, bookings.created_at").Find(&records).Error; err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return store.hydrateBookings(ctx, records)
}

func (store *Store) ListPendingBookingsOnOrBefore(ctx context.Context, date booking.Date) ([]booking.Booking, error) {
	var records []BookingRecord
	err := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Select("bookings.*").
		Joins("JOIN time_slots ON time_slots.id = bookings.time_slot_id").
		Where("bookings.status = ? AND time_slots.slot_date <= ?", booking.StatusPending.String(), date.String()).
		Order("time_slots.slot_date, time_slots.start_time").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return store.hydrateBookings(ctx, records)
}

type statusCount struct {
	Status string
	Total  int64
}

func (store *Store) CountBookingsByStatus(ctx context.Context, exchangeID booking.ExchangeID) (map[booking.Status]int, error) {
	var rows []statusCount
	err := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Select("status, count(*) as total").
		Where("exchange_id = ?", exchangeID.String()).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	counts := make(map[booking.Status]int, len(rows))
	for _, row := range rows {
		status, err := booking.ParseStatus(row.Status)
		if err != nil {
			return nil, wrapStoreError(errorSubjectStatistics, errorCodeInvalid, err)
		}
		counts[status] += int(row.Total)
	}
	return counts, nil
}

type slotUsageRow struct {
	TotalSlots    int64
	BookedUnits   int64
	CapacityUnits int64
}

func (store *Store) SlotUsage(ctx context.Context, exchangeID booking.ExchangeID) (booking.SlotUsage, error) {
	var row slotUsageRow
	err := store.db.WithContext(ctx).
		Model(&TimeSlotRecord{}).
		Select("count(*) as total_slots, coalesce(sum(current_bookings),0) as booked_units, coalesce(sum(max_capacity),0) as capacity_units").
		Where("exchange_id = ?", exchangeID.String()).
		Scan(&row).Error
	if err != nil {
		return booking.SlotUsage{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return booking.SlotUsage{
		TotalSlots:    int(row.TotalSlots),
		BookedUnits:   int(row.BookedUnits),
		CapacityUnits: int(row.CapacityUnits),
	}, nil
}

func (store *Store) slotKeyQuery(ctx context.Context, key booking.SlotKey) *gorm.DB {
	return store.db.WithContext(ctx).
		Where("exchange_id = ? AND slot_date = ? AND start_time = ? AND end_time = ?",
			key.ExchangeID.String(), key.Date.String(), timeColumn(key.Interval.Start), timeColumn(key.Interval.End))
}

// hydrateBookings maps records and attaches their slots with one extra query.
func (store *Store) hydrateBookings(ctx context.Context, records []BookingRecord) ([]booking.Booking, error) {
	if len(records) == 0 {
		return []booking.Booking{}, nil
	}
	slotIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, duplicate := seen[record.TimeSlotID]; duplicate {
			continue
		}
		seen[record.TimeSlotID] = struct{}{}
		slotIDs = append(slotIDs, record.TimeSlotID)
	}
	var slotRecords []TimeSlotRecord
	if err := store.db.WithContext(ctx).Where("id IN ?", slotIDs).Find(&slotRecords).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeList, err)
	}
	slots := make(map[string]booking.TimeSlot, len(slotRecords))
	for _, slotRecord := range slotRecords {
		slot, err := mapTimeSlot(slotRecord)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTimeSlot, errorCodeInvalid, err)
		}
		slots[slotRecord.ID] = slot
	}
	bookings := make([]booking.Booking, 0, len(records))
	for _, record := range records {
		slot, found := slots[record.TimeSlotID]
		if !found {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, booking.ErrSlotNotFound)
		}
		mapped, err := mapBooking(record, slot)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, mapped)
	}
	return bookings, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapBusinessHoursRows(rows []BusinessHoursRecord) ([]booking.BusinessHours, error) {
	hours := make([]booking.BusinessHours, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapBusinessHours(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectHours, errorCodeInvalid, err)
		}
		hours = append(hours, mapped)
	}
	return hours, nil
}

func mapBusinessHours(row BusinessHoursRecord) (booking.BusinessHours, error) {
	exchangeID, err := booking.NewExchangeID(row.ExchangeID)
	if err != nil {
		return booking.BusinessHours{}, err
	}
	day, err := booking.NewWeekday(row.DayOfWeek)
	if err != nil {
		return booking.BusinessHours{}, err
	}
	hours := booking.BusinessHours{ID: row.ID, ExchangeID: exchangeID, DayOfWeek: day, IsClosed: row.IsClosed}
	if row.OpenTime != nil {
		openTime, err := timeOfDay(*row.OpenTime)
		if err != nil {
			return booking.BusinessHours{}, err
		}
		hours.OpenTime = &openTime
	}
	if row.CloseTime != nil {
		closeTime, err := timeOfDay(*row.CloseTime)
		if err != nil {
			return booking.BusinessHours{}, err
		}
		hours.CloseTime = &closeTime
	}
	return hours, nil
}

func mapTimeSlot(record TimeSlotRecord) (booking.TimeSlot, error) {
	slotID, err := booking.NewSlotID(record.ID)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	exchangeID, err := booking.NewExchangeID(record.ExchangeID)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	date, err := booking.ParseDate(record.SlotDate)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	start, err := timeOfDay(record.StartTime)
	if err != nil {
		return booking.TimeSlot{}, err
	}
	end, err := timeOfDay(record.EndTime)
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
	return booking.NewTimeSlot(slotID, key, record.MaxCapacity, record.CurrentBookings)
}

func mapBooking(record BookingRecord, slot booking.TimeSlot) (booking.Booking, error) {
	bookingID, err := booking.NewBookingID(record.ID)
	if err != nil {
		return booking.Booking{}, err
	}
	userID, err := booking.NewUserID(record.UserID)
	if err != nil {
		return booking.Booking{}, err
	}
	exchangeID, err := booking.NewExchangeID(record.ExchangeID)
	if err != nil {
		return booking.Booking{}, err
	}
	status, err := booking.ParseStatus(record.Status)
	if err != nil {
		return booking.Booking{}, err
	}
	var cancelledAt *time.Time
	if record.CancelledAt != nil {
		value := record.CancelledAt.UTC()
		cancelledAt = &value
	}
	return booking.Booking{
		ID:         bookingID,
		UserID:     userID,
		ExchangeID: exchangeID,
		Slot:       slot,
		Status:     status,
		Contact: booking.CustomerContact{
			Name:  record.CustomerName,
			Email: record.CustomerEmail,
			Phone: record.CustomerPhone,
		},
		Notes:              record.Notes,
		AdminNotes:         record.AdminNotes,
		CancellationReason: record.CancellationReason,
		CancelledAt:        cancelledAt,
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
	}, nil
}

func timeColumn(value booking.TimeOfDay) datatypes.Time {
	return datatypes.NewTime(value.Hour(), value.Minute(), 0, 0)
}

func optionalTimeColumn(value *booking.TimeOfDay) *datatypes.Time {
	if value == nil {
		return nil
	}
	column := timeColumn(*value)
	return &column
}

func timeOfDay(column datatypes.Time) (booking.TimeOfDay, error) {
	return booking.TimeOfDayFromMinutes(int(time.Duration(column) / time.Minute))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqliteConstraintUniqueCode || code == sqliteConstraintPrimaryKeyCode
	}
	return false
}
