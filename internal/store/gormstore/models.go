package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExchangeRecord mirrors the exchanges table used by the bundled directory.
type ExchangeRecord struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	OwnerID   string    `gorm:"type:varchar(64);not null;index:idx_exchanges_owner"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ExchangeRecord) TableName() string { return "exchanges" }

// UserRecord mirrors the users table used by the bundled directory.
type UserRecord struct {
	ID          string    `gorm:"type:varchar(64);primaryKey"`
	Email       string    `gorm:"type:varchar(255);not null"`
	DisplayName string    `gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (UserRecord) TableName() string { return "users" }

// BusinessHoursRecord mirrors the business_hours table. Closed rows have no times.
type BusinessHoursRecord struct {
	ID         string          `gorm:"type:varchar(36);primaryKey"`
	ExchangeID string          `gorm:"type:varchar(64);not null;index:idx_business_hours_day_open,unique,priority:1"`
	DayOfWeek  int             `gorm:"not null;index:idx_business_hours_day_open,unique,priority:2;check:chk_business_hours_day,day_of_week BETWEEN 1 AND 7"`
	OpenTime   *datatypes.Time `gorm:"type:varchar(8);index:idx_business_hours_day_open,unique,priority:3"`
	CloseTime  *datatypes.Time `gorm:"type:varchar(8)"`
	IsClosed   bool            `gorm:"not null;default:false"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

func (BusinessHoursRecord) TableName() string { return "business_hours" }

func (record *BusinessHoursRecord) BeforeCreate(tx *gorm.DB) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return nil
}

// TimeSlotRecord mirrors the time_slots table.
type TimeSlotRecord struct {
	ID              string         `gorm:"type:varchar(36);primaryKey"`
	ExchangeID      string         `gorm:"type:varchar(64);not null;index:idx_time_slots_key,unique,priority:1"`
	SlotDate        string         `gorm:"type:varchar(10);not null;index:idx_time_slots_key,unique,priority:2"`
	StartTime       datatypes.Time `gorm:"type:varchar(8);not null;index:idx_time_slots_key,unique,priority:3"`
	EndTime         datatypes.Time `gorm:"type:varchar(8);not null;index:idx_time_slots_key,unique,priority:4"`
	MaxCapacity     int            `gorm:"not null;default:1;check:chk_time_slots_capacity,max_capacity >= 1"`
	CurrentBookings int            `gorm:"not null;default:0;check:chk_time_slots_counter,current_bookings >= 0 AND current_bookings <= max_capacity"`
	IsAvailable     bool           `gorm:"not null;default:true"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (TimeSlotRecord) TableName() string { return "time_slots" }

func (record *TimeSlotRecord) BeforeCreate(tx *gorm.DB) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return nil
}

// BookingRecord mirrors the bookings table. ActiveKey is user:exchange:date
// and is set only while the booking is pending or confirmed.
type BookingRecord struct {
	ID                 string     `gorm:"type:varchar(36);primaryKey"`
	UserID             string     `gorm:"type:varchar(64);not null;index:idx_bookings_user_exchange,priority:1"`
	ExchangeID         string     `gorm:"type:varchar(64);not null;index:idx_bookings_user_exchange,priority:2;index:idx_bookings_exchange_status,priority:1"`
	TimeSlotID         string     `gorm:"type:varchar(36);not null;index:idx_bookings_time_slot"`
	Status             string     `gorm:"type:varchar(16);not null;index:idx_bookings_exchange_status,priority:2"`
	ActiveKey          *string    `gorm:"type:varchar(160);uniqueIndex:idx_bookings_active_key"`
	CustomerName       string     `gorm:"type:varchar(255);not null"`
	CustomerEmail      string     `gorm:"type:varchar(255);not null"`
	CustomerPhone      string     `gorm:"type:varchar(32);not null;default:''"`
	Notes              string     `gorm:"type:text;not null;default:''"`
	AdminNotes         string     `gorm:"type:text;not null;default:''"`
	CancellationReason string     `gorm:"type:text;not null;default:''"`
	CancelledAt        *time.Time `gorm:""`
	CreatedAt          time.Time  `gorm:"not null"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

func (BookingRecord) TableName() string { return "bookings" }

func (record *BookingRecord) BeforeCreate(tx *gorm.DB) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table managed by this package in migration order.
func Models() []interface{} {
	return []interface{}{
		&ExchangeRecord{},
		&UserRecord{},
		&BusinessHoursRecord{},
		&TimeSlotRecord{},
		&BookingRecord{},
	}
}
