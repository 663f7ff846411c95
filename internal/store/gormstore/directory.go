package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorSubjectExchange = "exchange"
	errorSubjectUser     = "user"
	errorCodeUpsert      = "upsert"
)

// Directory implements booking.Directory over the exchanges and users tables.
type Directory struct {
	db *gorm.DB
}

// NewDirectory returns a Directory backed by gorm.DB.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (directory *Directory) FindUser(ctx context.Context, userID booking.UserID) (booking.User, bool, error) {
	var record UserRecord
	err := directory.db.WithContext(ctx).Where("id = ?", userID.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.User{}, false, nil
	}
	if err != nil {
		return booking.User{}, false, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return booking.User{ID: userID, Email: record.Email, DisplayName: record.DisplayName}, true, nil
}

func (directory *Directory) FindExchange(ctx context.Context, exchangeID booking.ExchangeID) (booking.Exchange, bool, error) {
	var record ExchangeRecord
	err := directory.db.WithContext(ctx).Where("id = ?", exchangeID.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Exchange{}, false, nil
	}
	if err != nil {
		return booking.Exchange{}, false, wrapStoreError(errorSubjectExchange, errorCodeGet, err)
	}
	ownerID, err := booking.NewUserID(record.OwnerID)
	if err != nil {
		return booking.Exchange{}, false, wrapStoreError(errorSubjectExchange, errorCodeInvalid, err)
	}
	return booking.Exchange{ID: exchangeID, Name: record.Name, OwnerID: ownerID}, true, nil
}

// UpsertExchange creates or renames an exchange and sets its owner.
func (directory *Directory) UpsertExchange(ctx context.Context, exchange booking.Exchange) error {
	now := time.Now().UTC()
	record := ExchangeRecord{
		ID:        exchange.ID.String(),
		Name:      strings.TrimSpace(exchange.Name),
		OwnerID:   exchange.OwnerID.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := directory.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "owner_id", "updated_at"}),
		}).
		Create(&record).Error
	return wrapStoreError(errorSubjectExchange, errorCodeUpsert, err)
}

// UpsertUser creates or updates a user's contact details.
func (directory *Directory) UpsertUser(ctx context.Context, user booking.User) error {
	now := time.Now().UTC()
	record := UserRecord{
		ID:          user.ID.String(),
		Email:       strings.TrimSpace(user.Email),
		DisplayName: strings.TrimSpace(user.DisplayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := directory.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
		}).
		Create(&record).Error
	return wrapStoreError(errorSubjectUser, errorCodeUpsert, err)
}
