package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const searchLimit = 20

// OpenDB opens a gorm connection for driver "sqlite" or "postgres".
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported crm driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// Store is the database-backed CRM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Service = (*Store)(nil)

// NewStore migrates the schema and returns a store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Listing{}, &Viewing{}); err != nil {
		return nil, fmt.Errorf("failed to migrate crm schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Seed inserts listings, leaving existing ids untouched.
func (s *Store) Seed(ctx context.Context, listings []Listing) error {
	if len(listings) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&listings).Error
	if err != nil {
		return apperrors.New(apperrors.ErrCodeCRMRequest, "failed to seed listings", err)
	}
	return nil
}

func (s *Store) SearchListings(ctx context.Context, criteria SearchCriteria) ([]Listing, error) {
	q := s.db.WithContext(ctx).Model(&Listing{})
	if loc := strings.TrimSpace(criteria.Location); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(loc)+"%")
	}
	if criteria.PriceMin != nil {
		q = q.Where("price >= ?", *criteria.PriceMin)
	}
	if criteria.PriceMax != nil {
		q = q.Where("price <= ?", *criteria.PriceMax)
	}
	if criteria.Bedrooms != nil {
		q = q.Where("bedrooms >= ?", *criteria.Bedrooms)
	}
	if criteria.Type != "" {
		q = q.Where("type = ?", criteria.Type)
	}

	var listings []Listing
	if err := q.Order("price ASC").Limit(searchLimit).Find(&listings).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to search listings", err)
	}
	return listings, nil
}

func (s *Store) ScheduleViewing(ctx context.Context, propertyID, dateISO, clientName string) (*Confirmation, error) {
	at, ok := ParseViewingDate(dateISO)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeScheduleRejected, "date %q is not an ISO date", dateISO)
	}
	if at.Before(s.now()) {
		return nil, apperrors.Newf(apperrors.ErrCodeScheduleRejected, "date %s is in the past", dateISO)
	}

	var listing Listing
	err := s.db.WithContext(ctx).First(&listing, "id = ?", propertyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.ErrCodeScheduleRejected, "property %s does not exist", propertyID)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to look up property", err)
	}

	viewing := Viewing{
		ID:          uuid.NewString(),
		PropertyID:  listing.ID,
		ClientName:  clientName,
		ScheduledAt: at,
	}
	if err := s.db.WithContext(ctx).Create(&viewing).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to book viewing", err)
	}

	return &Confirmation{
		ConfirmationID: viewing.ID,
		PropertyID:     viewing.PropertyID,
		ClientName:     viewing.ClientName,
		ScheduledAt:    viewing.ScheduledAt,
	}, nil
}

// Viewings lists bookings for a property.
func (s *Store) Viewings(ctx context.Context, propertyID string) ([]Viewing, error) {
	var out []Viewing
	err := s.db.WithContext(ctx).Where("property_id = ?", propertyID).Order("scheduled_at ASC").Find(&out).Error
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to list viewings", err)
	}
	return out, nil
}
