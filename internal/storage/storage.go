package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tajious/portalauth/internal/config"
	"github.com/tajious/portalauth/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrMagicLinkNotFound = errors.New("magic link not found")
	ErrLiveMagicLink     = errors.New("customer already has an unused magic link")
)

const replaceAttempts = 3

type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)

	// InsertMagicLink fails with ErrLiveMagicLink when the customer already
	// has an unused record.
	InsertMagicLink(ctx context.Context, link *models.MagicLink) error
	// ReplaceMagicLink deletes the customer's unused records and inserts link
	// as one step. On failure the previous records are left as they were.
	ReplaceMagicLink(ctx context.Context, link *models.MagicLink) error
	// FindActiveMagicLinkByHash returns the unused record with the given hash,
	// whether or not it has expired.
	FindActiveMagicLinkByHash(ctx context.Context, tokenHash string) (*models.MagicLink, error)
	// MarkMagicLinkUsed sets used_at only if it is still unset. It reports
	// false when another caller got there first.
	MarkMagicLinkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	DeleteOutstandingMagicLinks(ctx context.Context, customerID int64) error
	PurgeExpiredMagicLinks(ctx context.Context, before time.Time) (int64, error)
}

type GormStorage struct {
	db *gorm.DB
}

type InMemoryStorage struct {
	mu         sync.Mutex
	customers  map[int64]*models.Customer
	magicLinks map[string]*models.MagicLink
	nextID     int64
}

// Open picks the dialector named by cfg.Driver. For sqlite, DBName is the
// database file path.
func Open(cfg config.DatabaseConfig) (*GormStorage, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewGormStorage(sqlite.Open(cfg.DBName))
	default:
		return NewPostgresStorage(BuildDSN(cfg))
	}
}

func NewPostgresStorage(dsn string) (*GormStorage, error) {
	return NewGormStorage(postgres.Open(dsn))
}

// NewGormStorage opens any gorm dialector and migrates the schema.
func NewGormStorage(dialector gorm.Dialector) (*GormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Customer{}, &models.MagicLink{}); err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		customers:  make(map[int64]*models.Customer),
		magicLinks: make(map[string]*models.MagicLink),
	}
}

func (s *GormStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.WithContext(ctx).Create(customer).Error
}

func (s *GormStorage) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	return s.findCustomer(ctx, "id = ?", id)
}

func (s *GormStorage) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return s.findCustomer(ctx, "LOWER(email) = ?", strings.ToLower(email))
}

func (s *GormStorage) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return s.findCustomer(ctx, "phone = ?", phone)
}

func (s *GormStorage) findCustomer(ctx context.Context, query string, arg interface{}) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *GormStorage) InsertMagicLink(ctx context.Context, link *models.MagicLink) error {
	return insertMagicLink(s.db.WithContext(ctx), link)
}

// ReplaceMagicLink retries when a concurrent replacement for the same
// customer commits first and trips the live-link index.
func (s *GormStorage) ReplaceMagicLink(ctx context.Context, link *models.MagicLink) error {
	var err error
	for i := 0; i < replaceAttempts; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := deleteOutstanding(tx, link.CustomerID); err != nil {
				return err
			}
			return tx.Create(link).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return err
}

func insertMagicLink(db *gorm.DB, link *models.MagicLink) error {
	err := db.Create(link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) && !link.IsUsed() {
		var live int64
		if cerr := db.Model(&models.MagicLink{}).
			Where("customer_id = ? AND used_at IS NULL", link.CustomerID).
			Count(&live).Error; cerr == nil && live > 0 {
			return ErrLiveMagicLink
		}
	}
	return err
}

func deleteOutstanding(db *gorm.DB, customerID int64) error {
	return db.Where("customer_id = ? AND used_at IS NULL", customerID).
		Delete(&models.MagicLink{}).Error
}

func (s *GormStorage) FindActiveMagicLinkByHash(ctx context.Context, tokenHash string) (*models.MagicLink, error) {
	var link models.MagicLink
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL", tokenHash).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMagicLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (s *GormStorage) MarkMagicLinkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.MagicLink{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStorage) DeleteOutstandingMagicLinks(ctx context.Context, customerID int64) error {
	return deleteOutstanding(s.db.WithContext(ctx), customerID)
}

func (s *GormStorage) PurgeExpiredMagicLinks(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.MagicLink{})
	return res.RowsAffected, res.Error
}

func (s *InMemoryStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.customers {
		if strings.EqualFold(c.Email, customer.Email) {
			return fmt.Errorf("customer with email %s already exists", customer.Email)
		}
	}
	if customer.ID == 0 {
		s.nextID++
		customer.ID = s.nextID
	} else if customer.ID > s.nextID {
		s.nextID = customer.ID
	}
	cp := *customer
	s.customers[cp.ID] = &cp
	return nil
}

func (s *InMemoryStorage) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.customers[id]
	if !exists {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStorage) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.customers {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCustomerNotFound
}

func (s *InMemoryStorage) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.customers {
		if c.Phone != "" && c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCustomerNotFound
}

func (s *InMemoryStorage) InsertMagicLink(ctx context.Context, link *models.MagicLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(link)
}

func (s *InMemoryStorage) ReplaceMagicLink(ctx context.Context, link *models.MagicLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.magicLinks {
		if l.TokenHash == link.TokenHash {
			return fmt.Errorf("magic link with hash already exists")
		}
	}
	s.deleteOutstandingLocked(link.CustomerID)
	return s.insertLocked(link)
}

func (s *InMemoryStorage) insertLocked(link *models.MagicLink) error {
	for _, l := range s.magicLinks {
		if l.TokenHash == link.TokenHash {
			return fmt.Errorf("magic link with hash already exists")
		}
		if !link.IsUsed() && !l.IsUsed() && l.CustomerID == link.CustomerID {
			return ErrLiveMagicLink
		}
	}
	cp := *link
	s.magicLinks[cp.ID] = &cp
	return nil
}

func (s *InMemoryStorage) FindActiveMagicLinkByHash(ctx context.Context, tokenHash string) (*models.MagicLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.magicLinks {
		if l.TokenHash == tokenHash && !l.IsUsed() {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrMagicLinkNotFound
}

func (s *InMemoryStorage) MarkMagicLinkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.magicLinks[id]
	if !exists || l.IsUsed() {
		return false, nil
	}
	t := usedAt
	l.UsedAt = &t
	return true, nil
}

func (s *InMemoryStorage) DeleteOutstandingMagicLinks(ctx context.Context, customerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteOutstandingLocked(customerID)
	return nil
}

func (s *InMemoryStorage) deleteOutstandingLocked(customerID int64) {
	for id, l := range s.magicLinks {
		if l.CustomerID == customerID && !l.IsUsed() {
			delete(s.magicLinks, id)
		}
	}
}

func (s *InMemoryStorage) PurgeExpiredMagicLinks(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.magicLinks {
		if l.ExpiresAt.Before(before) {
			delete(s.magicLinks, id)
			n++
		}
	}
	return n, nil
}

// MagicLinks returns a snapshot of every stored record.
func (s *InMemoryStorage) MagicLinks() []models.MagicLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.MagicLink, 0, len(s.magicLinks))
	for _, l := range s.magicLinks {
		out = append(out, *l)
	}
	return out
}

func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}
