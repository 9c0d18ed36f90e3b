package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrQuoteInactive = errors.New("quote is no longer active")

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Order{})
}

// FindByIncrementID returns the order for incrementID, or nil when no
// such order exists.
func (r *OrderRepository) FindByIncrementID(ctx context.Context, incrementID string) (*Order, error) {
	var order Order
	result := r.db.WithContext(ctx).First(&order, "increment_id = ?", incrementID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &order, nil
}

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Quote{})
}

// LoadByID returns the quote with the given id, or nil when absent.
func (r *QuoteRepository) LoadByID(ctx context.Context, id int64) (*Quote, error) {
	var quote Quote
	result := r.db.WithContext(ctx).First(&quote, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &quote, nil
}

// LoadByReservedOrderID returns the quote whose checkout reserved the
// given order increment id, or nil when none did.
func (r *QuoteRepository) LoadByReservedOrderID(ctx context.Context, incrementID string) (*Quote, error) {
	var quote Quote
	result := r.db.WithContext(ctx).First(&quote, "reserved_order_id = ?", incrementID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &quote, nil
}

// Submit converts a quote into an order inside one transaction: the
// order row is created and the quote deactivated together, so a
// concurrent submission of the same quote fails on the unique
// increment id instead of double-creating.
func (r *QuoteRepository) Submit(ctx context.Context, quote *Quote) (*Order, error) {
	if quote == nil {
		return nil, errors.New("nil quote")
	}
	if !quote.IsActive {
		return nil, ErrQuoteInactive
	}

	incrementID := quote.ReservedOrderID
	if incrementID == "" {
		incrementID = fmt.Sprintf("1%09d", quote.ID)
	}

	now := time.Now().UTC()
	order := &Order{
		ID:          uuid.New().String(),
		IncrementID: incrementID,
		QuoteID:     quote.ID,
		Status:      "new",
		GrandTotal:  quote.GrandTotal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Model(&Quote{}).
			Where("id = ?", quote.ID).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}
