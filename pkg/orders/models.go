package orders

import "time"

// Order is a finalized order in the external order store.
type Order struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey"`
	IncrementID string    `json:"increment_id" gorm:"column:increment_id;uniqueIndex"`
	QuoteID     int64     `json:"quote_id,omitempty" gorm:"column:quote_id;index"`
	Status      string    `json:"status" gorm:"column:status"`
	GrandTotal  float64   `json:"grand_total" gorm:"column:grand_total"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// Quote is a pending cart that can be converted into an order. A quote
// may carry a reserved order increment id assigned before checkout
// completed, which reconciliation uses as a secondary lookup key.
type Quote struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ReservedOrderID string    `json:"reserved_order_id,omitempty" gorm:"column:reserved_order_id;index"`
	CustomerEmail   string    `json:"customer_email,omitempty" gorm:"column:customer_email"`
	IsActive        bool      `json:"is_active" gorm:"column:is_active;index"`
	ItemsCount      int       `json:"items_count" gorm:"column:items_count"`
	GrandTotal      float64   `json:"grand_total" gorm:"column:grand_total"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Quote) TableName() string {
	return "quotes"
}
