package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the aggregate root. A nil UserID marks a guest cart.
type Cart struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     *string   `gorm:"size:50;index" json:"user_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ModifiedAt time.Time `gorm:"autoUpdateTime" json:"modified_at"`

	// Relationships
	CartItems []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"cart_items,omitempty"`
}

func (Cart) TableName() string {
	return "carts"
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsGuest reports whether the cart has no owner.
func (c *Cart) IsGuest() bool {
	return c.UserID == nil || *c.UserID == ""
}

type CartItem struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CartID     string    `gorm:"type:varchar(36);not null;index" json:"cart_id"`
	ProdID     string    `gorm:"size:100;not null" json:"prod_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ModifiedAt time.Time `gorm:"autoUpdateTime" json:"modified_at"`

	// Relationships
	ItemOptions []ItemOption `gorm:"foreignKey:CartItemID;constraint:OnDelete:CASCADE" json:"item_options"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

type ItemOption struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CartItemID uint      `gorm:"not null;index" json:"cart_item_id"`
	Attribute  string    `gorm:"size:60;not null" json:"attribute"`
	Value      string    `gorm:"size:60;not null" json:"value"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	ModifiedAt time.Time `gorm:"autoUpdateTime" json:"modified_at"`
}

func (ItemOption) TableName() string {
	return "item_options"
}
