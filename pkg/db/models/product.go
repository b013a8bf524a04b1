package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Product is the sellable catalogue entry. Quantity on variable products is
// the sum of their variations and is recomputed on every stock mutation.
type Product struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ShopID            *uuid.UUID         `gorm:"column:shop_id;type:uuid;index"`
	CategoryID        *uuid.UUID         `gorm:"column:category_id;type:uuid"`
	Name              string             `gorm:"column:name;type:text;not null"`
	Slug              string             `gorm:"column:slug;type:text;not null"`
	SKU               *string            `gorm:"column:sku;type:text"`
	ProductType       enums.ItemType     `gorm:"column:product_type;type:text;not null;default:'simple'"`
	Price             decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	SalePrice         *decimal.Decimal   `gorm:"column:sale_price;type:numeric(12,2)"`
	PurchasePrice     *decimal.Decimal   `gorm:"column:purchase_price;type:numeric(12,2)"`
	Quantity          int                `gorm:"column:quantity;not null;default:0"`
	InStock           bool               `gorm:"column:in_stock;not null"`
	IsActive          bool               `gorm:"column:is_active;not null"`
	TotalSoldQuantity int                `gorm:"column:total_sold_quantity;not null;default:0"`
	Image             map[string]any     `gorm:"column:image;type:jsonb;serializer:json"`
	Variations        []ProductVariation `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariation is a purchasable option of a variable product.
type ProductVariation struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Title         string           `gorm:"column:title;type:text;not null"`
	SKU           *string          `gorm:"column:sku;type:text"`
	Price         decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	SalePrice     *decimal.Decimal `gorm:"column:sale_price;type:numeric(12,2)"`
	PurchasePrice *decimal.Decimal `gorm:"column:purchase_price;type:numeric(12,2)"`
	Quantity      int              `gorm:"column:quantity;not null;default:0"`
	IsActive      bool             `gorm:"column:is_active;not null"`
	Image         map[string]any   `gorm:"column:image;type:jsonb;serializer:json"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariation) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
