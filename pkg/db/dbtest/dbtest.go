// Package dbtest opens isolated in-memory sqlite databases with the full
// schema for package tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
)

// Open returns a fresh database. A single connection is kept so concurrent
// transactions serialise the way row locks would serialise them on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=off", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func SeedUser(t testing.TB, conn *gorm.DB, name string, root bool) models.User {
	t.Helper()
	user := models.User{
		Email:    fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Name:     name,
		IsRoot:   root,
		IsActive: true,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func SeedShop(t testing.TB, conn *gorm.DB, ownerID uuid.UUID, staff ...uuid.UUID) models.Shop {
	t.Helper()
	shop := models.Shop{
		OwnerID:  ownerID,
		Name:     "shop",
		Slug:     "shop-" + uuid.NewString()[:8],
		IsActive: true,
	}
	if err := conn.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	for _, userID := range staff {
		if err := conn.Create(&models.ShopStaff{ShopID: shop.ID, UserID: userID}).Error; err != nil {
			t.Fatalf("seed staff: %v", err)
		}
	}
	return shop
}

func SeedCategory(t testing.TB, conn *gorm.DB, rate string) models.Category {
	t.Helper()
	category := models.Category{Name: "category"}
	if rate != "" {
		category.AdminCommissionRate = decimal.NewNullDecimal(D(rate))
	}
	if err := conn.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return category
}

// SeedProduct creates an active simple product.
func SeedProduct(t testing.TB, conn *gorm.DB, shopID, categoryID *uuid.UUID, price string, qty int) models.Product {
	t.Helper()
	product := models.Product{
		ShopID:      shopID,
		CategoryID:  categoryID,
		Name:        "product",
		Slug:        "product-" + uuid.NewString()[:8],
		ProductType: enums.ItemTypeSimple,
		Price:       D(price),
		Quantity:    qty,
		InStock:     qty > 0,
		IsActive:    true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedVariableProduct creates a variable product whose quantity is the sum of
// the given variation quantities.
func SeedVariableProduct(t testing.TB, conn *gorm.DB, shopID *uuid.UUID, price string, qtys ...int) (models.Product, []models.ProductVariation) {
	t.Helper()
	total := 0
	for _, q := range qtys {
		total += q
	}
	product := models.Product{
		ShopID:      shopID,
		Name:        "variable",
		Slug:        "variable-" + uuid.NewString()[:8],
		ProductType: enums.ItemTypeVariable,
		Price:       D(price),
		Quantity:    total,
		InStock:     total > 0,
		IsActive:    true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed variable product: %v", err)
	}
	variations := make([]models.ProductVariation, 0, len(qtys))
	for i, q := range qtys {
		variation := models.ProductVariation{
			ProductID: product.ID,
			Title:     fmt.Sprintf("option-%d", i+1),
			Price:     D(price),
			Quantity:  q,
			IsActive:  true,
		}
		if err := conn.Create(&variation).Error; err != nil {
			t.Fatalf("seed variation: %v", err)
		}
		variations = append(variations, variation)
	}
	return product, variations
}
