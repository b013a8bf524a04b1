package models

// All lists every persisted model. Used by tests and sqlite dev mode to build
// the schema with AutoMigrate; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Shop{},
		&ShopStaff{},
		&Category{},
		&Product{},
		&ProductVariation{},
		&InventoryLog{},
		&Order{},
		&OrderLine{},
		&OrderStatusHistory{},
		&PaymentTransaction{},
		&ShopEarning{},
		&ShopWithdrawRequest{},
		&ReturnRequest{},
		&ReturnItem{},
		&UserWallet{},
		&WalletTransaction{},
		&Notification{},
		&EmailTemplate{},
		&WishlistItem{},
		&CartItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
