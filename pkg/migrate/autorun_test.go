package migrate_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

func emptySQLite(t *testing.T) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	client := db.NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	client := emptySQLite(t)
	cfg := &config.Config{}
	cfg.App.Env = "prod"
	cfg.FeatureFlags.AutoMigrate = true
	cfg.FeatureFlags.UseSQLite = true

	if err := migrate.MaybeRunDev(context.Background(), cfg, logger.Nop(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.DB().Migrator().HasTable("orders") {
		t.Fatal("schema must not be built outside dev")
	}
}

func TestBootstrapBuildsSQLiteSchema(t *testing.T) {
	client := emptySQLite(t)
	if err := migrate.Bootstrap(context.Background(), client, true, logger.Nop()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, table := range []string{"users", "orders", "payment_transactions", "outbox_events"} {
		if !client.DB().Migrator().HasTable(table) {
			t.Fatalf("table %s missing after bootstrap", table)
		}
	}
}
