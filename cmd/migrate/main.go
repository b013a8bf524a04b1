package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketcore-backend/internal/users"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
	"github.com/angelmondragon/marketcore-backend/pkg/security"
)

const (
	rootPasswordEnv   = "MARKETCORE_ROOT_PASSWORD"
	minPasswordLength = 12
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up              apply every pending migration
  down            roll back the latest migration
  status          list migrations and whether they are applied
  to <version>    migrate up or down to YYYYMMDDHHMMSS
  create <name>   write a new migration into -dir
  validate        check the migration files in -dir
  seed-root <email> <name>
                  create an active root user; the password is read from
                  MARKETCORE_ROOT_PASSWORD
`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", migrate.SourceDir, "migration source directory for create and validate")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0), flag.Args()[1:], *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, dir string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	switch cmd {
	case "create":
		if arg == "" {
			return fmt.Errorf("create needs a migration name")
		}
		path, err := migrate.Create(dir, arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(os.DirFS(dir)); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite && cmd != "seed-root" {
		return fmt.Errorf("goose migrations target Postgres; sqlite databases are built from models")
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	if cmd == "seed-root" {
		if len(args) < 2 {
			return fmt.Errorf("seed-root needs an email and a name")
		}
		if cfg.FeatureFlags.UseSQLite {
			if err := migrate.Bootstrap(ctx, dbClient, true, logg); err != nil {
				return err
			}
		}
		return seedRoot(ctx, dbClient, cfg.Password, args[0], args[1], os.Getenv(rootPasswordEnv))
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Migrations())
	if err != nil {
		return err
	}
	defer runner.Close()

	var steps []migrate.Step
	switch cmd {
	case "up":
		steps, err = runner.Up(ctx)
	case "down":
		steps, err = runner.Down(ctx)
	case "to":
		if arg == "" {
			return fmt.Errorf("to needs a target version")
		}
		steps, err = runner.To(ctx, arg)
	case "status":
		steps, err = runner.Status(ctx)
		if err == nil {
			printStatus(steps)
		}
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	for _, s := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     s.Version,
			"file":        s.Path,
			"duration_ms": s.Duration.Milliseconds(),
		}), "migration step")
	}
	if err == nil {
		logg.Info(logg.WithField(ctx, "steps", len(steps)), "migrate finished")
	}
	return err
}

func printStatus(steps []migrate.Step) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range steps {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.Path)
	}
	_ = w.Flush()
}

func seedRoot(ctx context.Context, dbClient *db.Client, pw config.PasswordConfig, email, name, password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%s must hold at least %d characters", rootPasswordEnv, minPasswordLength)
	}
	hash, err := security.NewHasher(pw).Hash(password)
	if err != nil {
		return err
	}
	user := &models.User{Email: email, Name: name, PasswordHash: hash, IsRoot: true, IsActive: true, Roles: []string{"admin"}}
	if err := users.NewRepository(dbClient.DB()).Create(ctx, user); err != nil {
		return fmt.Errorf("seed root user: %w", err)
	}
	fmt.Println("created root user", user.ID, user.Email)
	return nil
}
