package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"

	"github.com/KhaoulaIchou/gestion-stocks/internal/api"
	"github.com/KhaoulaIchou/gestion-stocks/internal/config"
	"github.com/KhaoulaIchou/gestion-stocks/internal/db"
	"github.com/KhaoulaIchou/gestion-stocks/internal/lifecycle"
	"github.com/KhaoulaIchou/gestion-stocks/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gestion-stocks",
		Short:         "Machine lifecycle tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newInitCmd(&configPath),
		newSweepCmd(&configPath),
	)
	return root
}

func loadConfigAndLogger(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			jwtSecret := cfg.Auth.JWTSecret
			if jwtSecret == "" {
				jwtSecret, err = generatePassword(32)
				if err != nil {
					return fmt.Errorf("generating JWT secret: %w", err)
				}
				logger.Warn("JWT secret auto-generated, tokens are invalidated on restart")
			}

			// First run: create the database with an admin account.
			if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
				database, password, err := initDatabase(cfg.Database.Path, "admin@example.com")
				if err != nil {
					return fmt.Errorf("initializing database: %w", err)
				}
				database.Close()
				printInitResult(cfg.Database.Path, "admin@example.com", password)
			}

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer database.Close()

			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
			logger.Info("database ready", zap.String("path", cfg.Database.Path))

			handler := api.NewRouter(database, logger, api.RouterConfig{
				JWTSecret:      jwtSecret,
				TokenExpiry:    cfg.Auth.TokenExpiry,
				RetentionYears: cfg.Retention.Years,
			})

			server := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-quit
				logger.Info("shutdown signal received", zap.String("signal", sig.String()))

				ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server forced to shutdown", zap.Error(err))
				}
			}()

			logger.Info("server started", zap.String("addr", cfg.Server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	var adminEmail string
	var seedDestinations bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database with an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.Database.Path); err == nil {
				return fmt.Errorf("database file %s already exists", cfg.Database.Path)
			}

			database, password, err := initDatabase(cfg.Database.Path, adminEmail)
			if err != nil {
				return err
			}
			defer database.Close()

			if seedDestinations {
				created, err := store.SeedDestinations(cmd.Context(), database)
				if err != nil {
					return fmt.Errorf("seeding destinations: %w", err)
				}
				fmt.Printf("Seeded %d destinations.\n", created)
			}

			printInitResult(cfg.Database.Path, adminEmail, password)
			return nil
		},
	}

	cmd.Flags().StringVar(&adminEmail, "admin-email", "admin@example.com", "email for the admin account")
	cmd.Flags().BoolVar(&seedDestinations, "seed-destinations", false, "seed the jurisdiction destination catalogue")
	return cmd
}

func newSweepCmd(configPath *string) *cobra.Command {
	var years int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retire machines whose history is older than the retention threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer database.Close()

			if years == 0 {
				years = cfg.Retention.Years
			}

			result, err := lifecycle.SweepRetention(cmd.Context(), database, logger, years)
			if err != nil {
				return err
			}

			fmt.Printf("Retired %d machine(s).\n", result.Updated)
			for _, ref := range result.Machines {
				fmt.Printf("  %s\n", ref)
			}
			if len(result.Failed) > 0 {
				fmt.Printf("Failed: %d machine(s).\n", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&years, "years", 0, "retention age in years (default from config)")
	return cmd
}

// initDatabase creates a new database, runs migrations, and creates the
// admin user with a generated password.
func initDatabase(path, adminEmail string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(database); err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("running migrations: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	ctx := context.Background()
	if _, err := store.CreateUser(ctx, database, adminEmail, string(hash), "admin"); err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("creating admin user: %w", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, email, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
