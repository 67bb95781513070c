package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mehmetcc/tenantcore/internal/auth"
	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/database"
	"github.com/mehmetcc/tenantcore/internal/metrics"
	"github.com/mehmetcc/tenantcore/internal/password"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/internal/server"
	"github.com/mehmetcc/tenantcore/internal/token"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		envFile string
		dev     bool
	)

	cmd := &cobra.Command{
		Use:           "tenantcore",
		Short:         "Authentication core for multi-tenant services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the process environment")
	cmd.PersistentFlags().BoolVar(&dev, "dev", false, "human-readable debug logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(dev, func(logger *zap.Logger) error {
				return serve(cmd.Context(), envFile, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(dev, func(logger *zap.Logger) error {
				return migrate(cmd.Context(), envFile, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an argon2id hash, reading the password from stdin if not given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hashPassword(cmd, args)
		},
	})

	return cmd
}

func withLogger(dev bool, fn func(*zap.Logger) error) error {
	newLogger := zap.NewProduction
	if dev {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	return fn(logger)
}

func serve(ctx context.Context, envFile string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(envFile, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// person store
	var repo person.PersonRepo
	switch cfg.DbConfig.Driver {
	case "memory":
		logger.Warn("using in-memory person store; data is lost on exit")
		repo = person.NewMemoryRepo(logger)
	default:
		db, err := database.Init(ctx, cfg.DbConfig)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()

		if err := database.Migrate(ctx, db, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		repo = person.NewPersonRepo(db, logger)
	}

	// crypto
	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return err
	}
	access, err := token.NewCodec(cfg.JWTConfig, token.ClassAccess)
	if err != nil {
		return fmt.Errorf("access codec: %w", err)
	}
	refresh, err := token.NewCodec(cfg.JWTConfig, token.ClassRefresh)
	if err != nil {
		return fmt.Errorf("refresh codec: %w", err)
	}

	// http
	m := metrics.New()
	authService, err := auth.NewAuthenticationService(repo, hasher, access, refresh, logger)
	if err != nil {
		return err
	}
	gate, err := auth.NewAuthGate(access, m, logger)
	if err != nil {
		return err
	}
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:   auth.NewAuthenticationHandler(authService, gate, cfg.CookieConfig, m, logger),
		PersonHandler: person.NewPersonHandler(repo, logger),
		Gate:          gate,
		Store:         repo,
		Metrics:       m,
		RateLimit:     cfg.RateLimitConfig,
		CORSOrigins:   cfg.AppConfig.CORSOrigins,
		Development:   cfg.AppConfig.Development,
		Logger:        logger,
	})

	return server.Run(ctx, cfg.AppConfig, router, logger)
}

func migrate(ctx context.Context, envFile string, logger *zap.Logger) error {
	cfg, err := config.LoadConfig(envFile, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DbConfig.Driver != "postgres" {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}

	db, err := database.Init(ctx, cfg.DbConfig)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func hashPassword(cmd *cobra.Command, args []string) error {
	var plaintext string
	if len(args) == 1 {
		plaintext = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		plaintext = strings.TrimRight(line, "\r\n")
	}
	if plaintext == "" {
		return errors.New("password must not be empty")
	}

	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return err
	}
	encoded, err := hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), encoded)
	return nil
}
