package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardshop/internal/auth"
	"cardshop/internal/config"
	"cardshop/internal/db"
	"cardshop/internal/email"
	"cardshop/internal/events"
	"cardshop/internal/logger"
	"cardshop/internal/payment"
	"cardshop/internal/purchase"
	"cardshop/internal/server"
	"cardshop/internal/user"
	"cardshop/internal/wallet"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// @title Cardshop API
// @version 1.0
// @description Wallets and coin purchases for the card shop.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := &cli.App{
		Name:  "cardshop",
		Usage: "wallet and coin purchase service",
		Before: func(*cli.Context) error {
			logger.Init(os.Getenv("LOG_LEVEL"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, email worker and purchase expiry sweep",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "expire-purchases",
				Usage: "expire unpaid purchases past their deadline",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "maximum rows per run"},
				},
				Action: expirePurchases,
			},
			{
				Name:  "token",
				Usage: "mint an access token for an operator or test client",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "role", Value: auth.RoleUser},
					&cli.DurationFlag{Name: "ttl", Value: auth.AccessTokenTTL},
				},
				Action: token,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("cardshop: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return database, nil
}

type services struct {
	db        *sqlx.DB
	mail      *email.Service
	publisher events.Publisher
	purchases purchase.Service
	handlers  server.Handlers
}

func build(cfg *config.Config, database *sqlx.DB) (*services, error) {
	providers, err := payment.NewRegistry(cfg.Payment, nil)
	if err != nil {
		return nil, errors.Wrap(err, "payment providers")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, errors.Wrap(err, "connect amqp")
		}
		publisher = amqpPublisher
	}

	mail := email.New(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)

	userRepo := user.NewRepository(database)
	walletRepo := wallet.NewRepository(database)
	purchaseRepo := purchase.NewRepository(database)

	users := user.NewService(userRepo, walletRepo, mail, publisher)
	purchases := purchase.NewService(
		purchaseRepo,
		walletRepo,
		db.NewTransactor(database),
		providers,
		userRepo,
		mail,
		publisher,
		purchase.Config{
			PurchaseTTL:   cfg.PurchaseTTL,
			ReturnPath:    cfg.PaymentReturnPath,
			PublicBaseURL: cfg.PublicBaseURL,
		},
	)

	return &services{
		db:        database,
		mail:      mail,
		publisher: publisher,
		purchases: purchases,
		handlers: server.Handlers{
			User:     user.NewHandler(users),
			Wallet:   wallet.NewHandler(walletRepo),
			Purchase: purchase.NewHandler(purchases),
			Mail:     mail,
		},
	}, nil
}

func (a *services) Close() {
	if err := a.publisher.Close(); err != nil {
		logger.Warn("failed to close event publisher", "error", err)
	}
	if err := a.mail.Close(); err != nil {
		logger.Warn("failed to close email queue", "error", err)
	}
	a.db.Close()
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)
	logger.Info("starting cardshop", "port", cfg.Port, "providers", cfg.Payment.EnabledProviders)

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	a, err := build(cfg, database)
	if err != nil {
		database.Close()
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.mail.Start(ctx)
	if cfg.ExpireInterval > 0 {
		go sweepExpired(ctx, a.purchases, cfg.ExpireInterval)
	}

	if err := server.New(cfg, a.handlers).Run(ctx); err != nil {
		return errors.Wrap(err, "http server")
	}
	logger.Info("server stopped")
	return nil
}

// sweepExpired expires stale purchases until ctx is cancelled.
func sweepExpired(ctx context.Context, purchases purchase.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purchases.ExpireStale(ctx, 100)
			if err != nil {
				logger.Error("purchase expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired stale purchases", "count", n)
			}
		}
	}
}

func migrate(*cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	logger.Info("migrations completed", "path", cfg.MigrationsPath)
	return nil
}

func expirePurchases(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	a, err := build(cfg, database)
	if err != nil {
		database.Close()
		return err
	}
	defer a.Close()

	n, err := a.purchases.ExpireStale(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	logger.Info("expired stale purchases", "count", n)
	return nil
}

func token(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	role := c.String("role")
	if role != auth.RoleUser && role != auth.RoleAdmin {
		return errors.Errorf("unknown role %q", role)
	}

	signed, err := auth.GenerateToken(c.Int("user-id"), c.String("email"), role, cfg.JWTSecret, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, signed)
	return nil
}
