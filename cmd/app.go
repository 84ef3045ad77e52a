package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/config"
	"github.com/Shivanand-hulikatti/classbook/internal/database"
	"github.com/Shivanand-hulikatti/classbook/internal/ledger"
	"github.com/Shivanand-hulikatti/classbook/internal/logging"
	"github.com/Shivanand-hulikatti/classbook/internal/notify"
	"github.com/Shivanand-hulikatti/classbook/internal/obs"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
	"github.com/Shivanand-hulikatti/classbook/internal/repository/memory"
)

// app holds what every subcommand shares: config, logger, clock, stores.
type app struct {
	cfg   config.App
	log   *slog.Logger
	clock clock.Clock

	pool     *pgxpool.Pool // nil with the memory driver
	bookings repository.BookingStore
	classes  repository.ClassStore
	users    repository.UserStore

	closers []func()
}

// setup loads config, starts tracing and opens the configured store.
func setup(ctx context.Context, service string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:   cfg,
		log:   logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat).With("service", service),
		clock: clock.Real{},
	}

	shutdown, err := obs.InitTracer(ctx, service, cfg.OTelEndpoint, cfg.Env)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = shutdown(context.Background()) })

	switch cfg.StoreDriver {
	case "memory":
		db := memory.New(cfg.LockTimeout)
		a.bookings, a.classes, a.users = db.Bookings(), db.Classes(), db.Users()
		a.log.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := database.NewPool(ctx, cfg.DB.DSN(), a.log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("database: %w", err)
		}
		a.onClose(pool.Close)
		a.pool = pool
		a.bookings = repository.NewBookingRepository(pool, cfg.LockTimeout)
		a.classes = repository.NewClassRepository(pool)
		a.users = repository.NewUserRepository(pool)
		a.log.Info("connected to postgres")
	}
	return a, nil
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// close runs deferred cleanups in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// migrate applies pending migrations. It is a no-op for the memory store.
func (a *app) migrate(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	applied, err := database.Migrate(ctx, a.pool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		a.log.Info("migration applied", "version", name)
	}
	return nil
}

// mailSender builds the configured outbound transport.
func (a *app) mailSender() (notify.Sender, error) {
	m := a.cfg.Mail
	switch m.Transport {
	case "mailersend":
		return notify.NewMailerSend(m.MailerSendAPIKey), nil
	case "amqp":
		p, err := notify.NewPublisher(m.RabbitURL, m.Exchange, m.RoutingKey)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = p.Close() })
		return p, nil
	default:
		return notify.LogSender{Log: a.log.With("component", "mail")}, nil
	}
}

func (a *app) notifier(sender notify.Sender) *notify.Notifier {
	return notify.New(notify.Config{FromEmail: a.cfg.Mail.From, FromName: a.cfg.Mail.FromName}, sender, a.log)
}

func (a *app) ledger(n ledger.Notifier) (*ledger.Ledger, error) {
	policy, err := ledger.ParseCapacityPolicy(a.cfg.CapacityPolicy)
	if err != nil {
		return nil, err
	}
	return ledger.New(a.bookings, a.users, n, a.clock, a.log, ledger.WithCapacityPolicy(policy)), nil
}
