// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/taibuivan/idgate/internal/api"
	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/config"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/mailer"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/mongodb"
	pgstore "github.com/taibuivan/idgate/internal/platform/postgres"
	redisstore "github.com/taibuivan/idgate/internal/platform/redis"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// startupTimeout catches misconfiguration quickly rather than hanging.
const startupTimeout = 30 * time.Second

// # Infrastructure

// infrastructure holds the connections shared by every command.
type infrastructure struct {
	pool  *pgxpool.Pool
	redis *goredis.Client
	mongo *mongo.Client
	log   *slog.Logger
}

// connect opens PostgreSQL, Redis and, when sessions live there, MongoDB.
func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) *infrastructure {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	infra := &infrastructure{log: log}
	var err error

	infra.pool, err = pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")

	infra.redis, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")

	if cfg.SessionStore == config.SessionStoreMongo {
		infra.mongo, err = mongodb.NewClient(startupCtx, cfg.MongoURL, log)
		must(log, err, "connect to mongodb")
	}

	return infra
}

// close releases the connections in reverse order of opening.
func (infra *infrastructure) close() {
	if infra.mongo != nil {
		infra.log.Info("closing_mongodb_client")
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := infra.mongo.Disconnect(disconnectCtx); err != nil {
			infra.log.Error("mongodb_close_error", slog.Any("error", err))
		}
	}

	infra.log.Info("closing_redis_client")
	if err := infra.redis.Close(); err != nil {
		infra.log.Error("redis_close_error", slog.Any("error", err))
	}

	infra.log.Info("closing_postgres_pool")
	infra.pool.Close()
}

// checks returns the readiness probes for the open connections.
func (infra *infrastructure) checks() []api.Check {
	checks := []api.Check{
		{Name: "postgres", Probe: func(ctx context.Context) error { return pgstore.Ping(ctx, infra.pool) }},
		{Name: "redis", Probe: func(ctx context.Context) error { return redisstore.Ping(ctx, infra.redis) }},
	}
	if infra.mongo != nil {
		checks = append(checks, api.Check{Name: "mongodb", Probe: func(ctx context.Context) error { return mongodb.Ping(ctx, infra.mongo) }})
	}
	return checks
}

// # Session Manager

// newSessionStore selects the configured session backend.
func newSessionStore(ctx context.Context, cfg *config.Config, infra *infrastructure) session.Store {
	if infra.mongo == nil {
		return session.NewPostgresStore(infra.pool)
	}

	store := session.NewMongoStore(infra.mongo.Database(cfg.MongoDatabase))
	indexCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	must(infra.log, store.EnsureIndexes(indexCtx), "ensure session indexes")
	return store
}

func newSessionManager(ctx context.Context, cfg *config.Config, infra *infrastructure, recorder metrics.Recorder) *session.Manager {
	signer, err := sec.NewSigner(sec.SignerOptions{
		Secret:   cfg.Session.Secret,
		Issuer:   cfg.Session.Issuer,
		Audience: cfg.Session.Audience,
		Kind:     sec.KindSession,
		TTL:      cfg.Session.TokenTTL,
	})
	must(infra.log, err, "initialize session signer")

	return session.NewManager(newSessionStore(ctx, cfg, infra), signer, recorder, infra.log)
}

func newSweeper(cfg *config.Config, infra *infrastructure, manager *session.Manager, recorder metrics.Recorder) *session.Sweeper {
	return session.NewSweeper(
		manager,
		session.NewRedisLocker(infra.redis),
		cfg.Session.SweepInterval,
		cfg.Session.InactivityPeriod,
		recorder,
		infra.log,
	)
}

// # Mail

// newMailSender picks the delivering sender: Postmark when configured, the log otherwise.
func newMailSender(cfg *config.Config, log *slog.Logger) mailer.Sender {
	if cfg.Mail.PostmarkServerToken == "" {
		log.Warn("mail_sender_log_only")
		return mailer.NewLogSender(log)
	}

	sender, err := mailer.NewPostmarkSender(
		cfg.Mail.PostmarkServerToken,
		cfg.Mail.PostmarkAccountToken,
		cfg.Mail.SenderEmail,
		cfg.Mail.SupportEmail,
	)
	must(log, err, "initialize postmark sender")
	return sender
}

// newNotifier returns the dispatcher used by the Users service and a cleanup func.
// With a broker configured, emails are queued for the mail worker.
func newNotifier(cfg *config.Config, log *slog.Logger, recorder metrics.Recorder) (*mailer.Dispatcher, func()) {
	if cfg.AMQPURL == "" {
		return mailer.NewDispatcher(newMailSender(cfg, log), log, recorder, false), func() {}
	}

	publisher, err := mailer.NewQueuePublisher(cfg.AMQPURL, cfg.MailQueue)
	must(log, err, "connect to mail queue")

	return mailer.NewDispatcher(publisher, log, recorder, true), func() {
		if err := publisher.Close(); err != nil {
			log.Error("mail_queue_close_error", slog.Any("error", err))
		}
	}
}

// # Users Service

func newTokenSigner(log *slog.Logger, cfg *config.Config, token config.TokenConfig, kind sec.TokenKind) *sec.Signer {
	signer, err := sec.NewSigner(sec.SignerOptions{
		Secret: token.Secret,
		Issuer: cfg.Session.Issuer,
		Kind:   kind,
		TTL:    token.TTL,
	})
	must(log, err, "initialize "+string(kind)+" signer")
	return signer
}

// newIdentityService wires the Users service. The session manager doubles as
// the purger called after password resets and provider removal.
func newIdentityService(cfg *config.Config, infra *infrastructure, manager *session.Manager, notifier identity.Notifier, hasher sec.Hasher, recorder metrics.Recorder) *identity.Service {
	repository := identity.NewRepository(infra.pool)

	tokens := identity.NewTokenFlow(identity.TokenFlowDeps{
		Repository:   repository,
		Verification: newTokenSigner(infra.log, cfg, cfg.Verification, sec.KindEmailVerification),
		Reset:        newTokenSigner(infra.log, cfg, cfg.Reset, sec.KindPasswordReset),
		Ledger:       identity.NewTokenLedger(infra.redis),
		Hasher:       hasher,
		Purger:       manager,
		PurgeTimeout: cfg.CompanionTimeout,
		Emails:       identity.NewEmailComposer(cfg.PublicAPIURL, cfg.PublicWebURL),
		Notifier:     notifier,
		Metrics:      recorder,
		Logger:       infra.log,
	})

	engine := identity.NewEngine(repository, identity.NewFactory(hasher), tokens, recorder, infra.log)

	return identity.NewService(repository, engine, tokens, manager, cfg.CompanionTimeout, infra.log)
}

func newHasher() sec.Hasher {
	return sec.NewBcryptHasher(constants.BcryptCost)
}
