package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/crdb"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/mongo"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/redis"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/admission"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/artifact"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/catalog"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/config"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/credential"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/gateway"
	httphandler "github.com/robertarktes/ticket-issuance-and-admission/internal/http"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/idempotency"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/issuance"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/notify"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/operator"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "tia-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	var led ledger.Ledger
	switch cfg.LedgerBackend {
	case "memory":
		logger.Warn("using in-memory ledger, data is lost on restart")
		led = memory.NewLedger()
	default:
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		led = repo
	}

	var (
		cat           catalog.Catalog       = catalog.NewStatic()
		idempotencyKV idempotency.Store     = idempotency.NewMemoryStore()
		issueAuditor  issuance.Auditor
		admitAuditor  admission.Auditor
		limiter       httphandler.Limiter
		operators     operator.Directory
		sessions      operator.SessionStore = operator.NewMemorySessions()
	)
	ready := map[string]httphandler.Pinger{"ledger": led}
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoDB := mongoClient.Database(cfg.MongoDB)
		cat = mongoadapter.NewCatalogRepository(mongoDB, logger)
		audit := mongoadapter.NewAuditLogger(mongoDB, logger)
		issueAuditor, admitAuditor = audit, audit
		operators = mongoadapter.NewOperatorRepository(mongoDB, logger)
	} else {
		logger.Warn("MONGO_URI not set, serving an empty catalog")
		static, err := operator.ParseOperators(cfg.ScannerOperators)
		if err != nil {
			log.Fatalf("failed to read SCANNER_OPERATORS: %v", err)
		}
		if static.Len() == 0 {
			logger.Warn("no scanner operators configured, admission scans will be refused")
		}
		operators = static
	}
	// Confirmation re-checks quotes against the backend, never the cache.
	freshCat := cat
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		cat = catalog.NewCached(cat, redisCache, cfg.CatalogCacheTTL, logger)
		idempotencyKV = redisadapter.NewIdempotency(redisClient)
		limiter = rateLimit.NewRateLimiter(redisCache)
		ready["redis"] = redisCache
		sessions = redisadapter.NewSessions(redisClient)
	}

	var gw gateway.Gateway
	switch cfg.GatewayBackend {
	case "fake":
		logger.Warn("using fake payment gateway")
		gw = &gateway.Fake{}
	default:
		gw = gateway.NewRazorpayClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	}

	codec, err := credential.NewCodec([]byte(cfg.CredentialSecret))
	if err != nil {
		log.Fatalf("failed to build credential codec: %v", err)
	}
	renderer, err := artifact.NewPDFRenderer(cfg.ArtifactDir)
	if err != nil {
		log.Fatalf("failed to prepare artifact dir: %v", err)
	}

	dispatcher, closeDispatcher, err := newDispatcher(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to set up notifications: %v", err)
	}
	defer closeDispatcher()

	svc := issuance.NewService(issuance.Deps{
		Ledger:     led,
		Catalog:    cat,
		Fresh:      freshCat,
		Gateway:    gw,
		Codec:      codec,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Auditor:    issueAuditor,
		Currency:   cfg.GatewayCurrency,
		Logger:     logger,
	})
	validator := admission.NewValidator(led, codec, admitAuditor, logger)

	handlers := httphandler.NewHandlers(svc, validator, cat, ready, logger)
	r := httphandler.SetupRouter(handlers, httphandler.RouterOptions{
		Idempotency:     idempotency.NewIdempotency(idempotencyKV, cfg.IdempotencyTTL),
		Limiter:         limiter,
		RateLimitPerMin: cfg.RateLimitPerMin,
		ScanRateLimit:   cfg.ScanRateLimit,
		ScannerAuth:     operator.NewAuthenticator(operators, sessions, cfg.ScannerSessionTTL),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	logger.Info("Server exiting")
}

// newDispatcher sends notifications in-process or hands them to the
// notifier over RabbitMQ, depending on NOTIFY_MODE.
func newDispatcher(ctx context.Context, cfg *config.Config, logger observability.Logger) (notify.Dispatcher, func(), error) {
	if cfg.NotifyMode == "rabbit" {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to rabbitmq")
		}
		pub, err := rabbit.NewPublisher(conn)
		if err != nil {
			conn.Close()
			return nil, nil, errors.Wrap(err, "create publisher")
		}
		return notify.NewQueueDispatcher(pub, logger), func() {
			pub.Close()
			conn.Close()
		}, nil
	}

	email, messages := notify.SendersFromConfig(cfg, logger)
	pool := notify.NewPool(email, messages, cfg.NotifyWorkers, cfg.NotifyQueueSize, logger)
	pool.Start(context.WithoutCancel(ctx))
	return pool, pool.Close, nil
}
