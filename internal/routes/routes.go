package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/custody"
	"github.com/solstash/solstash/internal/idempotency"
	"github.com/solstash/solstash/internal/indexer"
	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/middleware"
	"github.com/solstash/solstash/internal/notification"
	"github.com/solstash/solstash/internal/payout"
	"github.com/solstash/solstash/internal/plan"
	"github.com/solstash/solstash/internal/scheduler"
	"github.com/solstash/solstash/internal/sweep"
	"github.com/solstash/solstash/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. The returned
// scheduler is nil when disabled; the caller owns its lifecycle.
func Setup(app *fiber.App, d Deps) (*scheduler.Scheduler, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends
	var ledgerBackend ledger.Ledger
	var walletRepo wallet.Repository
	var planRepo plan.Repository
	var register idempotency.Register
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		planRepo = plan.NewPostgresRepository(d.DB)
		register = idempotency.NewPostgresRegister(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		planRepo = plan.NewMemoryRepository()
		register = idempotency.NewInMemory()
	}

	// Chain access
	rpcClient, err := chain.NewClient(d.Cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	var signer chain.Signer
	var provider custody.Provider
	if d.Cfg.SignerAppID != "" {
		signer, err = chain.NewHTTPSigner(d.Cfg.SignerURL, d.Cfg.SignerAppID, d.Cfg.SignerSecret)
		if err != nil {
			return nil, err
		}
		provider, err = custody.NewHTTPProvider(d.Cfg.SignerURL, d.Cfg.SignerAppID, d.Cfg.SignerSecret)
		if err != nil {
			return nil, err
		}
	} else if d.Cfg.IsDev() {
		// Without signer credentials dev mode keeps keys in process memory.
		local := custody.NewLocalProvider()
		signer = local
		provider = local
	} else {
		return nil, fmt.Errorf("SIGNER_APP_ID is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	executor, err := chain.NewExecutor(d.Cfg, rpcClient, signer, d.Logger)
	if err != nil {
		return nil, err
	}

	// Services and handlers
	notifier := notification.NewLoggerNotifier(d.Logger)
	webhooks := indexer.NewLoggerWebhooks(d.Logger)
	walletSvc := wallet.NewService(walletRepo, ledgerBackend, provider, webhooks, d.Logger)
	planSvc := plan.NewService(planRepo, walletSvc, d.Logger)
	sweepSvc := sweep.NewService(walletRepo, ledgerBackend, register, executor, notifier, d.Logger, d.Cfg)
	payoutSvc := payout.NewService(planRepo, walletRepo, ledgerBackend, register, executor, notifier, d.Logger, d.Cfg)

	planHandler := plan.NewHandler(planSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	sweepHandler := sweep.NewHandler(sweepSvc, d.Cfg.TokenMint, d.Logger)
	payoutHandler := payout.NewHandler(payoutSvc)

	// API routes
	api := app.Group("/api/v1", middleware.Audit(d.Logger))
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	serviceAuth := middleware.ServiceToken(d.Cfg.PayoutAuthToken)
	RegisterPlanRoutes(api, planHandler, idem)
	RegisterWalletRoutes(api, walletHandler, sweepHandler, serviceAuth)
	RegisterWebhookRoutes(api, sweepHandler, middleware.WebhookRateLimit(d.Cache, 120))
	RegisterPayoutRoutes(api, payoutHandler, serviceAuth)

	var sched *scheduler.Scheduler
	if d.Cfg.SchedulerEnabled {
		sched = scheduler.New(planSvc, payoutSvc, d.Logger, d.Cfg.SchedulerSpec)
	}
	return sched, nil
}
