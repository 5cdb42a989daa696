package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/database"
	"github.com/anjiri1684/affiliate_ledger/handlers"
	"github.com/anjiri1684/affiliate_ledger/jobs"
	"github.com/anjiri1684/affiliate_ledger/notifications"
	"github.com/anjiri1684/affiliate_ledger/routes"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/anjiri1684/affiliate_ledger/websocket"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("🔥 Failed to load config: %v", err)
	}

	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	if err := database.SeedAdmin(db, cfg.Auth); err != nil {
		log.Fatalf("🔥 Failed to seed admin: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	events := services.NewDispatcher()
	events.Register("log", services.LogPublisher{})
	events.Register("websocket", hub)

	if brevo := notifications.NewBrevoService(cfg.Email); brevo != nil {
		events.Register("email", services.Async("email", notifications.NewEmailNotifier(brevo, db), 30*time.Second))
	} else {
		log.Println("⚠️ BREVO_API_KEY not set, e-mail notifications disabled")
	}

	if len(cfg.Services.KafkaBrokers) > 0 {
		kafka, err := notifications.NewKafkaPublisher(cfg.Services.KafkaBrokers, cfg.Services.KafkaTopic)
		if err != nil {
			log.Fatalf("🔥 Failed to create Kafka publisher: %v", err)
		}
		defer kafka.Close()
		events.Register("kafka", kafka)
	}

	if cfg.Services.CloudinaryURL != "" {
		cld, err := cloudinary.NewFromURL(cfg.Services.CloudinaryURL)
		if err != nil {
			log.Fatalf("🔥 Failed to initialize Cloudinary: %v", err)
		}
		receipts := services.NewReceiptService(db, services.ChromePDF, services.CloudinaryUploader(cld))
		events.Register("receipts", services.Async("receipts", receipts, 2*time.Minute))
	}

	var deduper services.ClickDeduper
	if cfg.Services.RedisURL != "" {
		rdb, err := services.ConnectRedis(cfg.Services.RedisURL)
		if err != nil {
			log.Fatalf("🔥 Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		deduper = services.NewRedisDeduper(rdb, cfg.Services.ClickDedupeWindow)
	} else {
		deduper = services.NewMemoryDeduper(cfg.Services.ClickDedupeWindow)
	}

	clock := services.Clock(services.SystemClock)
	locker := services.NewAffiliateLocker(db, cfg.Ledger)
	referrals := services.NewReferralService(db, cfg.Ledger, events, clock)
	commissions := services.NewCommissionService(db, locker, referrals, cfg.Ledger, events, clock)

	maturation := jobs.NewMaturationJob(db, locker, commissions, events, clock)
	stats, err := jobs.NewDailyStatsJob(db, clock)
	if err != nil {
		log.Fatalf("🔥 Failed to prepare stats job: %v", err)
	}

	c, err := jobs.NewScheduler(cfg.Jobs, cfg.Ledger.HoldingPeriodDays, maturation, stats)
	if err != nil {
		log.Fatalf("🔥 Failed to schedule jobs: %v", err)
	}
	c.Start()
	defer c.Stop()
	log.Println("✅ Ledger jobs scheduled successfully.")

	h := &handlers.Handler{
		Affiliates:    services.NewAffiliateService(db, locker, events, clock),
		Referrals:     referrals,
		Commissions:   commissions,
		Payouts:       services.NewPayoutService(db, locker, cfg.Ledger, events, clock),
		Coupons:       services.NewCouponService(db, clock),
		Orders:        services.NewOrderService(db, referrals, commissions, clock),
		Clicks:        services.NewClickService(db, deduper),
		Maturation:    maturation,
		Stats:         stats,
		Hub:           hub,
		Policy:        cfg.Ledger,
		JWTSecret:     cfg.Auth.JWTSecret,
		FrontendURL:   cfg.Server.FrontendURL,
		CloudinaryURL: cfg.Services.CloudinaryURL,
	}

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Affiliate Ledger",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Callback-Token, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Disposition",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   cfg.Server.TimeZone,
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Affiliate Ledger API",
		})
	})

	routes.PublicRoutes(app, h, cfg.Auth.OrderWebhookToken)
	routes.AffiliateRoutes(app, h, cfg.Auth.JWTSecret)
	routes.AdminRoutes(app, h, cfg.Auth.JWTSecret)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("🔥 Server shutdown failed: %v", err)
		}
	}()

	log.Printf("✅ Server is running on %s", cfg.Server.Addr())
	if err := app.Listen(cfg.Server.Addr()); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
