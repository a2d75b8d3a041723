package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"phishguard/internal/config"
	"phishguard/internal/database"
	"phishguard/internal/handlers"
	"phishguard/internal/jobs"
	"phishguard/internal/logging"
	"phishguard/internal/middleware"
	"phishguard/internal/preflight"
	"phishguard/internal/reading"
	"phishguard/internal/reporting"
	"phishguard/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	logging.Init()
	log.Println("🚀 Starting PhishGuard reading service...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// MongoDB is optional: reading snapshots for analytics
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️  MongoDB unavailable, reading analytics disabled: %v", err)
		} else {
			defer mongoDB.Close(context.Background())
			if err := mongoDB.Initialize(ctx); err != nil {
				log.Printf("⚠️  Failed to create MongoDB indexes: %v", err)
			}
		}
	}

	// Redis is optional: cross-instance cache invalidation and the digest lock
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	instanceID := uuid.New().String()
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, running single-instance: %v", err)
		} else {
			defer redisService.Close()
			pubsubService = services.NewPubSubService(redisService, instanceID)
		}
	}

	checker := preflight.NewChecker(db, cfg)
	if mongoDB != nil {
		checker.AddDependency("MongoDB", mongoDB)
	}
	if redisService != nil {
		checker.AddDependency("Redis", redisService)
	}
	if preflight.HasFailures(checker.RunAll()) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	policies, err := config.NewPolicyStore(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to load reading policy: %v", err)
	}
	if err := policies.Watch(ctx); err != nil {
		log.Printf("⚠️  Policy file watcher disabled: %v", err)
	}

	sessions := services.NewSessionManager()
	metrics := services.InitMetrics(sessions)
	analytics := services.NewAnalyticsService(mongoDB)

	policies.OnChange(func(p reading.Policy, t reading.Thresholds) {
		sessions.SetPolicy(p)
		log.Printf("🔄 [POLICY] Applied %s policy to %d live sessions (min %.2fs/word)", p.Name(), sessions.Count(), t.MinSecondsPerWord)
	})

	verdicts := services.NewVerdictService(db, policies)
	verdicts.SetMetrics(metrics)
	verdicts.SetAnalytics(analytics)

	training, err := services.NewTrainingService(db, cfg.Training.ReinforcementDelay, cfg.Training.DigestCron)
	if err != nil {
		log.Fatalf("❌ Failed to create training service: %v", err)
	}
	training.SetMetrics(metrics)
	training.SetAnalytics(analytics)
	verdicts.SetTrainingScheduler(training)

	if pubsubService != nil {
		verdicts.SetPublisher(pubsubService)
		training.SetPublisher(pubsubService)
		training.SetRedis(redisService)

		// Another instance stored a newer verdict; drop our cached copy
		pubsubService.Subscribe(services.ChannelReadingVerdicts, func(channel string, msg *services.PubSubMessage) {
			if msg.Type == services.MessageVerdictRecorded {
				verdicts.Invalidate(msg.TrackingID)
			}
		})
		if err := pubsubService.Start(); err != nil {
			log.Printf("⚠️  Failed to start PubSub: %v", err)
		}
	}

	if err := training.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start training scheduler: %v", err)
	}

	// Collectors deliver in-process unless a remote collaborator is configured
	var reporter reading.Reporter = verdicts
	if cfg.Reading.ReportURL != "" {
		beacon := reporting.NewBeaconClient(cfg.Reading.ReportURL, reporting.DefaultTimeout)
		reporter = beacon
		log.Printf("📤 Reading verdicts delivered to %s", beacon.Endpoint())
	}

	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("idle_session_reaper", jobs.NewIdleSessionReaperJob(sessions, cfg.Reading.IdleTimeout, time.Minute))
	jobScheduler.Register("verdict_retention", jobs.NewVerdictRetentionJob(verdicts, cfg.Training.VerdictRetentionDays))
	jobScheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:               "PhishGuard Reading v1.0",
		DisableStartupMessage: cfg.IsProduction(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             10 * 1024 * 1024, // raw documents posted for server-side word counts
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("phishguard")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	limits := middleware.NewRateLimits(cfg)
	app.Use("/api", middleware.GlobalAPIRateLimiter(limits))

	healthHandler := handlers.NewHealthHandler(sessions)
	readingHandler := handlers.NewReadingHandler(verdicts, policies)
	trainingHandler := handlers.NewTrainingHandler(training)
	readingWSHandler := handlers.NewReadingWebSocketHandler(sessions, reporter, policies, cfg.Reading, metrics)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/reading/verdict", middleware.BeaconRateLimiter(limits), readingHandler.SubmitVerdict)
	api.Get("/reading/verdicts/:trackingId", readingHandler.GetVerdict)
	api.Get("/reading/policy", readingHandler.GetPolicy)
	api.Get("/training/assignments", trainingHandler.ListPending)
	api.Get("/training/assignments/:trackingId", trainingHandler.GetAssignment)
	api.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(jobScheduler.GetStatus())
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/reading", middleware.WebSocketRateLimiter(limits))
	app.Get("/ws/reading", websocket.New(readingWSHandler.Handle, websocket.Config{
		Origins: strings.Split(cfg.AllowedOrigins, ","),
	}))

	log.Printf("📖 Reading endpoint: ws://localhost:%s/ws/reading", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")

		// Closing live connections flushes each session's final report
		for _, s := range sessions.GetAll() {
			if s.Close != nil {
				s.Close()
			}
		}

		jobScheduler.Stop()
		if err := training.Stop(); err != nil {
			log.Printf("⚠️  Error stopping training scheduler: %v", err)
		}
		if pubsubService != nil {
			if err := pubsubService.Stop(); err != nil {
				log.Printf("⚠️  Error stopping PubSub: %v", err)
			}
		}
		cancel()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
