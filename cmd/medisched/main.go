package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/availability"
	"github.com/medisched/medisched/internal/pkg/billing"
	"github.com/medisched/medisched/internal/pkg/booking"
	"github.com/medisched/medisched/internal/pkg/cache"
	"github.com/medisched/medisched/internal/pkg/config"
	"github.com/medisched/medisched/internal/pkg/database"
	"github.com/medisched/medisched/internal/pkg/directory"
	"github.com/medisched/medisched/internal/pkg/mail"
	"github.com/medisched/medisched/internal/pkg/mq"
	"github.com/medisched/medisched/internal/pkg/notify"
	"github.com/medisched/medisched/internal/pkg/router"
	"github.com/medisched/medisched/internal/pkg/security"
	"github.com/medisched/medisched/internal/pkg/tenantgate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, shutdown, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	if err := serve(app, cfg.ListenAddr(), shutdown); err != nil {
		log.Fatal(err)
	}
}

// serve blocks until the app stops listening and releases its connections
// before returning, whether Listen failed or a shutdown signal stopped it.
func serve(app *fiber.App, addr string, shutdown func()) error {
	err := app.Listen(addr)
	shutdown()
	return err
}

// NewApplication wires storage, messaging and services into a fiber app.
// The returned func releases the connections it opened.
func NewApplication(cfg config.Config) (*fiber.App, func(), error) {
	db, err := database.SetupDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	c := cache.SetupCache(cfg)

	var bus notify.EventPublisher = mq.Discard{}
	var amqpPub *mq.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err = mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("RabbitMQ unavailable, domain events are dropped: %v", err)
		} else {
			bus = amqpPub
		}
	}
	notifier := notify.New(mail.New(cfg), bus)

	tokens, err := security.NewTokens(cfg.JWTSecret, cfg.JWTTTL(), time.Now)
	if err != nil {
		return nil, nil, err
	}

	factory := repository.NewFactory(db)
	repos := factory.GetRepositories()
	gate := tenantgate.New(repos.Organization, repos.User)
	deps := router.Dependencies{
		Config:    cfg,
		Tokens:    tokens,
		Directory: directory.New(repos, gate, notifier, c, time.Now),
		Publisher: availability.NewPublisher(repos, gate, availability.WindowFromConfig(cfg), time.Now),
		Arbiter:   booking.NewArbiter(repos, gate, notifier, time.Now),
		Billing:   billing.NewSynchronizerFromDB(factory.DB(), gate, notifier, billing.OptionsFromConfig(cfg), time.Now),
		Cache:     c,
	}

	app := fiber.New(fiber.Config{
		AppName:   "medisched",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics, disabled without a password
	if cfg.MetricsPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MetricsUser: cfg.MetricsPassword,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, deps)

	shutdown := func() {
		notifier.Wait()
		if amqpPub != nil {
			_ = amqpPub.Close()
		}
		_ = c.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, shutdown, nil
}

func findOpenAPISpec() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/medisched to project root
		"../../../", // Fallback
	}
	for _, base := range basePaths {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	log.Printf("openapi.yml not found, API docs disabled")
	return ""
}
