/**
 * @description
 * This is the main entry point for the offer-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the payment processor client, message broker, repositories, the
 * core application service, background schedulers, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/checkoutclient: Client for the payment processor API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/collabry/offer-service/internal/api"
	"github.com/collabry/offer-service/internal/app"
	"github.com/collabry/offer-service/internal/config"
	"github.com/collabry/offer-service/internal/store"
	"github.com/collabry/offer-service/pkg/checkoutclient"
	rmrabbit "github.com/collabry/offer-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.ProcessorWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook secret must be configured\" env=PROCESSOR_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting offer-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish lifecycle events. A broker
	// outage degrades to a no-op producer rather than blocking payments.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.NoopProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the payment processor API.
	processorClient := checkoutclient.NewClient(cfg.ProcessorAPIBaseURL, cfg.ProcessorAPIKey)

	// Redis backs the checkout rate limiter; optional.
	var redisClient *redis.Client
	if cfg.CheckoutRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; checkout rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; checkout rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; checkout rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	offerService := app.NewService(
		repository,
		processorClient,
		producer,
		cfg.PlatformFeePct,
		app.RetryPolicy{
			MaxAttempts: cfg.ReconcileMaxAttempts,
			Interval:    time.Duration(cfg.ReconcileIntervalSeconds) * time.Second,
		},
	)
	if redisClient != nil {
		offerService.SetCheckoutRateLimiter(
			app.NewRedisCheckoutRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.CheckoutRateLimitPerMinute,
		)
	}

	// Start the background sweeps.
	jobs, err := app.NewJobs(offerService, cfg.OfferExpirySweepSchedule, cfg.ReconcileSweepSchedule)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler init failed\" err=%v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Initialize the API handlers.
	offerHandlers := api.NewOfferHandlers(offerService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.OfferRoutes(offerHandlers, cfg.AuthJWKSURL, cfg.ProcessorWebhookSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
