/**
 * @description
 * This is the main entry point for the donation-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/collector, internal/config, internal/notify, internal/store: Internal packages for the service.
 * - pkg/crmclient, pkg/stripeclient, pkg/rabbitmq: Clients for external services.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lanedigital/donation-service/internal/api"
	"github.com/lanedigital/donation-service/internal/app"
	"github.com/lanedigital/donation-service/internal/collector"
	"github.com/lanedigital/donation-service/internal/config"
	"github.com/lanedigital/donation-service/internal/notify"
	"github.com/lanedigital/donation-service/internal/store"
	"github.com/lanedigital/donation-service/pkg/crmclient"
	dsrabbit "github.com/lanedigital/donation-service/pkg/rabbitmq"
	"github.com/lanedigital/donation-service/pkg/stripeclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.CRMAPIEndpointPrefix) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"crm endpoint prefix must be configured\" env=CRM_API_ENDPOINT_PREFIX")
	}
	if strings.TrimSpace(cfg.CRMAPIUsername) == "" || strings.TrimSpace(cfg.CRMAPIPassword) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"crm credentials must be configured\" env=CRM_API_USERNAME,CRM_API_PASSWORD")
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.StaffJWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"staff jwt secret must be configured\" env=STAFF_JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting donation-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
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

	// Initialize the RabbitMQ producer to publish email events.
	// This service only needs to publish, so we use a producer.
	var producer dsrabbit.Publisher
	rabbitProducer, err := dsrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &dsrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external API clients.
	crmClient := crmclient.NewClient(cfg.CRMAPIEndpointPrefix, cfg.CRMAPIUsername, cfg.CRMAPIPassword, cfg.CRMAPIInsecureSkipVerify)
	stripeClient := stripeclient.NewClient(cfg.StripeSecretKey)

	// Redis backs the public submission rate limiter. A missing or
	// unreachable Redis disables limiting rather than blocking startup.
	var redisClient *redis.Client
	if cfg.SubmissionRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; submission rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; submission rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; submission rate limiting disabled\" err=%v", pingErr)
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

	// Initialize the email dispatcher.
	dispatcher := notify.NewEmailDispatcher(producer, cfg.EmailEventExchange, notify.Recipients{
		Single:     cfg.NotifyEmailSingle,
		Recurring:  cfg.NotifyEmailRecurring,
		Sponsor:    cfg.NotifyEmailSponsor,
		Fundraiser: cfg.NotifyEmailFundraiser,
		Admin:      cfg.NotifyEmailAdmin,
	})

	// Initialize the core application service with its dependencies.
	donationService := app.NewService(
		repository,
		collector.New(cfg.HearOptions()),
		crmClient,
		stripeClient,
		dispatcher,
	)

	// Initialize the API handlers and router.
	donationHandlers := api.NewDonationHandlers(donationService, crmClient)

	routerCfg := api.RouterConfig{
		StaffJWTSecret:       cfg.StaffJWTSecret,
		AllowedOrigins:       cfg.Origins(),
		SubmissionRateLimit:  cfg.SubmissionRateLimitPerMinute,
		SubmissionRateWindow: time.Minute,
	}
	if redisClient != nil {
		routerCfg.SubmissionRateLimiter = app.NewRedisSubmissionRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	router := api.DonationRoutes(donationHandlers, routerCfg)

	// Start the HTTP server.
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
