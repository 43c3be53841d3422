package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/grantdelgado/unveil-sub008/internal/http/handlers"
	httpmw "github.com/grantdelgado/unveil-sub008/internal/http/middleware"
	"github.com/grantdelgado/unveil-sub008/internal/mailer"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/internal/repo/redisstore"
	"github.com/grantdelgado/unveil-sub008/internal/service"
	"github.com/grantdelgado/unveil-sub008/internal/smsprovider"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
	"github.com/grantdelgado/unveil-sub008/pkg/database"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
	mw "github.com/grantdelgado/unveil-sub008/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := redisstore.NewClient(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var bus events.Publisher
	if natsBus, err := events.NewNATSEventBus(cfg.NATS.URL); err != nil {
		// Events are a side channel; the API still serves without them.
		logger.Warn("NATS unavailable, events disabled", "error", err)
	} else {
		bus = natsBus
		defer natsBus.Close()
	}

	var sender smsprovider.Sender
	if cfg.SMS.DevMode {
		sender = smsprovider.NewDevSender()
	} else {
		sender = smsprovider.NewTwilioSender(cfg.SMS)
	}
	var push smsprovider.PushSender = smsprovider.NewDevPushSender()

	var mail mailer.Service
	if cfg.Email.DevMode {
		mail = mailer.NewDevMailer()
	} else {
		mail = mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	// Repositories
	users := postgres.NewUserRepository(pool)
	eventsRepo := postgres.NewEventRepository(pool)
	guests := postgres.NewGuestRepository(pool)
	scheduled := postgres.NewScheduledMessageRepository(pool)
	messages := postgres.NewMessageRepository(pool)
	deliveries := postgres.NewDeliveryRepository(pool)
	accessCodes := postgres.NewAccessCodeRepository(pool)

	// Services
	otpLimiter := redisstore.NewLimiter(redisClient, cfg.Auth.OTPMaxPerPhone, cfg.Auth.OTPWindow)
	resolver := service.NewResolver(eventsRepo, guests)
	dispatcher := service.NewDispatcher(deliveries, guests, sender, push, cfg.Messaging)
	scheduler := service.NewScheduler(scheduled, messages, eventsRepo, users, resolver, dispatcher, bus, mail, cfg.Messaging)
	messenger := service.NewMessenger(messages, deliveries, eventsRepo, resolver, dispatcher, bus, cfg.Messaging)
	guestSvc := service.NewGuestService(guests, eventsRepo, bus)
	authSvc := service.NewAuthService(users, guests, accessCodes, otpLimiter, sender, bus, cfg.Auth, cfg.Messaging.Brand)

	// Handlers
	authHandler := handlers.NewAuthHandler(authSvc)
	eventHandler := handlers.NewEventHandler(eventsRepo)
	guestHandler := handlers.NewGuestHandler(guestSvc)
	messageHandler := handlers.NewMessageHandler(messenger, scheduler)
	webhookHandler := handlers.NewWebhookHandler(messenger, guestSvc)
	opsHandler := handlers.NewOpsHandler(scheduler)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("api"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/webhooks", webhookHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(httpmw.RequireCronSecret(cfg.Cron.Secret))
			r.Mount("/ops", opsHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.RequireJWT(cfg.Auth.JWTSecret))
			r.Use(mw.Idempotency(redisstore.NewIdempotencyStore(redisClient)))
			r.Mount("/events", eventHandler.Routes())
			r.Mount("/events/{eventID}/guests", guestHandler.Routes())
			r.Mount("/events/{eventID}/messages", messageHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down api service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting api service", "port", cfg.Server.Port, "sms_dev_mode", cfg.SMS.DevMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
