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
	"golang.org/x/sync/errgroup"

	"github.com/velora-app/accounts/internal/handlers"
	"github.com/velora-app/accounts/internal/notify"
	"github.com/velora-app/accounts/internal/platform/password"
	"github.com/velora-app/accounts/internal/platform/token"
	"github.com/velora-app/accounts/internal/repository"
	"github.com/velora-app/accounts/internal/service"
	"github.com/velora-app/accounts/pkg/config"
	"github.com/velora-app/accounts/pkg/database"
	"github.com/velora-app/accounts/pkg/events"
	"github.com/velora-app/accounts/pkg/logger"
	mw "github.com/velora-app/accounts/pkg/middleware"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	idempotencyRepo, err := repository.NewIdempotencyRepository(cfg.Redis.URL)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer idempotencyRepo.Close()

	sms, closeSMS, err := buildSMSSender(cfg)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer closeSMS()

	mailer := buildMailer(cfg)

	userRepo := repository.NewUserRepository(pool)
	otpRepo := repository.NewOTPRepository(pool)

	signer := token.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenTTL, cfg.Auth.EmailTokenTTL)
	hasher := password.NewHasher()

	authService := service.NewAuthService(userRepo, otpRepo, signer, hasher, sms, mailer, cfg)
	h := handlers.New(authService, userRepo, signer)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(mw.Idempotency(idempotencyRepo))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify-phone", h.VerifyPhone)
		r.Post("/verify-phone/resend", h.ResendPhoneOTP)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/login", h.Login)
		r.Post("/forgot-password/request", h.ForgotPasswordRequest)
		r.Post("/forgot-password/reset", h.ForgotPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/profile", h.GetProfile)

			r.Group(func(r chi.Router) {
				r.Use(h.RequirePhoneVerified)
				r.Post("/change-password", h.ChangePassword)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting accounts service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
		case <-gctx.Done():
			return nil
		}

		logger.Info("Shutting down accounts service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Accounts service error", "error", err)
		os.Exit(1)
	}
}

func buildSMSSender(cfg *config.Config) (notify.SMSSender, func(), error) {
	if cfg.SMS.DevMode {
		return notify.NewDevSMS(), func() {}, nil
	}

	bus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		return nil, nil, err
	}

	return notify.NewNATSSMS(bus), func() { bus.Close() }, nil
}

func buildMailer(cfg *config.Config) notify.EmailSender {
	if cfg.Email.DevMode {
		return notify.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return notify.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	}
	return notify.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
}
