package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/config"
	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/db"
	"github.com/civictrack/apiserver/internal/events"
	"github.com/civictrack/apiserver/internal/handlers"
	appmw "github.com/civictrack/apiserver/internal/middleware"
	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/mq"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/internal/storage"
	"github.com/civictrack/apiserver/internal/store"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     logrus.FieldLogger

	db      *sql.DB
	objects *storage.Storage
	queue   *mq.MQ
	redis   *redis.Client
}

// Dependencies is everything the router needs. Server.New fills it from
// configuration; tests can supply their own.
type Dependencies struct {
	Users       services.UserRepository
	Complaints  services.ComplaintRepository
	Objects     *storage.Storage
	Publisher   events.Publisher
	Tokens      *auth.TokenService
	Revocations auth.RevocationStore
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
	DB          handlers.Pinger

	PublicBaseURL      string
	AdminSecretKey     string
	CORSAllowedOrigins []string
	TrustedProxies     []netip.Prefix
	RateLimit          config.RateLimitConfig
}

// New connects to every configured dependency and builds the server.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	trustedProxies, err := appmw.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.closeResources()
		}
	}()

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = dbConn

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.objects = objects

	var publisher events.Publisher = events.NopPublisher{}
	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	if queue != nil {
		s.queue = queue
		publisher = events.NewMQPublisher(queue, cfg.MQ.Channel)
	}

	var revocations auth.RevocationStore = auth.NopRevocationStore{}
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		revocations = auth.NewRedisRevocationStore(client)
	} else {
		logger.Warn("REDIS_ADDR not set; sign-out is client-side only")
	}

	logger.WithFields(logrus.Fields{
		"storage": cfg.Storage.Backend,
		"bucket":  objects.Bucket(),
		"mq":      cfg.MQ.Backend,
		"redis":   cfg.RedisEnabled(),
	}).Info("dependencies ready")

	s.router = NewRouter(Dependencies{
		Users:              store.NewUserRepository(dbConn),
		Complaints:         store.NewComplaintRepository(dbConn),
		Objects:            objects,
		Publisher:          publisher,
		Tokens:             auth.NewTokenService(cfg.Auth.JWTSecret),
		Revocations:        revocations,
		Metrics:            metrics.New(),
		Logger:             logger,
		DB:                 dbConn,
		PublicBaseURL:      cfg.PublicBaseURL,
		AdminSecretKey:     cfg.Auth.AdminSecretKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     trustedProxies,
		RateLimit:          cfg.RateLimit,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

// NewRouter assembles middleware and routes.
func NewRouter(d Dependencies) *chi.Mux {
	userService := services.NewUserService(d.Users)
	complaintService := services.NewComplaintService(d.Complaints, d.Objects, d.Publisher, d.Logger, d.PublicBaseURL)
	guard := handlers.NewGuard(d.Tokens, d.Revocations, userService, d.Metrics, d.Logger)
	limiter := appmw.NewRateLimiter(d.RateLimit.RequestsPerSecond, d.RateLimit.Burst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		appmw.RealIP(d.TrustedProxies),
		appmw.RequestLogger(d.Logger),
		middleware.Recoverer,
		d.Metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.TokenHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)

	router.Get("/healthz", handlers.Healthz(d.DB))
	router.Handle("/metrics", d.Metrics.Handler())
	router.Get("/uploads/{key}", handlers.Uploads(d.Objects, d.Logger))

	authHandler := handlers.NewAuthHandler(userService, d.Tokens, d.Revocations, d.Metrics, d.Logger, d.AdminSecretKey)
	handlers.AuthRouter(router, authHandler, guard, limiter.Handler)

	router.Route("/complaints", func(r chi.Router) {
		handlers.ComplaintRouter(r, handlers.NewComplaintHandler(complaintService, d.Metrics, d.Logger), guard)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, handlers.NewAdminHandler(userService, complaintService, d.Metrics, d.Logger), guard)
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires, then closes owned connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.WithError(err).Warn("closing message queue")
		}
	}
	if s.objects != nil {
		if err := s.objects.Close(); err != nil {
			s.logger.WithError(err).Warn("closing storage")
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
