package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// `chi` is a lightweight, idiomatic and composable router for building HTTP services in Go.
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	// `chi/cors` provides CORS (Cross-Origin Resource Sharing) middleware.
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/auth"
	"github.com/user/memories-go/clock"
	"github.com/user/memories-go/config"
	"github.com/user/memories-go/db"
	_ "github.com/user/memories-go/docs" // Registers the Swagger spec
	"github.com/user/memories-go/events"
	"github.com/user/memories-go/logging"
	"github.com/user/memories-go/posts"
	"github.com/user/memories-go/ratelimit"
	"github.com/user/memories-go/uploads"
	"github.com/user/memories-go/users"
)

// app holds everything the router needs. It is assembled once at startup.
type app struct {
	cfg         *config.AppConfig
	users       users.Store
	posts       posts.Store
	codec       *auth.TokenCodec
	presigner   uploads.Presigner
	redis       *redis.Client
	events      *events.Broadcaster
	closeStores func()
}

// newApp builds stores and collaborators for cfg.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	c := clock.NewRealClock()
	a := &app{cfg: cfg, closeStores: func() {}}

	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		logrus.Warn("using in-memory store; data is lost on restart")
		a.users = users.NewMemoryStore(c)
		a.posts = posts.NewMemoryStore(c)
	default:
		pool, err := db.NewPool(cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		a.users = users.NewPostgresStore(pool, c)
		a.posts = posts.NewPostgresStore(pool, c)
		a.closeStores = pool.Close
	}

	codec, err := auth.NewTokenCodec(cfg.Auth, c)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.codec = codec

	// A nil presigner makes the upload route answer with a configuration error.
	if cfg.Upload.Configured() {
		p, err := uploads.NewS3Presigner(ctx, cfg.Upload)
		if err != nil {
			logrus.WithError(err).Error("failed to initialize S3 presigner; uploads disabled")
		} else {
			a.presigner = p
		}
	} else {
		logrus.Warn("S3_BUCKET_NAME or AWS_REGION_NAME not set; uploads disabled")
	}

	a.redis = ratelimit.NewClient(cfg.RateLimit)
	a.events = events.NewBroadcaster(cfg.Events.Buffer)
	return a, nil
}

func (a *app) close() {
	a.events.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logrus.WithError(err).Warn("error closing redis client")
		}
	}
	a.closeStores()
}

// router wires middleware and routes.
func (a *app) router() (http.Handler, error) {
	policy, err := posts.NewPolicy(a.cfg.Posts.MutationPolicy)
	if err != nil {
		return nil, err
	}
	gate := auth.NewGate(a.codec, a.cfg.Auth.AllowExternalTokens)
	authHandlers := auth.NewHandlers(auth.NewAuthService(a.users, a.codec))
	postService := posts.NewPostService(a.posts, policy).WithPublisher(a.events)
	postHandler := posts.NewPostHandler(postService)
	uploadHandler := uploads.NewHandler(a.presigner)

	r := chi.NewRouter()

	// IMPORTANT: Chi requires all middleware to be registered before any routes
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusOK, map[string]string{"message": "welcome to the Memories API"})
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/posts", func(r chi.Router) {
		// The event stream is long-lived and stays outside the request timeout.
		r.Get("/events", a.events.Handler(a.cfg.Events.Heartbeat))
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			postHandler.RegisterRoutes(r, gate.Middleware)
			r.With(gate.Middleware).Get("/signed-url/upload", uploadHandler.HandleUploadURL())
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(ratelimit.Middleware(a.redis, a.cfg.RateLimit.MaxRequests, a.cfg.RateLimit.Window))
		r.Post("/signup", authHandlers.HandleSignup())
		r.Post("/signin", authHandlers.HandleSignin())
		r.With(gate.Middleware).Get("/me", authHandlers.HandleMe())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteError(w, r, apperror.NewNotFoundError("Route not found", nil))
	})
	return r, nil
}

// recoverer converts panics into a 500 with the standard error body.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logrus.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"panic":      rvr,
				}).Error("panic while handling request")
				auth.WriteError(w, r, apperror.NewInternalError("internal server error", fmt.Errorf("panic: %v", rvr)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// serve runs the HTTP server until the process receives SIGINT or SIGTERM.
func serve(ctx context.Context, cfg *config.AppConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	handler, err := a.router()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(a.events.Close)

	serverErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    addr,
			"backend": cfg.Store.Backend,
			"policy":  cfg.Posts.MutationPolicy,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logrus.Info("server stopped gracefully")
	return nil
}
