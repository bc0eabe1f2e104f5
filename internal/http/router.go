// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Routes keep the path-style layout existing chat clients call:
//
//	GET  /Authenticate/username/{u}/password/{p}
//	GET  /createaccount/username/{u}/password/{p}
//	GET  /checkuser/username/{u}
//	GET  /createchat?name={n}&user={u}...
//	POST /newmessage/chatname/{chat}/username/{user}
//	GET  /getchat/chatname/{chat}
//	GET  /chatmembers/chatname/{chat}
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-queue/internal/config"
	"github.com/tbourn/go-chat-queue/internal/docs"
	"github.com/tbourn/go-chat-queue/internal/http/handlers"
	"github.com/tbourn/go-chat-queue/internal/http/middleware"
	"github.com/tbourn/go-chat-queue/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. Services are built here from db and hasher; the delivery worker is
// started separately and shares only the database.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything, without credentials
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with password/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, hasher services.Credentials, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests (credential path segments redacted)
	r.Use(middleware.Tracing(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Dependency injection: services ← db
	accSvc := &services.AccountService{DB: db, Hasher: hasher}
	chatSvc := &services.ChatService{DB: db}
	msgSvc := &services.MessageService{
		DB:              db,
		MaxContentRunes: cfg.MaxContentRunes,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}
	queueSvc := &services.QueueService{DB: db}
	h := handlers.New(accSvc, chatSvc, msgSvc, queueSvc)

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		replayLookup(msgSvc),
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (allow all when no allowlist is configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", h.Health)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/", h.Root)
		api.GET("/queue/stats", h.QueueStats)

		// Accounts: credentials travel in the path, never cache the answer.
		auth := api.Group("", middleware.NoStore())
		auth.GET("/Authenticate/username/:username/password/:password", h.Authenticate)
		auth.GET("/createaccount/username/:username/password/:password", h.CreateAccount)
		auth.GET("/checkuser/username/:username", h.CheckUser)

		// Chats
		api.GET("/createchat", h.CreateChat)
		api.GET("/chatmembers/chatname/:chat", h.ChatMembers)
		api.GET("/getchat/chatname/:chat", gzip.Gzip(gzip.DefaultCompression), h.GetChat)

		// Messages
		api.POST("/newmessage/chatname/:chat/username/:user", h.NewMessage)
	}
}

// replayLookup reports whether a post carries a live Idempotency-Key, so the
// rate limiter can let the replay through.
func replayLookup(msgSvc *services.MessageService) middleware.IdempotencyLookup {
	return func(ctx context.Context, chat, user, key string) (bool, error) {
		if chat == "" || user == "" {
			return false, nil
		}
		_, err := msgSvc.Replay(ctx, chat, user, key)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, services.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{middleware.HeaderRequestID, "Content-Length", "ETag", handlers.HeaderMessageID, handlers.HeaderQueueEntryID, middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
