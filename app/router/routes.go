// Package router provides HTTP routing, middleware configuration, and server setup for the engine API
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/zapcrm/followup-engine/app/dto"
	"github.com/zapcrm/followup-engine/app/handlers"
	"github.com/zapcrm/followup-engine/app/middleware"
	"github.com/zapcrm/followup-engine/utils"
	"gorm.io/gorm"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	followupHandler handlers.FollowupHandlerInterface
	db              *gorm.DB
	rc              *redis.Client
}

// NewFiberRouter creates a new Fiber router. db and rc back the health
// endpoint's component probes; either may be nil.
func NewFiberRouter(followupHandler handlers.FollowupHandlerInterface, db *gorm.DB, rc *redis.Client) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Followup Engine API",
		ServerHeader: "followup-engine",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second, // monitor passes may take a while
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		followupHandler: followupHandler,
		db:              db,
		rc:              rc,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)

	followups := api.Group("/followups")
	followups.Post("/monitor", r.followupHandler.MonitorPass)
	followups.Post("/fire", r.followupHandler.FireExecution)
	followups.Get("/history/:conversation_id", r.followupHandler.ConversationHistory)

	r.app.Use(r.notFoundHandler)
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint with per-component probes
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := "ok"
	components := fiber.Map{}

	if r.db != nil {
		dbStatus := "up"
		if sqlDB, err := r.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "down"
			status = "degraded"
		}
		components["database"] = dbStatus
	}
	if r.rc != nil {
		redisStatus := "up"
		if err := r.rc.Ping(ctx).Err(); err != nil {
			redisStatus = "down"
			status = "degraded"
		}
		components["redis"] = redisStatus
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.APIResponse{
		Success: status == "ok",
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":     status,
			"timestamp":  utils.UTCNow().Unix(),
			"service":    "followup-engine",
			"components": components,
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Error:   "the requested resource was not found",
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v (request_id=%v)", code, err, c.Locals("requestid"))

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Error:   "an internal server error occurred",
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
