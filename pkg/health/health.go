package health

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/flashsale/reservation-engine/pkg/logger"
)

// Check represents a health check function
type Check func(ctx context.Context) error

// Health contains handlers for health checks
type Health struct {
	logger      logger.Logger
	startTime   time.Time
	db          *gorm.DB
	redis       redis.Cmdable
	kafkaBroker string
	checks      map[string]Check
}

// NewHealth creates a new Health instance wired against the stores this
// service actually talks to: the Reservation Store (MySQL via gorm), the
// Coordination Cache (Redis), and the Partitioned Bus (Kafka).
func NewHealth(log logger.Logger, db *gorm.DB, rdb redis.Cmdable, kafkaBroker string) *Health {
	h := &Health{
		logger:      log,
		startTime:   time.Now(),
		db:          db,
		redis:       rdb,
		kafkaBroker: kafkaBroker,
		checks:      make(map[string]Check),
	}

	h.RegisterCheck("db", h.checkDatabase)
	h.RegisterCheck("cache", h.checkCache)
	h.RegisterCheck("bus", h.checkKafka)

	return h
}

// RegisterCheck registers a new health check
func (h *Health) RegisterCheck(name string, check Check) {
	h.checks[name] = check
}

// GetHandlers returns Fiber handlers for health check endpoints
func (h *Health) GetHandlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		"/health":       h.HealthHandler,
		"/health/ready": h.ReadinessHandler,
		"/health/live":  h.LivenessHandler,
		"/health/info":  h.InfoHandler,
	}
}

func (h *Health) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return fmt.Errorf("database check failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database check failed: %w", err)
	}
	return nil
}

func (h *Health) checkCache(ctx context.Context) error {
	if h.redis == nil {
		return errors.New("cache not initialized")
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache check failed: %w", err)
	}
	return nil
}

func (h *Health) checkKafka(ctx context.Context) error {
	if h.kafkaBroker == "" {
		return errors.New("kafka broker not configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", h.kafkaBroker)
	if err != nil {
		return fmt.Errorf("bus check failed: %w", err)
	}
	defer conn.Close()
	return nil
}

func (h *Health) runChecks(ctx context.Context) map[string]error {
	results := make(map[string]error, len(h.checks))
	for name, check := range h.checks {
		results[name] = check(ctx)
	}
	return results
}

// HealthHandler handles the /health endpoint
func (h *Health) HealthHandler(c *fiber.Ctx) error {
	results := h.runChecks(c.Context())

	allPassed := true
	statusDetails := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			allPassed = false
			statusDetails[name] = "down"
		} else {
			statusDetails[name] = "up"
		}
	}

	status := "up"
	if !allPassed {
		status = "degraded"
		c.Status(fiber.StatusServiceUnavailable)
	}

	return c.JSON(fiber.Map{
		"status":  status,
		"details": statusDetails,
	})
}

// ReadinessHandler handles the /health/ready endpoint
func (h *Health) ReadinessHandler(c *fiber.Ctx) error {
	results := h.runChecks(c.Context())

	for _, err := range results {
		if err != nil {
			c.Status(fiber.StatusServiceUnavailable)
			return c.JSON(fiber.Map{"status": "not ready"})
		}
	}

	return c.JSON(fiber.Map{"status": "ready"})
}

// LivenessHandler handles the /health/live endpoint
func (h *Health) LivenessHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// InfoHandler handles the /health/info endpoint
func (h *Health) InfoHandler(c *fiber.Ctx) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return c.JSON(fiber.Map{
		"service":    "reservation-engine",
		"start_time": h.startTime.Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).String(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": memStats.Alloc,
	})
}
