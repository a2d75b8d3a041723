package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"phishguard/internal/config"
)

// RateLimits holds rate limiting settings
type RateLimits struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Reading report beacons (per IP): one per flush trigger, so bursts on unload
	BeaconMax        int
	BeaconExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// NewRateLimits builds limits from config. Development mode relaxes them.
func NewRateLimits(cfg *config.Config) *RateLimits {
	limits := &RateLimits{
		GlobalAPIMax:        positiveOr(cfg.RateLimit.GlobalAPIPerMinute, 200),
		GlobalAPIExpiration: 1 * time.Minute,
		BeaconMax:           positiveOr(cfg.RateLimit.BeaconPerMinute, 120),
		BeaconExpiration:    1 * time.Minute,
		WebSocketMax:        positiveOr(cfg.RateLimit.WebSocketPerMinute, 60),
		WebSocketExpiration: 1 * time.Minute,
	}

	if cfg.Environment == "development" {
		limits.GlobalAPIMax = 1000
		limits.BeaconMax = 1000
		limits.WebSocketMax = 200
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return limits
}

func positiveOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func newIPLimiter(prefix, message string, max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP: %s on %s", prefix, c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       message,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(limits *RateLimits) fiber.Handler {
	return newIPLimiter("global", "Too many requests. Please slow down.", limits.GlobalAPIMax, limits.GlobalAPIExpiration)
}

// BeaconRateLimiter limits reading report submissions
func BeaconRateLimiter(limits *RateLimits) fiber.Handler {
	return newIPLimiter("beacon", "Too many reading reports.", limits.BeaconMax, limits.BeaconExpiration)
}

// WebSocketRateLimiter limits WebSocket connection attempts
func WebSocketRateLimiter(limits *RateLimits) fiber.Handler {
	return newIPLimiter("ws", "Too many connection attempts. Please wait before reconnecting.", limits.WebSocketMax, limits.WebSocketExpiration)
}
