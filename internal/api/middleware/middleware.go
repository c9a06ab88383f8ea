// Package middleware provides the HTTP middleware chain: request ids,
// logging, panic recovery, CORS, security headers, authentication, rate
// limiting, and metrics.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	"github.com/ledger-service/ledger_service/pkg/auth"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
	"github.com/ledger-service/ledger_service/pkg/ratelimit"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

const (
	userIDKey    = "user_id"
	requestIDKey = "request_id"
)

// RequestID assigns every request an id, honoring a caller-supplied
// X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Logger logs each request after completion.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", c.GetString(requestIDKey),
			"client_ip", c.ClientIP(),
		)
	}
}

// Metrics records the Prometheus instruments for each request.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Tracing opens a server span per request, continuing any trace context
// the caller propagated.
func Tracing() gin.HandlerFunc {
	tracer := tracing.GetTracer("ledger-service/http")
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			oteltrace.WithSpanKind(oteltrace.SpanKindServer),
			oteltrace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

// Recovery converts panics into 500 responses.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(requestIDKey),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, entities.ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORS applies the allowed-origins policy.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets the standard hardening headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// Auth validates the bearer token and stores the authenticated user id.
func Auth(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "missing bearer token",
			})
			return
		}

		userID, err := manager.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RateLimit enforces the tiered limiter keyed by authenticated user, or
// client IP before authentication.
func RateLimit(limiter ratelimit.Allower) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, exists := c.Get(userIDKey); exists {
			if id, ok := userID.(uuid.UUID); ok {
				key = id.String()
			}
		}

		decision := limiter.Allow(c.Request.Context(), key)
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, entities.ErrorResponse{
				Code:    "RATE_LIMIT_EXCEEDED",
				Message: "rate limit exceeded",
				Details: map[string]interface{}{
					"window": decision.Tier,
					"limit":  decision.Limit,
				},
			})
			return
		}
		c.Next()
	}
}
