package utils

import (
	"context"
	"time"
)

// Counter constants
const (
	// DefaultCounterName is used whenever a caller does not name a counter
	DefaultCounterName = "default"

	// MaxCounterNameLength matches the size of the counters.name column
	MaxCounterNameLength = 100

	// DefaultPageSize is the page size used by list endpoints when none is given
	DefaultPageSize = 20

	// MaxPageSize caps list endpoints
	MaxPageSize = 100
)

// Request handling constants
const (
	// RequestTimeout is the deadline attached to every request context (30 seconds)
	RequestTimeout = 30 * time.Second

	// CounterCacheKeyPrefix namespaces cached counter values inside the redis prefix
	CounterCacheKeyPrefix = "counter:"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

type contextKey string

// Context keys carried by request contexts built in the handlers
const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
)

// RequestIDFromContext returns the request id stored in ctx, or an empty string
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
