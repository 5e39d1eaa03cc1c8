package schema

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	pkgschema "github.com/jittakal/kafeventavro/pkg/schema"
)

// MetricsCollector defines the interface for schema resolution metrics.
type MetricsCollector interface {
	IncSchemaResolutions(scheme string, status string)
	ObserveSchemaLoadDuration(scheme string, duration float64)
}

// Cache resolves a schema once and returns it for the rest of its lifetime.
//
// The first successful Resolve wins; locators passed to later calls are
// ignored. A failed resolution leaves the cache unresolved so the next call
// retries. Concurrent first callers are serialized: one loads, the others
// wait and observe its result.
type Cache struct {
	loader  Loader
	logger  *zap.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	current atomic.Pointer[resolved]
}

// resolved pairs the frozen schema with the locator it came from.
type resolved struct {
	schema  *pkgschema.Schema
	locator string
}

// NewCache creates an unresolved cache.
func NewCache(loader Loader, logger *zap.Logger, metrics MetricsCollector) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		loader:  loader,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve returns the cached schema, loading it from locator on first use.
func (c *Cache) Resolve(ctx context.Context, locator string) (*pkgschema.Schema, error) {
	if r := c.current.Load(); r != nil {
		return r.schema, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.current.Load(); r != nil {
		return r.schema, nil
	}

	scheme := Scheme(locator)
	start := time.Now()
	s, err := c.load(ctx, locator)
	if c.metrics != nil {
		c.metrics.ObserveSchemaLoadDuration(scheme, time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncSchemaResolutions(scheme, "error")
		}
		c.logger.Warn("schema resolution failed",
			zap.String("locator", locator),
			zap.Error(err),
		)
		return nil, err
	}

	c.current.Store(&resolved{schema: s, locator: locator})
	if c.metrics != nil {
		c.metrics.IncSchemaResolutions(scheme, "success")
	}
	c.logger.Info("schema resolved",
		zap.String("locator", locator),
		zap.String("schema", s.Name()),
		zap.String("fingerprint", s.FingerprintHex()),
		zap.Int("fields", len(s.Fields())),
	)
	return s, nil
}

func (c *Cache) load(ctx context.Context, locator string) (*pkgschema.Schema, error) {
	if strings.TrimSpace(locator) == "" {
		return nil, &apperrors.SchemaLoadError{Locator: locator, Err: errors.New("empty schema locator")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &apperrors.SchemaLoadError{Locator: locator, Err: err}
	}

	data, err := c.loader.Load(ctx, locator)
	if err != nil {
		return nil, &apperrors.SchemaLoadError{Locator: locator, Err: err}
	}

	s, err := pkgschema.Parse(data)
	if err != nil {
		return nil, &apperrors.SchemaLoadError{Locator: locator, Err: err}
	}
	return s, nil
}

// Resolved returns the frozen schema, if any.
func (c *Cache) Resolved() (*pkgschema.Schema, bool) {
	r := c.current.Load()
	if r == nil {
		return nil, false
	}
	return r.schema, true
}

// Locator returns the locator the frozen schema was loaded from. It does not
// wait for a resolution in progress.
func (c *Cache) Locator() string {
	if r := c.current.Load(); r != nil {
		return r.locator
	}
	return ""
}
