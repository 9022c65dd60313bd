// Package lookup answers species description lookups through a single-flight
// read-through cache in front of the species registry and the dialect
// translator.
package lookup

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/cache/lru"
	"github.com/pario-ai/dexcache/pkg/dialect"
	"github.com/pario-ai/dexcache/pkg/models"
)

const tracerName = "github.com/pario-ai/dexcache/pkg/lookup"

// SpeciesClient fetches species metadata by name.
type SpeciesClient interface {
	Fetch(ctx context.Context, name string) (models.SpeciesRecord, error)
}

// DialectClient rewrites text into a dialect.
type DialectClient interface {
	Rewrite(ctx context.Context, text string, d models.Dialect) (string, error)
}

// Observer is notified once per Lookup call.
type Observer interface {
	ObserveLookup(ctx context.Context, ev models.LookupEvent)
}

// Orchestrator serves cached lookups. It is safe for concurrent use.
type Orchestrator struct {
	species   SpeciesClient
	dialects  DialectClient
	cache     *lru.Cache[models.LookupResult]
	timeout   time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUpstreamTimeout bounds each upstream call. Zero means no bound beyond
// the caller's context.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver registers an observer for lookup events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithTracer overrides the tracer, which defaults to the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator. A nil cache is replaced by one with default capacity and no expiry.
func New(species SpeciesClient, dialects DialectClient, cache *lru.Cache[models.LookupResult], opts ...Option) *Orchestrator {
	if cache == nil {
		cache = lru.New[models.LookupResult](lru.DefaultCapacity, 0)
	}
	o := &Orchestrator{
		species:  species,
		dialects: dialects,
		cache:    cache,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Lookup returns the description of the named species, rendered in the
// dialect its attributes select. Concurrent misses for one name share a
// single upstream sequence. Dialect failures degrade to the original text;
// species failures are returned with their kind and never cached.
func (o *Orchestrator) Lookup(ctx context.Context, name string) (models.LookupResult, error) {
	start := time.Now()
	key := strings.TrimSpace(name)

	ctx, span := o.tracer.Start(ctx, "lookup", trace.WithAttributes(attribute.String("species.name", key)))
	defer span.End()

	if key == "" {
		err := models.Errorf(models.KindInvalidArgument, "lookup", "name must not be empty")
		o.finish(ctx, span, key, start, models.LookupResult{}, models.OutcomeError, err)
		return models.LookupResult{}, err
	}

	if res, ok := o.cache.Get(key); ok {
		o.finish(ctx, span, key, start, res, models.OutcomeHit, nil)
		return res, nil
	}

	res, computed, err := o.cache.LoadComputed(ctx, key, func(ctx context.Context) (models.LookupResult, error) {
		return o.resolve(ctx, key)
	})
	if err != nil {
		o.finish(ctx, span, key, start, models.LookupResult{}, models.OutcomeError, err)
		return models.LookupResult{}, err
	}
	// Callers that joined another caller's flight did no upstream work.
	outcome := models.OutcomeHit
	if computed {
		outcome = models.OutcomeMiss
	}
	o.finish(ctx, span, key, start, res, outcome, nil)
	return res, nil
}

// Forget drops the cached result for name, if any.
func (o *Orchestrator) Forget(name string) bool {
	return o.cache.Delete(strings.TrimSpace(name))
}

// CacheStats reports the lookup cache's counters.
func (o *Orchestrator) CacheStats() (models.CacheStats, error) {
	return o.cache.Stats(), nil
}

// resolve runs the upstream sequence for one cache miss.
func (o *Orchestrator) resolve(ctx context.Context, name string) (models.LookupResult, error) {
	rec, err := o.fetch(ctx, name)
	if err != nil {
		return models.LookupResult{}, err
	}

	d := dialect.Choose(rec)
	res := models.LookupResult{
		Name:        rec.Name,
		DisplayName: rec.DisplayName,
		Habitat:     rec.Habitat,
		Legendary:   rec.Legendary,
		Description: rec.Description,
		Dialect:     d,
	}
	if res.Name == "" {
		res.Name = name
	}
	if res.DisplayName == "" {
		res.DisplayName = res.Name
	}

	if d == models.DialectNone {
		return res, nil
	}
	if !rec.HasDescription() {
		o.logger.Debug("no description to rewrite", zap.String("species", name))
		return res, nil
	}

	text, err := o.rewrite(ctx, rec.Description, d)
	if err != nil {
		o.logger.Warn("dialect rewrite failed, serving original description",
			zap.String("species", name),
			zap.String("dialect", string(d)),
			zap.String("kind", string(models.KindOf(err))),
			zap.Error(err))
		res.Fallback = true
		return res, nil
	}
	res.OriginalDescription = rec.Description
	res.Description = text
	res.Translated = true
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context, name string) (models.SpeciesRecord, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "species.fetch")
	defer span.End()

	rec, err := o.species.Fetch(ctx, name)
	if err != nil {
		if models.KindOf(err) == "" {
			err = models.NewError(models.KindUnavailable, "species.fetch", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(models.KindOf(err)))
		return models.SpeciesRecord{}, err
	}
	span.SetAttributes(
		attribute.Bool("species.legendary", rec.Legendary),
		attribute.String("species.habitat", rec.Habitat),
	)
	return rec, nil
}

func (o *Orchestrator) rewrite(ctx context.Context, text string, d models.Dialect) (string, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "dialect.rewrite", trace.WithAttributes(attribute.String("dialect", string(d))))
	defer span.End()

	out, err := o.dialects.Rewrite(ctx, text, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rewrite failed")
		return "", err
	}
	return out, nil
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, name string, start time.Time, res models.LookupResult, outcome string, err error) {
	ev := models.LookupEvent{
		Name:      name,
		Outcome:   outcome,
		Duration:  time.Since(start),
		CreatedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("lookup.outcome", outcome))

	if err != nil {
		ev.ErrorKind = models.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ev.ErrorKind))
		o.logError(name, ev.ErrorKind, err)
	} else {
		ev.Dialect = res.Dialect
		ev.Translated = res.Translated
		ev.Fallback = outcome == models.OutcomeMiss && res.Fallback
	}

	for _, obs := range o.observers {
		obs.ObserveLookup(ctx, ev)
	}
}

func (o *Orchestrator) logError(name string, kind models.ErrorKind, err error) {
	fields := []zap.Field{zap.String("species", name), zap.String("kind", string(kind)), zap.Error(err)}
	switch kind {
	case models.KindParse:
		o.logger.Error("species payload rejected", fields...)
	case models.KindUnavailable:
		o.logger.Warn("species registry unavailable", fields...)
	default:
		o.logger.Debug("lookup failed", fields...)
	}
}
