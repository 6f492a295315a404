// Package monitor implements the orchestrator's log/metric port on top of
// zap and OpenTelemetry. Everything here is fire and forget: instrument
// creation failures and unmatched spans are logged, never propagated.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/core"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/monitor"

// Monitor records structured events, spans and metrics.
type Monitor struct {
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter

	mu         sync.Mutex
	spans      map[uuid.UUID]openSpan
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

type openSpan struct {
	span  trace.Span
	start time.Time
	name  string
}

// New creates a monitor backed by the globally registered otel providers.
func New(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
		spans:      make(map[uuid.UUID]openSpan),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Event logs a structured event at info level.
func (m *Monitor) Event(name string, fields map[string]string) {
	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("event", name))
	for k, v := range fields {
		zf = append(zf, zap.String(k, v))
	}
	m.logger.Info("monitor event", zf...)
}

// StartSpan opens a trace span and returns a handle for EndSpan.
func (m *Monitor) StartSpan(name string) uuid.UUID {
	_, span := m.tracer.Start(context.Background(), name)
	id := uuid.New()
	m.mu.Lock()
	m.spans[id] = openSpan{span: span, start: time.Now(), name: name}
	m.mu.Unlock()
	return id
}

// EndSpan closes a span opened by StartSpan and records its duration. An
// unmatched id is a caller error; it is logged and otherwise ignored.
func (m *Monitor) EndSpan(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.spans[id]
	if ok {
		delete(m.spans, id)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("end_span without matching start_span", zap.String("span_id", id.String()))
		return
	}
	s.span.End()
	m.Record(s.name+".duration_seconds", core.MetricDuration, time.Since(s.start).Seconds())
}

// Record emits one metric sample. Instruments are created lazily per name
// and cached; a name must keep the same kind for the process lifetime.
func (m *Monitor) Record(name string, kind core.MetricKind, value float64) {
	ctx := context.Background()
	switch kind {
	case core.MetricCount:
		if c := m.counter(name); c != nil {
			c.Add(ctx, int64(value))
		}
	case core.MetricGauge:
		if g := m.gauge(name); g != nil {
			g.Record(ctx, value)
		}
	case core.MetricHistogram, core.MetricDuration:
		if h := m.histogram(name); h != nil {
			h.Record(ctx, value)
		}
	default:
		m.logger.Warn("unknown metric kind",
			zap.String("name", name), zap.String("kind", string(kind)))
	}
}

func (m *Monitor) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Int64Counter("voxd." + name)
	if err != nil {
		m.logger.Warn("failed to create counter", zap.String("name", name), zap.Error(err))
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *Monitor) gauge(name string) metric.Float64Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g, err := m.meter.Float64Gauge("voxd." + name)
	if err != nil {
		m.logger.Warn("failed to create gauge", zap.String("name", name), zap.Error(err))
		return nil
	}
	m.gauges[name] = g
	return g
}

func (m *Monitor) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram("voxd." + name)
	if err != nil {
		m.logger.Warn("failed to create histogram", zap.String("name", name), zap.Error(err))
		return nil
	}
	m.histograms[name] = h
	return h
}
