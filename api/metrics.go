package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	viewSpanName    = "view.request"
	viewEventName   = "taskdeck.view.request"
	viewEventDomain = "taskdeck"
	viewRoute       = "/api/tasks"
)

// viewRequestMetrics collects timings for one view read and emits a
// correlated log entry and trace span when the request finishes.
type viewRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	computeDuration time.Duration
	encodeDuration  time.Duration
	tasksReturned   int
	filtered        bool
	errorStage      string
}

func newViewRequestMetrics(ctx context.Context, logger *log.Logger) (*viewRequestMetrics, context.Context) {
	tracer := otel.Tracer("taskdeck/api")
	spanCtx, span := tracer.Start(ctx, viewSpanName)
	return &viewRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *viewRequestMetrics) ObserveCompute(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.computeDuration = duration
}

func (m *viewRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *viewRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *viewRequestMetrics) SetFiltered(filtered bool) {
	m.filtered = filtered
}

func (m *viewRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// severityForStatus maps a response status onto log severity text and
// its numeric level.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	}
	return "INFO", 9
}

// Log finalizes the request: it stamps the span, attaches the
// observability event and writes the structured log entry.
func (m *viewRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	totalMs := durationToMillis(time.Since(m.start))
	sevText, sevNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":                   viewRoute,
		"taskdeck.view.total_ms":       totalMs,
		"taskdeck.view.tasks_returned": m.tasksReturned,
		"taskdeck.view.filtered":       m.filtered,
	}
	if m.computeDuration > 0 {
		attrs["taskdeck.view.compute_ms"] = durationToMillis(m.computeDuration)
	}
	if m.encodeDuration > 0 {
		attrs["taskdeck.view.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["taskdeck.view.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	if m.span != nil {
		spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
		spanAttrs = append(spanAttrs,
			attribute.String("http.route", viewRoute),
			attribute.Int64("http.status_code", int64(status)),
			attribute.Float64("taskdeck.view.total_ms", totalMs),
			attribute.Int("taskdeck.view.tasks_returned", m.tasksReturned),
			attribute.Bool("taskdeck.view.filtered", m.filtered),
		)
		if m.errorStage != "" {
			spanAttrs = append(spanAttrs, attribute.String("taskdeck.view.error_stage", m.errorStage))
		}
		m.span.SetAttributes(spanAttrs...)

		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", viewEventName),
			attribute.String("event.domain", viewEventDomain),
			attribute.String("severity_text", sevText),
			attribute.Int("severity_number", sevNumber),
			attribute.Float64("taskdeck.view.total_ms", totalMs),
		}, spanAttrs...)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := "view request failed"
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      viewEventName,
		"event.domain":    viewEventDomain,
		"attributes":      attrs,
		"severity_text":   sevText,
		"severity_number": sevNumber,
	}
	if m.span != nil && m.span.SpanContext().HasTraceID() {
		fields["trace_id"] = m.span.SpanContext().TraceID().String()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
