package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry owns the OpenTelemetry SDK providers installed by [Setup] and the
// Prometheus registry backing /metrics.
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
}

type setupOptions struct {
	serviceVersion string
	exporter       sdktrace.SpanExporter
	registry       *prometheus.Registry
	sampleRatio    float64
	global         bool
}

// SetupOption configures [Setup].
type SetupOption func(*setupOptions)

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) SetupOption {
	return func(o *setupOptions) { o.serviceVersion = v }
}

// WithSpanExporter batches finished spans to exp. Without it spans are
// sampled and recorded but never leave the process.
func WithSpanExporter(exp sdktrace.SpanExporter) SetupOption {
	return func(o *setupOptions) { o.exporter = exp }
}

// WithRegistry collects metrics into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) SetupOption {
	return func(o *setupOptions) { o.registry = reg }
}

// WithSampleRatio samples root spans at ratio (0..1). Child spans follow
// their parent's decision.
func WithSampleRatio(ratio float64) SetupOption {
	return func(o *setupOptions) { o.sampleRatio = ratio }
}

// WithoutGlobal keeps the providers local to the returned [Telemetry].
func WithoutGlobal() SetupOption {
	return func(o *setupOptions) { o.global = false }
}

// Setup builds the meter and tracer providers for the thoughtmap service and,
// unless [WithoutGlobal] is given, registers them as the OTel globals so that
// [DefaultMetrics] and [StartSpan] report through them.
func Setup(ctx context.Context, opts ...SetupOption) (*Telemetry, error) {
	o := setupOptions{sampleRatio: 1, global: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	res, err := resource.Merge(
		resource.Default(),
		// The SDK default resource supplies the schema URL.
		resource.NewSchemaless(
			semconv.ServiceName("thoughtmap"),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New(promexporter.WithRegisterer(o.registry))
	if err != nil {
		return nil, err
	}
	t := &Telemetry{
		registry: o.registry,
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		),
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.sampleRatio))),
	}
	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.exporter))
	}
	t.tracer = sdktrace.NewTracerProvider(tpOpts...)

	if o.global {
		otel.SetMeterProvider(t.meters)
		otel.SetTracerProvider(t.tracer)
	}
	return t, nil
}

// MeterProvider returns the provider feeding the Prometheus registry.
func (t *Telemetry) MeterProvider() metric.MeterProvider { return t.meters }

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.tracer.Shutdown(ctx))
}
