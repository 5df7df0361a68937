package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds OTel configuration
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	// LogWriter receives OTel log records as JSON. Optional when Endpoint is set.
	LogWriter io.Writer
	// Endpoint is an OTLP/HTTP collector address.
	Endpoint string
	Insecure bool
	// ServerName is attached to the resource so records from several
	// game servers can share a collector.
	ServerName string
}

var errNoExporter = errors.New("otel enabled but no log writer or endpoint configured")

// Provider owns the OpenTelemetry log pipeline.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	config      Config
}

// New creates a Provider. A disabled config yields a Provider whose
// LoggerProvider is nil.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if cfg.ServerName != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(cfg.ServerName)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var processors []sdklog.Processor

	if cfg.LogWriter != nil {
		fileExporter, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(fileExporter,
			sdklog.WithExportTimeout(cfg.BatchTimeout),
		))
	}

	if cfg.Endpoint != "" {
		otlpOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlploghttp.WithInsecure())
		}
		otlpExporter, err := otlploghttp.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(otlpExporter,
			sdklog.WithExportTimeout(cfg.BatchTimeout),
		))
	}

	if len(processors) == 0 {
		return nil, errNoExporter
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	p.logProvider = sdklog.NewLoggerProvider(opts...)

	return p, nil
}

// LoggerProvider returns the log provider for the otelslog bridge, or nil
// when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter from the global MeterProvider, the same one the
// dispatcher and escalation engines register their instruments with.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Flush forces a flush of all pending logs, typically at round end.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the log pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}

func (p *Provider) Enabled() bool {
	return p.config.Enabled
}
