// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	// 创建 OTLP exporter
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	// 创建 resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	// 创建 tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartCycleSpan 开始自动化循环 span
func StartCycleSpan(ctx context.Context, cycleID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("hiring-platform")
	ctx, span := tracer.Start(ctx, "automation.cycle",
		trace.WithAttributes(
			attribute.String("cycle.id", cycleID),
		),
	)
	return ctx, span
}

// StartActionSpan 开始单个自动化动作 span（shortlist/promote/expire 等）
func StartActionSpan(ctx context.Context, action string, jobID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("hiring-platform")
	ctx, span := tracer.Start(ctx, "automation.action",
		trace.WithAttributes(
			attribute.String("action.name", action),
			attribute.String("job.id", jobID),
		),
	)
	return ctx, span
}

// StartOutboundSpan 开始外部服务调用 span（email/calendar/risk/scoring）
func StartOutboundSpan(ctx context.Context, target string) (context.Context, trace.Span) {
	tracer := otel.Tracer("hiring-platform")
	ctx, span := tracer.Start(ctx, "outbound.call",
		trace.WithAttributes(
			attribute.String("outbound.target", target),
		),
	)
	return ctx, span
}
