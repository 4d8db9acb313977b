// Package telemetry provides observability instrumentation for Pipewright.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring and debugging pipeline runs.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "pipewright"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The logger provides component-specific child loggers with fields carried by
// value rather than a mutable hierarchy. Each extension instance receives its
// own handle stamped with its namespace:
//
//	logger := tel.Logger.NewComponentLogger("orchestrator")
//	logger = logger.WithRunID(runID).WithExtension("stack.build")
//	logger.Info("Executing extension")
//
// # Tracing
//
// Runs and extension lifecycle phases are traced as spans:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, stack)
//	defer span.End()
//
// Exporters: stdout (development), otlp (production), none.
//
// # Metrics
//
// Prometheus counters and histograms cover run outcomes, extension execution,
// resource creation, reference resolution, and handled errors. The registry is
// private; Handler/StartMetricsServer expose it over HTTP.
package telemetry
