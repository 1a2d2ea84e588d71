// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for fabd.
//
// Init configures the global TracerProvider and MeterProvider from a Config.
// Packages then use otel.Tracer() and otel.Meter() directly; there is no
// custom abstraction over OTel.
//
// # Metrics Backend (default: Prometheus)
//
// Metrics are exposed through MetricsHandler, which fabd mounts at /metrics.
//
// # Trace Backend (default: none)
//
// Traces are off unless OTEL_TRACES_EXPORTER (or the config file) selects
// "otlp" or "stdout".
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - NETFAB_ENV: environment name (default: development)
package telemetry
