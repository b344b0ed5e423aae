// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics instruments the Filesystem Coordinator's per-op counts,
// error counts, and latency distribution with go.opentelemetry.io/otel,
// scraped through a Prometheus endpoint, the way the teacher's own
// common.OpsMetricHandle instruments its FUSE op dispatch.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// FSOpKey annotates which Coordinator op a recorded measurement belongs to.
const FSOpKey = "fs_op"

var opsMeter = otel.Meter("fs_op")

// OpsMetricHandle records counts, errors, and latency for Coordinator ops.
type OpsMetricHandle interface {
	OpsCount(op string)
	OpsErrorCount(op string)
	OpsLatency(op string, latency time.Duration)
}

type otelMetrics struct {
	opsCount      metric.Int64Counter
	opsErrorCount metric.Int64Counter
	opsLatency    metric.Float64Histogram
}

// New creates the counters and histogram backing an OpsMetricHandle,
// registered against the process-global otel.Meter("fs_op"). Call Serve to
// point that meter at a real reader; without it, otel's default no-op
// provider silently discards everything recorded here.
func New() (OpsMetricHandle, error) {
	opsCount, err := opsMeter.Int64Counter("fs/ops_count",
		metric.WithDescription("The cumulative number of ops processed by the Filesystem Coordinator."))
	if err != nil {
		return nil, fmt.Errorf("creating fs/ops_count: %w", err)
	}

	opsErrorCount, err := opsMeter.Int64Counter("fs/ops_error_count",
		metric.WithDescription("The cumulative number of ops that returned an error."))
	if err != nil {
		return nil, fmt.Errorf("creating fs/ops_error_count: %w", err)
	}

	opsLatency, err := opsMeter.Float64Histogram("fs/ops_latency",
		metric.WithDescription("The distribution of Coordinator op latencies."),
		metric.WithUnit("us"))
	if err != nil {
		return nil, fmt.Errorf("creating fs/ops_latency: %w", err)
	}

	return &otelMetrics{
		opsCount:      opsCount,
		opsErrorCount: opsErrorCount,
		opsLatency:    opsLatency,
	}, nil
}

func (o *otelMetrics) OpsCount(op string) {
	o.opsCount.Add(context.Background(), 1, metric.WithAttributes(attribute.String(FSOpKey, op)))
}

func (o *otelMetrics) OpsErrorCount(op string) {
	o.opsErrorCount.Add(context.Background(), 1, metric.WithAttributes(attribute.String(FSOpKey, op)))
}

func (o *otelMetrics) OpsLatency(op string, latency time.Duration) {
	o.opsLatency.Record(context.Background(), float64(latency.Microseconds()), metric.WithAttributes(attribute.String(FSOpKey, op)))
}

// Serve installs a Prometheus-backed MeterProvider as the otel global and
// serves its scrape endpoint at addr on "/metrics". It blocks; callers run
// it in its own goroutine.
func Serve(addr string) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
