// Copyright 2026 The OpenTrusty Authors
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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: noop.NewMeterProvider().Meter(serviceName),
		}, nil
	}

	// Global provider; exporters are configured through the OTEL_* environment
	meter := otel.Meter(serviceName)

	return &Meter{
		meter: meter,
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Instruments are the counters and histograms recorded by the gate and the relay
type Instruments struct {
	gateDecisions    metric.Int64Counter
	tokensIssued     metric.Int64Counter
	relayRequests    metric.Int64Counter
	upstreamDuration metric.Float64Histogram
}

// NewInstruments registers every instrument on m
func NewInstruments(m *Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)
	if in.gateDecisions, err = m.CreateCounter("gate_decisions_total", "Tenant gate outcomes"); err != nil {
		return nil, err
	}
	if in.tokensIssued, err = m.CreateCounter("embed_tokens_issued_total", "Embed tokens issued"); err != nil {
		return nil, err
	}
	if in.relayRequests, err = m.CreateCounter("relay_requests_total", "Relay requests by rule and outcome"); err != nil {
		return nil, err
	}
	if in.upstreamDuration, err = m.CreateHistogram("relay_upstream_duration_ms", "Upstream fetch latency", "ms"); err != nil {
		return nil, err
	}
	return &in, nil
}

// NoopInstruments returns instruments that record nothing, for tests and CLIs
func NoopInstruments() *Instruments {
	in, _ := NewInstruments(&Meter{meter: noop.NewMeterProvider().Meter("noop")})
	return in
}

// GateDecision counts one gate outcome
func (in *Instruments) GateDecision(ctx context.Context, outcome string) {
	if in == nil {
		return
	}
	in.gateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// TokenIssued counts one embed token issuance
func (in *Instruments) TokenIssued(ctx context.Context, adminContext bool) {
	if in == nil {
		return
	}
	in.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.Bool("admin_context", adminContext)))
}

// RelayRequest counts one relay request
func (in *Instruments) RelayRequest(ctx context.Context, rule, outcome string) {
	if in == nil {
		return
	}
	in.relayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", rule),
		attribute.String("outcome", outcome),
	))
}

// UpstreamDuration records one upstream fetch latency in milliseconds
func (in *Instruments) UpstreamDuration(ctx context.Context, rule string, ms float64) {
	if in == nil {
		return
	}
	in.upstreamDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("rule", rule)))
}

// CreateUpDownCounter creates a new up/down counter metric
func (m *Meter) CreateUpDownCounter(name, description string) (metric.Int64UpDownCounter, error) {
	counter, err := m.meter.Int64UpDownCounter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create up/down counter %s: %w", name, err)
	}
	return counter, nil
}
