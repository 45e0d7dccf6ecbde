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

// Package accesslog records dashboard views. Writes are append-only and
// best-effort: they run off the response path under their own deadline, and a
// failing or slow sink never affects the response being served.
package accesslog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opentrusty/embedgate/internal/observability/logger"
)

// maxIPLength matches the width of the access_ip column (IPv6 textual max)
const maxIPLength = 45

const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultMaxPending   = 256
)

// Entry is one dashboard access
type Entry struct {
	DashboardID int64
	TenantID    *string
	UserID      *string
	IP          string
	AdminAccess bool
	AccessedAt  time.Time
}

// Sink persists entries. Implementations must tolerate concurrent calls.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Config bounds background writes
type Config struct {
	// WriteTimeout bounds a single Append
	WriteTimeout time.Duration
	// MaxPending caps in-flight writes; entries beyond it are dropped
	MaxPending int
}

// Recorder writes entries to a sink in the background, absorbing failures
type Recorder struct {
	sink    Sink
	now     func() time.Time
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates a new recorder. Zero config values take the defaults.
func NewRecorder(sink Sink, cfg Config) *Recorder {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &Recorder{
		sink:    sink,
		now:     time.Now,
		timeout: cfg.WriteTimeout,
		slots:   make(chan struct{}, cfg.MaxPending),
	}
}

// Record queues entry for the sink and returns immediately. Errors are
// logged and swallowed.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if entry.AccessedAt.IsZero() {
		entry.AccessedAt = r.now()
	}
	if len(entry.IP) > maxIPLength {
		entry.IP = entry.IP[:maxIPLength]
	}

	select {
	case r.slots <- struct{}{}:
	default:
		slog.WarnContext(ctx, "access log backlog full, entry dropped",
			logger.Component("accesslog"),
			logger.DashboardID(entry.DashboardID),
		)
		return
	}

	// Detached from request cancellation so a client disconnect does not drop the row.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		defer cancel()

		if err := r.sink.Append(writeCtx, entry); err != nil {
			slog.WarnContext(writeCtx, "failed to record dashboard access",
				logger.Component("accesslog"),
				logger.DashboardID(entry.DashboardID),
				logger.Error(err),
			)
		}
	}()
}

// Wait blocks until every queued write has finished or timed out.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
