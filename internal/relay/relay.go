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

// Package relay forwards embedded report traffic to the upstream report host.
//
// A relay request carries an embed token. The token is validated and the
// caller's access is re-resolved on every request, then the first matching
// rule in an ordered table produces the response. The relay only issues GET
// requests to the origin of the embed URL bound into the token.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/embedgate/internal/accesslog"
	"github.com/opentrusty/embedgate/internal/audit"
	"github.com/opentrusty/embedgate/internal/authz"
	"github.com/opentrusty/embedgate/internal/dashboard"
	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/identity"
	"github.com/opentrusty/embedgate/internal/observability/logger"
	"github.com/opentrusty/embedgate/internal/observability/metrics"
	"github.com/opentrusty/embedgate/internal/tenant"
)

// DefaultTimeout bounds a single upstream fetch
const DefaultTimeout = 30 * time.Second

var (
	// ErrDenied is returned when the caller may not use the token
	ErrDenied = errors.New("relay access denied")

	// ErrUpstream is returned when the upstream could not be reached
	ErrUpstream = errors.New("upstream unavailable")
)

// Tokens validates embed tokens
type Tokens interface {
	Validate(token string) (*embedtoken.Payload, error)
}

// Dashboards looks up the dashboard a token refers to
type Dashboards interface {
	Get(ctx context.Context, dashboardID int64) (*dashboard.Dashboard, error)
}

// Request is a relay request after routing and session resolution.
type Request struct {
	Token string
	// Path is the sub-path after the token segment, "" for the report page itself.
	Path      string
	RawQuery  string
	Header    http.Header
	Principal *identity.Principal
	// Tenant is the route tenant. Nil in admin context.
	Tenant   *tenant.Tenant
	Admin    bool
	ClientIP string
}

// Config holds relay configuration
type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Relay serves embed traffic
type Relay struct {
	tokens     Tokens
	dashboards Dashboards
	recorder   *accesslog.Recorder
	audit      audit.Logger
	metrics    *metrics.Instruments
	client     *http.Client
	rules      []Rule
	now        func() time.Time
}

// New creates a relay. recorder, auditLogger and instruments may be nil.
func New(cfg Config, tokens Tokens, dashboards Dashboards, recorder *accesslog.Recorder, auditLogger audit.Logger, instruments *metrics.Instruments) *Relay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	r := &Relay{
		tokens:     tokens,
		dashboards: dashboards,
		recorder:   recorder,
		audit:      auditLogger,
		metrics:    instruments,
		client: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(base,
				otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
					return "relay " + req.Method
				}),
			),
		},
		now: time.Now,
	}
	r.rules = r.defaultRules()
	return r
}

// Serve handles one relay request. It always writes a response.
func (r *Relay) Serve(ctx context.Context, rw http.ResponseWriter, req *Request) {
	w := &headerTracker{ResponseWriter: rw}
	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("panic: %v", v)
			if w.wroteHeader {
				// The status line is gone; all that is left is to cut the body short.
				slog.ErrorContext(ctx, "relay panicked after response started",
					logger.Component("relay"),
					logger.Error(err),
				)
				r.metrics.RelayRequest(ctx, "panic", "aborted")
				return
			}
			r.recoverOrFail(ctx, w, req, http.StatusInternalServerError, "panic", err)
		}
	}()

	payload, err := r.authorize(ctx, req)
	if err != nil {
		r.reject(ctx, req, payload, err)
		r.metrics.RelayRequest(ctx, "none", "denied")
		r.fail(ctx, w, http.StatusForbidden, "none", err)
		return
	}

	for _, rule := range r.rules {
		if !rule.Match(req) {
			continue
		}
		outcome, err := rule.Handle(ctx, w, req, payload)
		if err != nil {
			r.recoverOrFail(ctx, w, req, http.StatusBadGateway, rule.Name, err)
			return
		}
		r.metrics.RelayRequest(ctx, rule.Name, outcome)
		return
	}
}

// authorize validates the token and re-checks the caller's current access.
// The payload is returned alongside ErrDenied so rejections can be audited.
func (r *Relay) authorize(ctx context.Context, req *Request) (*embedtoken.Payload, error) {
	payload, err := r.tokens.Validate(req.Token)
	if err != nil {
		return nil, err
	}
	if req.Principal == nil {
		return payload, ErrDenied
	}

	d, err := r.dashboards.Get(ctx, payload.DashboardID)
	if err != nil {
		return payload, fmt.Errorf("%w: %v", ErrDenied, err)
	}

	if req.Admin {
		if !payload.IsAdmin || !authz.CanPreviewAsAdmin(req.Principal) {
			return payload, ErrDenied
		}
		return payload, nil
	}

	if req.Tenant == nil || !d.LinkedTo(req.Tenant.ID) || !d.Active {
		return payload, ErrDenied
	}
	if !authz.CanAccess(req.Principal, req.Tenant) {
		return payload, ErrDenied
	}
	return payload, nil
}

func (r *Relay) reject(ctx context.Context, req *Request, payload *embedtoken.Payload, err error) {
	if r.audit == nil {
		return
	}
	event := audit.Event{
		Type:      audit.TypeEmbedTokenRejected,
		IPAddress: req.ClientIP,
		Metadata:  map[string]any{audit.AttrReason: err.Error(), audit.AttrAdminContext: req.Admin},
	}
	if errors.Is(err, ErrDenied) {
		event.Type = audit.TypeRelayAccessDenied
	}
	if req.Principal != nil {
		event.ActorID = req.Principal.ID
	}
	if req.Tenant != nil {
		event.TenantID = req.Tenant.ID
	}
	if payload != nil {
		event.Metadata[audit.AttrDashboardID] = payload.DashboardID
	}
	r.audit.Log(ctx, event)
}

// recoverOrFail answers the reload manifest with an empty script even when the
// upstream or the handler failed, and renders the error page otherwise.
func (r *Relay) recoverOrFail(ctx context.Context, w http.ResponseWriter, req *Request, status int, rule string, err error) {
	if isReloadManifest(req) {
		slog.WarnContext(ctx, "relay recovered reload manifest",
			logger.Component("relay"),
			logger.Error(err),
		)
		writeEmpty(w, contentTypeJavaScript)
		r.metrics.RelayRequest(ctx, RuleReloadManifest, "recovered")
		return
	}
	r.metrics.RelayRequest(ctx, rule, "error")
	r.fail(ctx, w, status, rule, err)
}

// fetch performs one upstream GET. The returned error never contains the URL.
func (r *Relay) fetch(ctx context.Context, rule string, req *Request, target *url.URL) (*http.Response, error) {
	out, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request", ErrUpstream)
	}
	copyRequestHeaders(out.Header, req.Header)

	start := r.now()
	resp, err := r.client.Do(out)
	r.metrics.UpstreamDuration(ctx, rule, float64(r.now().Sub(start))/float64(time.Millisecond))
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

func (r *Relay) recordAccess(ctx context.Context, req *Request, payload *embedtoken.Payload) {
	entry := accesslog.Entry{
		DashboardID: payload.DashboardID,
		IP:          req.ClientIP,
		AdminAccess: req.Admin,
	}
	if req.Principal != nil {
		entry.UserID = accesslog.StringPtr(req.Principal.ID)
	}
	switch {
	case req.Tenant != nil:
		entry.TenantID = accesslog.StringPtr(req.Tenant.ID)
	case req.Admin && req.Principal != nil:
		// Admin previews are attributed to the previewer's own tenant, if any.
		entry.TenantID = accesslog.StringPtr(req.Principal.PrimaryTenant())
	}
	r.recorder.Record(ctx, entry)
}

// headerTracker remembers whether the response has been started.
type headerTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *headerTracker) WriteHeader(status int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
