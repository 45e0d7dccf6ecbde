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

package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/observability/logger"
)

// Rule names, also used as metric labels
const (
	RuleReloadManifest  = "reload_manifest"
	RuleSubResource     = "sub_resource"
	RulePrimaryDocument = "primary_document"
)

const reloadManifestName = "hash-manifest.js"

const (
	contentTypeJavaScript = "application/javascript"
	contentTypePlain      = "text/plain"
)

// Rule is one entry of the ordered relay table. Handle must not write to w
// when it returns an error.
type Rule struct {
	Name   string
	Match  func(req *Request) bool
	Handle func(ctx context.Context, w http.ResponseWriter, req *Request, payload *embedtoken.Payload) (outcome string, err error)
}

// substitutable sub-resource extensions and the content type served when the
// upstream no longer has them
var subResourceTypes = map[string]string{
	".js":    contentTypeJavaScript,
	".css":   "text/css",
	".map":   "application/json",
	".png":   "image/png",
	".jpg":   "image/png",
	".jpeg":  "image/png",
	".gif":   "image/png",
	".svg":   "image/svg+xml",
	".woff":  "font/woff2",
	".woff2": "font/woff2",
}

// defaultRules returns the relay table. First match wins and the primary
// document rule matches everything.
func (r *Relay) defaultRules() []Rule {
	return []Rule{
		{Name: RuleReloadManifest, Match: isReloadManifest, Handle: r.serveReloadManifest},
		{Name: RuleSubResource, Match: isSubResource, Handle: r.serveSubResource},
		{Name: RulePrimaryDocument, Match: func(*Request) bool { return true }, Handle: r.servePrimaryDocument},
	}
}

// isReloadManifest matches the manifest script whose upstream copy makes the
// embedded report reload forever.
func isReloadManifest(req *Request) bool {
	return req != nil && path.Base(req.Path) == reloadManifestName
}

func isSubResource(req *Request) bool {
	if req.Path == "" {
		return false
	}
	_, ok := subResourceTypes[strings.ToLower(path.Ext(req.Path))]
	return ok
}

func subResourceType(p string) string {
	if ct, ok := subResourceTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return contentTypePlain
}

func (r *Relay) serveReloadManifest(ctx context.Context, w http.ResponseWriter, req *Request, _ *embedtoken.Payload) (string, error) {
	writeEmpty(w, contentTypeJavaScript)
	return "intercepted", nil
}

// serveSubResource fetches the asset from the embed origin. A missing asset is
// answered with an empty body of the right type so the report page keeps loading.
func (r *Relay) serveSubResource(ctx context.Context, w http.ResponseWriter, req *Request, payload *embedtoken.Payload) (string, error) {
	target, err := resourceURL(payload.EmbedURL, req.Path, req.RawQuery)
	if err != nil {
		return "", err
	}

	resp, err := r.fetch(ctx, RuleSubResource, req, target)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.DebugContext(ctx, "relay substituted missing sub-resource",
			logger.Component("relay"),
			logger.DashboardID(payload.DashboardID),
			logger.Path(req.Path),
		)
		writeEmpty(w, subResourceType(req.Path))
		return "substituted", nil
	}

	r.copyResponse(ctx, w, resp)
	return "forwarded", nil
}

func (r *Relay) servePrimaryDocument(ctx context.Context, w http.ResponseWriter, req *Request, payload *embedtoken.Payload) (string, error) {
	target, err := url.Parse(payload.EmbedURL)
	if err != nil || target.Host == "" {
		return "", fmt.Errorf("%w: invalid embed url", ErrUpstream)
	}

	resp, err := r.fetch(ctx, RulePrimaryDocument, req, target)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	r.copyResponse(ctx, w, resp)
	r.recordAccess(ctx, req, payload)
	return "forwarded", nil
}

// resourceURL resolves p against the origin of embedURL. The host always
// comes from embedURL.
func resourceURL(embedURL, p, rawQuery string) (*url.URL, error) {
	base, err := url.Parse(embedURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid embed url", ErrUpstream)
	}
	return &url.URL{
		Scheme:   base.Scheme,
		Host:     base.Host,
		Path:     path.Clean("/" + strings.TrimLeft(p, "/")),
		RawQuery: rawQuery,
	}, nil
}

// copyResponse streams resp to w without hop-by-hop headers. Copy failures
// after the status line is written can only be logged.
func (r *Relay) copyResponse(ctx context.Context, w http.ResponseWriter, resp *http.Response) {
	copyResponseHeaders(w.Header(), resp.Header)
	setRelayHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.WarnContext(ctx, "relay response copy interrupted",
			logger.Component("relay"),
			logger.UpstreamStatus(resp.StatusCode),
			logger.Error(err),
		)
	}
}

func writeEmpty(w http.ResponseWriter, contentType string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", "0")
	setRelayHeaders(h)
	w.WriteHeader(http.StatusOK)
}
