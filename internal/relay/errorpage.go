package relay

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/opentrusty/embedgate/internal/embedtoken"
	"github.com/opentrusty/embedgate/internal/id"
	"github.com/opentrusty/embedgate/internal/observability/logger"
)

var errorPage = template.Must(template.New("relay-error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>The report could not be loaded. Please reload the page or contact support.</p>
<p>Incident: <code>{{.IncidentID}}</code></p>
</body>
</html>
`))

type errorPageData struct {
	Title      string
	IncidentID string
}

// fail logs err under a new incident id and writes the generic error page.
// Nothing from err reaches the client.
func (r *Relay) fail(ctx context.Context, w http.ResponseWriter, status int, rule string, err error) string {
	incident := id.NewUUIDv7()

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "relay request failed",
		logger.Component("relay"),
		logger.IncidentID(incident),
		logger.RelayRule(rule),
		logger.StatusCode(status),
		logger.ErrorType(failureKind(err)),
		logger.Error(err),
	)

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = errorPage.Execute(w, errorPageData{Title: http.StatusText(status), IncidentID: incident})
	return incident
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, embedtoken.ErrExpired):
		return "token_expired"
	case errors.Is(err, embedtoken.ErrMalformed):
		return "token_malformed"
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
