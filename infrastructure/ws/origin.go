package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// Origins is the set of browser origins allowed to open a WebSocket.
type Origins struct {
	log      *slog.Logger
	allowed  map[string]struct{}
	allowAll bool
}

// NewOrigins normalizes the configured origins. "*" allows any origin,
// invalid entries are logged and skipped.
func NewOrigins(log *slog.Logger, origins []string) *Origins {
	o := &Origins{log: log, allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			o.allowAll = true
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn("Ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			o.allowed[normalized] = struct{}{}
		}
	}
	return o
}

// List returns the normalized origins, for the CORS layer.
func (o *Origins) List() []string {
	if o.allowAll {
		return []string{"*"}
	}
	return lo.Keys(o.allowed)
}

// Check is a websocket.Upgrader CheckOrigin function.
// Requests without an Origin header do not come from a browser and are accepted.
func (o *Origins) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || o.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := o.allowed[normalized]; exists {
			return true
		}
	}
	o.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
