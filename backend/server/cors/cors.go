// Package cors restricts cross-origin callers to a configured list.
package cors

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const (
	defaultMaxAge = 86400
)

// Policy applies one allow-list to plain HTTP routes and to websocket upgrades.
type Policy struct {
	c *cors.Cors
}

func NewPolicy(origins []string, logger *zerolog.Logger) *Policy {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, strings.ToLower(o))
		}
	}
	opts := cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           defaultMaxAge,
	}
	if logger != nil {
		l := logger.With().Str("component", "cors").Logger()
		opts.Logger = &l
	}
	return &Policy{c: cors.New(opts)}
}

// CheckOrigin fits websocket.Upgrader.CheckOrigin.
// Requests without an origin do not come from browsers and are allowed.
func (p *Policy) CheckOrigin(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return true
	}
	return p.c.OriginAllowed(r)
}

// Handler sets CORS headers for allowed origins and answers preflight requests.
func (p *Policy) Handler(next http.Handler) http.Handler {
	return p.c.Handler(next)
}
