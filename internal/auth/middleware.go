package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/shared"
)

// Verifier turns a bearer credential into an actor.
type Verifier interface {
	Verify(token string) (shared.Actor, error)
}

// Middleware resolves the bearer credential on every request.
type Middleware struct {
	Verifier Verifier
	Logger   *slog.Logger
}

// Authenticate rejects requests without a valid bearer credential and stores the actor in context.
// The websocket upgrade cannot set headers from browsers, so a token query parameter is accepted too.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		actor, err := m.Verifier.Verify(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("bearer rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
