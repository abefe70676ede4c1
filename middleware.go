package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ctxKey int

const sessionCtxKey ctxKey = iota

// sessionFrom returns the authenticated session claims attached by
// RequireAuth.
func sessionFrom(r *http.Request) (*SessionClaims, bool) {
	sc, ok := r.Context().Value(sessionCtxKey).(*SessionClaims)
	return sc, ok
}

// extractToken pulls the access token from the Authorization header or,
// for clients that cannot set headers (streamed downloads), from the
// token query parameter. The header wins when both are present.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// RequireAuth gates a route on a valid access token and attaches the
// claims to the request context. Rejections are deliberately coarse:
// callers learn "missing" or "invalid", never which check failed.
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}
		sc := decodeSession(token, a.secret)
		if sc == nil || sc.Kind != TokenAccess {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey, sc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a route on a live admin role. The role claim in
// the token is never trusted here: a demoted admin keeps a valid
// access token for up to 15 minutes, and this re-read is what strips
// their privileges in the meantime. The group owner passes regardless
// of what the membership row says.
func (a *App) RequireAdmin(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := sessionFrom(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}
		group, err := a.DB.GetGroup(sc.GroupID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if group != nil && group.OwnerID == sc.UserID() {
			next.ServeHTTP(w, r)
			return
		}
		mem, err := a.DB.GetMembership(sc.UserID(), sc.GroupID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if mem == nil || mem.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireOwner gates a route on group ownership, which is independent
// of the role system: the owner passes even with a member role or no
// membership row at all. "Not the owner" and "group gone" produce the
// same response so non-owners cannot probe group existence.
func (a *App) RequireOwner(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := sessionFrom(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}
		group, err := a.DB.GetGroup(sc.GroupID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if group == nil || group.OwnerID != sc.UserID() {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the group owner can perform this action")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// requireSameGroup is the per-route tenant guard: handlers that take a
// {groupID} path parameter call it to refuse tokens scoped to another
// group. Returns false after writing the response when the check
// fails.
func requireSameGroup(w http.ResponseWriter, r *http.Request, groupID string) bool {
	sc, ok := sessionFrom(r)
	if !ok || sc.GroupID != groupID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Access to this group is not allowed")
		return false
	}
	return true
}

// emailLimiter throttles magic link issuance per destination address.
type emailLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.RWMutex
	perMinute int
}

func newEmailLimiter(perMinute int) *emailLimiter {
	return &emailLimiter{limiters: make(map[string]*rate.Limiter), perMinute: perMinute}
}

func (el *emailLimiter) allow(email string) bool {
	el.mu.RLock()
	limiter, exists := el.limiters[email]
	el.mu.RUnlock()

	if !exists {
		el.mu.Lock()
		limiter, exists = el.limiters[email]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(el.perMinute)/60, el.perMinute)
			el.limiters[email] = limiter
		}
		el.mu.Unlock()
	}

	return limiter.Allow()
}

// Logging logs each request with its status and duration.
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders adds standard hardening headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
