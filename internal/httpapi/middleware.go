package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "user_id"
	ctxKeySessionID ctxKey = "session_id"
	ctxKeyRequestID ctxKey = "request_id"
)

// sessionCookie carries the guest cart session. Minted on first touch so a
// guest's server-tracked cart survives page reloads.
const sessionCookie = "cart_session"

// TokenVerifier validates a bearer token and returns the user id it belongs to.
type TokenVerifier func(token string) (string, error)

// AuthMiddleware resolves the caller's identity. A valid bearer token yields an
// authenticated user id; an invalid one is rejected. Requests without a token
// proceed as guests.
func AuthMiddleware(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			userID, err := verify(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware guarantees every request carries a guest session id,
// minting the cookie when absent.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			sessionID = c.Value
		} else {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sessionID,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int((30 * 24 * time.Hour).Seconds()),
			})
		}

		ctx := context.WithValue(r.Context(), ctxKeySessionID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return userID
	}
	return ""
}

func sessionIDFromContext(ctx context.Context) string {
	if sessionID, ok := ctx.Value(ctxKeySessionID).(string); ok {
		return sessionID
	}
	return ""
}

// guestOwnerID names the server-side cart owned by an anonymous session.
func guestOwnerID(sessionID string) string {
	return "guest:" + sessionID
}

// ownerFromRequest resolves the cart owner: the user id when authenticated,
// the guest session owner otherwise.
func ownerFromRequest(r *http.Request) string {
	if userID := userIDFromContext(r.Context()); userID != "" {
		return userID
	}
	return guestOwnerID(sessionIDFromContext(r.Context()))
}
