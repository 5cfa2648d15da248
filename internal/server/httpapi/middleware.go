package httpapi

import (
	"context"
	"net/http"

	"github.com/vektorburo/backoffice/internal/server/auth"
	"github.com/vektorburo/backoffice/internal/server/models"
)

const (
	sessionCookieName = "bo_session"

	loginPath     = "/login"
	dashboardPath = "/dashboard"
)

func (s *Server) setSessionCookie(w http.ResponseWriter, capsule string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    capsule,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// claimFromRequest extracts and verifies the session capsule from the cookie.
// Any missing, expired, forged or malformed capsule yields nil.
func (s *Server) claimFromRequest(r *http.Request) *auth.Claim {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	claim, err := auth.Verify(cookie.Value, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil
	}
	return claim
}

type claimKey struct{}

func claimFromContext(ctx context.Context) *auth.Claim {
	value := ctx.Value(claimKey{})
	claim, _ := value.(*auth.Claim)
	return claim
}

// authMiddleware gates the JSON API: requests without a valid capsule get a
// generic 401, with no hint of which check failed.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := s.claimFromRequest(r)
		if claim == nil {
			writeError(w, http.StatusUnauthorized, "invalid_session")
			return
		}

		ctx := context.WithValue(r.Context(), claimKey{}, claim)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates admin-only API routes. Role is read only from the
// verified capsule, never from headers or form data.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := claimFromContext(r.Context())
		if claim == nil || claim.Role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePageSession gates dashboard page routes: unauthenticated navigation
// is redirected to the login page rather than erroring.
func (s *Server) requirePageSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := s.claimFromRequest(r)
		if claim == nil {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), claimKey{}, claim)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePageAdmin gates the admin sub-area: a non-admin is sent back to the
// regular dashboard, never shown an error page.
func (s *Server) requirePageAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := claimFromContext(r.Context())
		if claim == nil || claim.Role != models.RoleAdmin {
			http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirectIfAuthenticated keeps already-authenticated visitors off the login
// page.
func (s *Server) redirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.claimFromRequest(r) != nil {
			http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
