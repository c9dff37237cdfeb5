package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Authenticator validates bearer tokens and loads the principal into context.
func (s *Service) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		claims, err := s.Authenticate(r.Context(), raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid subject")
			return
		}
		principal := &shared.Principal{
			UserID:     userID,
			Email:      claims.Email,
			CompanyIDs: claims.CompanyIDs,
			SuperUser:  claims.SuperUser,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// CompanyContext resolves the X-Company-ID header and enforces tenant scope.
func CompanyContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("X-Company-ID"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		companyID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || companyID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid X-Company-ID header")
			return
		}
		principal := shared.PrincipalFromContext(r.Context())
		if !principal.CanAccessCompany(companyID) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "company outside principal scope")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithCompany(r.Context(), companyID)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
