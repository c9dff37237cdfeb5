package shared

import "context"

// Principal describes the authenticated actor attached to a request.
type Principal struct {
	UserID     int64
	Email      string
	CompanyIDs []int64
	SuperUser  bool
}

// CanAccessCompany reports whether the principal may act on the company.
func (p *Principal) CanAccessCompany(companyID int64) bool {
	if p == nil {
		return false
	}
	if p.SuperUser {
		return true
	}
	for _, id := range p.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

type contextKey string

const (
	principalKey contextKey = "principal"
	companyKey   contextKey = "company"
)

// ContextWithPrincipal stores the principal in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal, nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// ContextWithCompany stores the active company scope in the context.
func ContextWithCompany(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyKey, companyID)
}

// CompanyFromContext retrieves the active company scope, zero when unset.
func CompanyFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(companyKey).(int64)
	return id
}
