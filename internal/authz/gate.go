// Package authz decides whether an identity may act on a role-protected
// resource. The decision is deliberately three-way rather than boolean:
// an unauthenticated caller and an authenticated caller with the wrong role
// must land on different redirect targets, and a caller whose role is still
// being resolved must see neither content nor a denial.
package authz

import "github.com/etution/etution-api/internal/models"

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Pending means the identity or its role is still being resolved.
	// Callers must render a neutral waiting state, never content and never
	// a denial.
	Pending Decision = iota
	// Allow grants access.
	Allow
	// Deny refuses access; Redirect says where to send the caller.
	Deny
)

// Redirect targets for Deny decisions.
type Redirect int

const (
	// RedirectNone applies to Allow and Pending.
	RedirectNone Redirect = iota
	// RedirectSignIn is for callers with no identity at all.
	RedirectSignIn
	// RedirectHome is for authenticated callers with the wrong role.
	// Sending them to sign-in would loop: they are already signed in.
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "pending"
	}
}

// Result pairs the decision with its redirect target.
type Result struct {
	Decision Decision
	Redirect Redirect
}

// Authorize evaluates a role requirement for the given identity state.
// claims may be nil (no identity). loading reports that identity
// initialization or role resolution is still in flight. An empty
// requiredRoles set means any authenticated identity is acceptable.
func Authorize(claims *models.JWTClaims, role models.Role, loading bool, requiredRoles ...models.Role) Result {
	if loading {
		return Result{Decision: Pending, Redirect: RedirectNone}
	}
	if claims == nil {
		return Result{Decision: Deny, Redirect: RedirectSignIn}
	}
	if len(requiredRoles) == 0 {
		return Result{Decision: Allow, Redirect: RedirectNone}
	}
	for _, required := range requiredRoles {
		if role == required {
			return Result{Decision: Allow, Redirect: RedirectNone}
		}
	}
	return Result{Decision: Deny, Redirect: RedirectHome}
}
