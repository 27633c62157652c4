package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts the canonical names plus "lawyer" as a provider alias.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "client":
		return RoleClient, nil
	case "provider", "lawyer":
		return RoleProvider, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

type Principal struct {
	UserID string
	Role   Role
}

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
