package rbac

import (
	"context"
	"strings"
)

// grants is one role's compiled permission list.
type grants struct {
	all      bool
	exact    map[string]struct{}
	prefixes []string
}

func compile(perms []string) grants {
	g := grants{exact: make(map[string]struct{}, len(perms))}
	for _, p := range perms {
		switch {
		case p == "*":
			g.all = true
		case strings.HasSuffix(p, "*"):
			g.prefixes = append(g.prefixes, strings.TrimSuffix(p, "*"))
		default:
			g.exact[p] = struct{}{}
		}
	}
	return g
}

func (g grants) allows(perm string) bool {
	if g.all {
		return true
	}
	if _, ok := g.exact[perm]; ok {
		return true
	}
	for _, pre := range g.prefixes {
		if strings.HasPrefix(perm, pre) {
			return true
		}
	}
	return false
}

// Checker answers permission questions for a role table. A trailing "*" in a
// table entry grants every permission with that prefix.
type Checker struct {
	roles map[string]grants
}

// NewChecker compiles rp, or RolePermissions when rp is nil.
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	c := &Checker{roles: make(map[string]grants, len(rp))}
	for role, perms := range rp {
		c.roles[role] = compile(perms)
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	g, ok := c.roles[role]
	return ok && g.allows(perm)
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

var defaultChecker = NewChecker(nil)

// Can checks perm for the role carried by ctx.
func Can(ctx context.Context, perm string) bool {
	return defaultChecker.Has(RoleFromContext(ctx), perm)
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
