package rbac

import "strings"

// Checker answers route-level questions about a principal. A grant ending
// in "*" covers every permission with that prefix.
type Checker struct {
	grants map[Role][]Permission
}

func NewChecker(grants map[Role][]Permission) *Checker {
	if grants == nil {
		grants = RolePermissions
	}
	return &Checker{grants: grants}
}

// Allows reports whether p holds at least one of perms.
func (c *Checker) Allows(p Principal, perms ...Permission) bool {
	for _, g := range c.grants[p.Role] {
		for _, want := range perms {
			if g.covers(want) {
				return true
			}
		}
	}
	return false
}

func (g Permission) covers(want Permission) bool {
	if g == want || g == PermAll {
		return true
	}
	prefix, ok := strings.CutSuffix(string(g), "*")
	return ok && strings.HasPrefix(string(want), prefix)
}
