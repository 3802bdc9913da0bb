package rbac

import "context"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Principal is an already authenticated caller.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Owned is anything with an author, e.g. a test.
type Owned interface {
	OwnerID() int64
}

func (p Principal) owns(o Owned) bool {
	return o != nil && p.ID == o.OwnerID()
}

// CanCreate reports whether p may author new tests.
func CanCreate(p Principal) bool {
	return p.Role == RoleAdmin || p.Role == RoleTeacher
}

// CanEdit: admins always, teachers only for their own tests.
func CanEdit(p Principal, o Owned) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return p.owns(o)
	default:
		return false
	}
}

// CanDelete follows the same rule as CanEdit.
func CanDelete(p Principal, o Owned) bool {
	return CanEdit(p, o)
}

// CanViewStatistics is scoped like CanEdit: a teacher sees statistics only
// for tests they authored.
func CanViewStatistics(p Principal, o Owned) bool {
	return CanEdit(p, o)
}

// ---- principal in context ----

type ctxKey struct{}

var ctxKeyPrincipal = ctxKey{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
