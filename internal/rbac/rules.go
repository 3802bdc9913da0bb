package rbac

// Permission names a route-level capability. Ownership is checked
// separately by the predicates in policy.go.
type Permission string

const (
	PermAll Permission = "*"

	PermTestView      Permission = "test:view"
	PermTestCreate    Permission = "test:create"
	PermTestEditOwn   Permission = "test:edit_own"
	PermTestEditAll   Permission = "test:edit_all"
	PermTestDeleteOwn Permission = "test:delete_own"
	PermTestDeleteAll Permission = "test:delete_all"
	PermStatsViewOwn  Permission = "stats:view_own"
	PermStatsViewAll  Permission = "stats:view_all"

	PermAttemptSubmit  Permission = "attempt:submit"
	PermAttemptViewOwn Permission = "attempt:view_own"

	PermUsersList       Permission = "users:list"
	PermUsersBulkUpsert Permission = "users:bulk_upsert"
	PermUsersUpdateRole Permission = "users:update_role"
	PermPasswordChange  Permission = "user:change_password"
)

// RolePermissions is the default grant table.
var RolePermissions = map[Role][]Permission{
	RoleStudent: {
		PermTestView,
		PermAttemptSubmit,
		PermAttemptViewOwn,
		PermPasswordChange,
	},
	RoleTeacher: {
		PermTestView,
		PermTestCreate,
		PermTestEditOwn,
		PermTestDeleteOwn,
		PermStatsViewOwn,
		PermAttemptSubmit,
		PermAttemptViewOwn,
		PermUsersList,
		PermPasswordChange,
	},
	RoleAdmin: {PermAll},
}
