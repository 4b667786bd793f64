package authz

// Permission keys used as the unit of access control. The set is closed:
// it is defined here at startup and never extended at runtime.
const (
	PermUsersView        = "users.view"
	PermUsersManage      = "users.manage"
	PermRestaurantManage = "restaurants.manage"
	PermMenuManage       = "menus.manage"
	PermOrdersView       = "orders.view"
	PermOrdersUpdate     = "orders.update"
	PermPaymentsInitiate = "payments.initiate"
	PermPaymentsView     = "payments.view"
)

// Role names assignable to actors.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleWaiter   = "waiter"
	RoleCustomer = "customer"
)

// AllPermissions lists every permission the service knows about.
var AllPermissions = []string{
	PermUsersView,
	PermUsersManage,
	PermRestaurantManage,
	PermMenuManage,
	PermOrdersView,
	PermOrdersUpdate,
	PermPaymentsInitiate,
	PermPaymentsView,
}

// rolePermissions maps each role to the permissions it grants. Roles absent
// from this table grant nothing.
var rolePermissions = map[string]map[string]struct{}{
	RoleAdmin: permSet(
		PermUsersView, PermUsersManage,
		PermRestaurantManage, PermMenuManage,
		PermOrdersView, PermOrdersUpdate,
		PermPaymentsInitiate, PermPaymentsView,
	),
	RoleManager: permSet(
		PermUsersView,
		PermMenuManage,
		PermOrdersView, PermOrdersUpdate,
		PermPaymentsInitiate, PermPaymentsView,
	),
	RoleWaiter: permSet(
		PermOrdersView, PermOrdersUpdate,
	),
	RoleCustomer: permSet(
		PermOrdersView,
		PermPaymentsInitiate,
	),
}

// RoleGrants reports whether the named role grants the permission.
// Unknown roles grant nothing.
func RoleGrants(role, permission string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// KnownRole reports whether the role exists in the registry.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

func permSet(perms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
