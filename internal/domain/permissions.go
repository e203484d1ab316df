package domain

import "slices"

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
	RoleViewer   = "viewer"
)

const (
	PermSuppliersRead   = "suppliers:read"
	PermSuppliersWrite  = "suppliers:write"
	PermSuppliersDelete = "suppliers:delete"
	PermClientsRead     = "clients:read"
	PermClientsWrite    = "clients:write"
	PermClientsDelete   = "clients:delete"
	PermProductsRead    = "products:read"
	PermProductsWrite   = "products:write"
	PermProductsDelete  = "products:delete"
	PermInvoicesRead    = "invoices:read"
	PermInvoicesWrite   = "invoices:write"
	PermInvoicesDelete  = "invoices:delete"
	PermUsersRead       = "users:read"
	PermUsersWrite      = "users:write"
	PermUsersDelete     = "users:delete"
	PermReportsRead     = "reports:read"
	PermReportsWrite    = "reports:write"
	PermDashboardRead   = "dashboard:read"
	PermSettingsRead    = "settings:read"
	PermSettingsWrite   = "settings:write"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermSuppliersRead, PermSuppliersWrite, PermSuppliersDelete,
		PermClientsRead, PermClientsWrite, PermClientsDelete,
		PermProductsRead, PermProductsWrite, PermProductsDelete,
		PermInvoicesRead, PermInvoicesWrite, PermInvoicesDelete,
		PermUsersRead, PermUsersWrite, PermUsersDelete,
		PermReportsRead, PermReportsWrite,
		PermDashboardRead,
		PermSettingsRead, PermSettingsWrite,
	},
	RoleManager: {
		PermSuppliersRead, PermSuppliersWrite,
		PermClientsRead, PermClientsWrite,
		PermProductsRead, PermProductsWrite,
		PermInvoicesRead, PermInvoicesWrite,
		PermUsersRead,
		PermReportsRead,
		PermDashboardRead,
	},
	RoleEmployee: {
		PermSuppliersRead,
		PermClientsRead, PermClientsWrite,
		PermProductsRead,
		PermInvoicesRead, PermInvoicesWrite,
		PermDashboardRead,
	},
	RoleViewer: {
		PermSuppliersRead,
		PermClientsRead,
		PermProductsRead,
		PermInvoicesRead,
		PermDashboardRead,
	},
}

func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// PermissionsForRole returns a fresh copy; unknown roles get nothing.
func PermissionsForRole(role string) []string {
	return slices.Clone(rolePermissions[role])
}

func HasPermission(granted []string, permission string) bool {
	return slices.Contains(granted, permission)
}

// HasAnyPermission is satisfied by holding at least one of required.
func HasAnyPermission(granted []string, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, perm := range required {
		if HasPermission(granted, perm) {
			return true
		}
	}
	return false
}
