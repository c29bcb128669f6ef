package rbac

// CRM role names as carried in the session token.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
