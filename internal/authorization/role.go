package authorization

import "strings"

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleCarrier Role = "carrier"
	RoleShipper Role = "shipper"
	RoleBroker  Role = "broker"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes raw into a known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCarrier:
		return RoleCarrier, true
	case RoleShipper:
		return RoleShipper, true
	case RoleBroker:
		return RoleBroker, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// CanIssue reports whether the role may bill for a load.
func CanIssue(r Role) bool {
	return r == RoleCarrier
}

// CanPay reports whether the role may be the payer of an invoice.
func CanPay(r Role) bool {
	return r == RoleShipper || r == RoleBroker
}

func IsAdmin(r Role) bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
