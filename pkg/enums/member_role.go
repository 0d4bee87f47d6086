package enums

import (
	"fmt"
	"strings"
)

// MemberRole is the portal role carried in access tokens.
type MemberRole string

const (
	MemberRoleAdmin    MemberRole = "admin"
	MemberRoleManager  MemberRole = "manager"
	MemberRoleSales    MemberRole = "sales"
	MemberRoleHR       MemberRole = "hr"
	MemberRoleEmployee MemberRole = "employee"
)

func (m MemberRole) String() string {
	return string(m)
}

func (m MemberRole) IsValid() bool {
	switch m {
	case MemberRoleAdmin, MemberRoleManager, MemberRoleSales, MemberRoleHR, MemberRoleEmployee:
		return true
	}
	return false
}

// CanWriteQuotes reports whether the role may create or change quotes.
// Other roles are read only.
func (m MemberRole) CanWriteQuotes() bool {
	switch m {
	case MemberRoleAdmin, MemberRoleManager, MemberRoleSales:
		return true
	}
	return false
}

// QuoteWriterRoles lists the roles for which CanWriteQuotes is true.
func QuoteWriterRoles() []MemberRole {
	return []MemberRole{MemberRoleAdmin, MemberRoleManager, MemberRoleSales}
}

// ParseMemberRole accepts a role name in any case.
func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", value)
	}
	return role, nil
}
