package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleEngineer   Role = "Engineer"
	RoleTechnician Role = "Technician"
)

var roles = []Role{RoleAdmin, RoleEngineer, RoleTechnician}

// ParseRole は大文字小文字を無視して既知のロールに解決する
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range roles {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

type Capability string

const (
	CapBorrow          Capability = "borrow"
	CapVerify          Capability = "verify"
	CapManageInventory Capability = "manage_inventory"
	CapAddPackage      Capability = "add_package"
	CapManageUsers     Capability = "manage_users"
	CapViewOverdue     Capability = "view_overdue"
)

// role → 許可される操作
var capabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapBorrow:          true,
		CapManageInventory: true,
		CapAddPackage:      true,
		CapManageUsers:     true,
		CapViewOverdue:     true,
	},
	RoleEngineer: {
		CapBorrow:     true,
		CapAddPackage: true,
	},
	RoleTechnician: {
		CapVerify:      true,
		CapAddPackage:  true,
		CapViewOverdue: true,
	},
}

func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

// Actor は認証済みの呼び出し元
type Actor struct {
	ID       int64
	Role     Role
	Email    string
	Username string
}

func (a Actor) Can(c Capability) bool { return a.Role.Can(c) }

func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(CtxActorKey)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}
