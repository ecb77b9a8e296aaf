package gate

import "strings"

// Permission represents an allowed action on a module.
// Format: "module:action" (e.g., "rides:write", "factures:read")
type Permission string

// NewPermission creates a permission from module and action.
func NewPermission(module string, action Action) Permission {
	return Permission(module + ":" + string(action))
}

// Parse splits a permission into module and action.
func (p Permission) Parse() (module string, action Action) {
	parts := strings.SplitN(string(p), ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], Action(parts[1])
}

// Wildcards for super permissions
const (
	WildcardAll                     = "*"
	PermissionSuperAdmin Permission = "*:*"
)

// Matches checks if this permission covers a requested permission.
// "*:*" matches all, "rides:*" matches every rides action, "*:read" matches read on every module.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionSuperAdmin || p == requested {
		return true
	}
	mod, act := p.Parse()
	reqMod, reqAct := requested.Parse()
	if mod == "" || reqMod == "" {
		return false
	}
	modOK := mod == reqMod || mod == WildcardAll
	actOK := act == reqAct || string(act) == WildcardAll
	return modOK && actOK
}

// PermissionsFromAccessRights flattens a module -> actions map into permissions.
// Unknown actions are dropped.
func PermissionsFromAccessRights(rights map[string][]string) []Permission {
	perms := make([]Permission, 0, len(rights))
	for module, actions := range rights {
		for _, a := range actions {
			act := Action(a)
			if !act.Valid() && a != WildcardAll {
				continue
			}
			perms = append(perms, NewPermission(module, act))
		}
	}
	return perms
}
