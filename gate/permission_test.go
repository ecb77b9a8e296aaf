package gate_test

import (
	"testing"

	"github.com/diewo77/vtc-exchange/gate"
)

func TestPermission_NewPermission(t *testing.T) {
	perm := gate.NewPermission("rides", gate.ActionWrite)
	if perm != "rides:write" {
		t.Errorf("expected 'rides:write', got '%s'", perm)
	}
}

func TestPermission_Parse(t *testing.T) {
	mod, act := gate.Permission("factures:read").Parse()
	if mod != "factures" {
		t.Errorf("expected module 'factures', got '%s'", mod)
	}
	if act != gate.ActionRead {
		t.Errorf("expected action 'read', got '%s'", act)
	}
}

func TestPermission_Parse_Invalid(t *testing.T) {
	mod, act := gate.Permission("invalid").Parse()
	if mod != "" || act != "" {
		t.Errorf("expected empty strings, got '%s' and '%s'", mod, act)
	}
}

func TestPermission_Matches(t *testing.T) {
	tests := []struct {
		granted   gate.Permission
		requested gate.Permission
		want      bool
	}{
		{"rides:write", "rides:write", true},
		{"rides:write", "rides:delete", false},
		{"rides:write", "groupes:write", false},
		{gate.PermissionSuperAdmin, "chauffeurs:delete", true},
		{"rides:*", "rides:delete", true},
		{"rides:*", "avis:read", false},
		{"*:read", "avis:read", true},
		{"*:read", "avis:write", false},
		{"broken", "rides:read", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.granted)+"->"+string(tt.requested), func(t *testing.T) {
			if got := tt.granted.Matches(tt.requested); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionsFromAccessRights(t *testing.T) {
	perms := gate.PermissionsFromAccessRights(map[string][]string{
		"rides": {"read", "write", "fly"},
	})
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions (unknown action dropped), got %v", perms)
	}
}

func TestAction_Valid(t *testing.T) {
	if !gate.ActionDelete.Valid() {
		t.Error("delete should be valid")
	}
	if gate.Action("list").Valid() {
		t.Error("list is not an access-right action")
	}
}
