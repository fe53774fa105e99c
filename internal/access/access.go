package access

import (
	"sort"
	"strings"
)

// Wildcard grants every permission when present in a role's set.
const Wildcard = "*"

// Built-in role names. The model is extensible at construction time;
// these four are always present in the default model.
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
	RoleAPI    = "api"
)

// Role groups a permission set under a name.
type Role struct {
	Name        string
	Description string
	Permissions map[string]struct{}
}

// Model is a closed mapping from role name to permission set,
// constructed once at startup and immutable afterwards.
type Model struct {
	roles map[string]Role
}

// Definition describes one role for NewModel.
type Definition struct {
	Name        string
	Description string
	Permissions []string
}

// NewModel builds an immutable model from role definitions. Role names
// are normalized to lower case; empty definitions are skipped.
func NewModel(defs []Definition) *Model {
	roles := make(map[string]Role, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(strings.ToLower(def.Name))
		if name == "" {
			continue
		}
		perms := make(map[string]struct{}, len(def.Permissions))
		for _, p := range def.Permissions {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			perms[p] = struct{}{}
		}
		roles[name] = Role{Name: name, Description: strings.TrimSpace(def.Description), Permissions: perms}
	}
	return &Model{roles: roles}
}

// DefaultModel returns the built-in role set.
func DefaultModel() *Model {
	return NewModel([]Definition{
		{Name: RoleAdmin, Description: "Full administrative access", Permissions: []string{Wildcard}},
		{Name: RoleUser, Description: "Standard authenticated user", Permissions: []string{"read", "write", "chat"}},
		{Name: RoleViewer, Description: "Read-only access", Permissions: []string{"read"}},
		{Name: RoleAPI, Description: "Machine-to-machine API access", Permissions: []string{"read", "write"}},
	})
}

// HasPermission reports whether the role grants the permission.
// Unknown roles grant nothing; a wildcard set grants everything.
func (m *Model) HasPermission(role, permission string) bool {
	r, ok := m.roles[strings.TrimSpace(strings.ToLower(role))]
	if !ok {
		return false
	}
	if _, ok := r.Permissions[Wildcard]; ok {
		return true
	}
	_, ok = r.Permissions[permission]
	return ok
}

// Permissions returns the role's permission set sorted, nil for unknown roles.
func (m *Model) Permissions(role string) []string {
	r, ok := m.roles[strings.TrimSpace(strings.ToLower(role))]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.Permissions))
	for p := range r.Permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Known reports whether the role exists in the model.
func (m *Model) Known(role string) bool {
	_, ok := m.roles[strings.TrimSpace(strings.ToLower(role))]
	return ok
}
