package permission

import (
	"errors"
	"fmt"
)

// RootPermission, listed in a role's permissions, grants every permission.
const RootPermission = "*"

// Policy is an immutable role to permission table.
type Policy struct {
	registry *Registry
	roles    map[string]Mask
}

// NewPolicy registers permissions in order and composes one mask per role.
// A role may list [RootPermission] to be granted everything, including
// permissions it does not name.
func NewPolicy(permissions []string, roles map[string][]string) (*Policy, error) {
	reg := NewRegistry(true)
	for _, p := range permissions {
		if _, err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	reg.Freeze()

	p := &Policy{
		registry: reg,
		roles:    make(map[string]Mask, len(roles)),
	}
	for role, perms := range roles {
		if role == "" {
			return nil, errors.New("role name empty")
		}
		var m Mask
		for _, name := range perms {
			if name == RootPermission {
				m.Set(RootBit)
				continue
			}
			bit, ok := reg.Bit(name)
			if !ok {
				return nil, fmt.Errorf("role %s: permission not registered: %s", role, name)
			}
			m.Set(bit)
		}
		p.roles[role] = m
	}
	return p, nil
}

// Mask returns the composed mask of role.
func (p *Policy) Mask(role string) (Mask, bool) {
	if p == nil {
		return 0, false
	}
	m, ok := p.roles[role]
	return m, ok
}

// Allows reports whether role holds every one of perms. Unknown roles and
// unregistered permissions are denied.
func (p *Policy) Allows(role string, perms ...string) bool {
	m, ok := p.Mask(role)
	if !ok {
		return false
	}
	for _, name := range perms {
		bit, ok := p.registry.Bit(name)
		if !ok || !m.Has(bit, true) {
			return false
		}
	}
	return true
}

// Permissions lists what role may do, sorted.
func (p *Policy) Permissions(role string) []string {
	m, ok := p.Mask(role)
	if !ok {
		return nil
	}
	return p.registry.Names(m)
}
