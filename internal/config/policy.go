package config

import (
	"fmt"

	"github.com/agentkernel/agentkernel/internal/security"
	"github.com/agentkernel/agentkernel/internal/tenant"
)

// RBACPolicyFromManifest builds a security.Policy from a manifest's
// role lists, falling back to security.DefaultPolicy for any action
// the manifest leaves unconfigured.
func RBACPolicyFromManifest(m Manifest) (security.Policy, error) {
	rbac := m.Runtime.RBAC
	if len(rbac.RunRoles) == 0 && len(rbac.ValidateRoles) == 0 &&
		len(rbac.ReplayRoles) == 0 && len(rbac.AdminRoles) == 0 {
		return security.DefaultPolicy(), nil
	}

	defaults := security.DefaultPolicy()
	allowed := map[security.Action][]security.Role{}
	for action, raw := range map[security.Action][]string{
		security.ActionRun:      rbac.RunRoles,
		security.ActionValidate: rbac.ValidateRoles,
		security.ActionReplay:   rbac.ReplayRoles,
		security.ActionAdmin:    rbac.AdminRoles,
	} {
		if len(raw) == 0 {
			for _, role := range []security.Role{security.RoleViewer, security.RoleOperator, security.RoleAdmin} {
				if defaults.IsAllowed(role, action) {
					allowed[action] = append(allowed[action], role)
				}
			}
			continue
		}
		roles, err := security.ParseRoles(raw)
		if err != nil {
			return security.Policy{}, fmt.Errorf("rbac policy: %w", err)
		}
		allowed[action] = roles
	}
	return security.NewPolicy(allowed), nil
}

// NamespaceFromManifest returns the manifest's tenancy namespace,
// normalized and validated by the tenant package, or "default" if unset.
func NamespaceFromManifest(m Manifest) (string, error) {
	ns := tenant.Normalize(m.Runtime.Namespace)
	if err := tenant.Validate(ns); err != nil {
		return "", err
	}
	return ns, nil
}
