package auth

// Capabilities checked by the gateway.
const (
	CapabilityPlayer = "player"
	CapabilityAdmin  = "admin"
)

// DefaultPolicies maps each capability to the roles that satisfy it.
// Administrators satisfy the player capability as well.
func DefaultPolicies() map[string][]string {
	return map[string][]string{
		CapabilityPlayer: {"admin", "player"},
		CapabilityAdmin:  {"admin"},
	}
}

// PolicyAuthorizer authorizes against a capability to roles table.
type PolicyAuthorizer struct {
	policies map[string][]string
	roles    RoleDirectory
}

// NewPolicyAuthorizer builds an authorizer over the given policy table
// and role directory. A nil policies map uses DefaultPolicies.
func NewPolicyAuthorizer(policies map[string][]string, roles RoleDirectory) *PolicyAuthorizer {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &PolicyAuthorizer{policies: policies, roles: roles}
}

// Authorize grants the capability when any of the identity's roles is
// listed for it. Unknown capabilities always fail.
func (p *PolicyAuthorizer) Authorize(identity Identity, capability string) error {
	if identity.UserID == "" {
		return ErrUnauthorized
	}
	allowed, ok := p.policies[capability]
	if !ok {
		return ErrForbidden
	}
	for _, role := range p.roles.Roles(identity.UserID) {
		for _, want := range allowed {
			if role == want {
				return nil
			}
		}
	}
	return ErrForbidden
}
