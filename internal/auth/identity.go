package auth

// CapabilityAdmin grants access to the administrative control surface.
const CapabilityAdmin = "admin"

// Identity is the result of successful credential verification. It lives
// for the duration of one request and is never persisted.
type Identity struct {
	Subject      string
	TenantID     string
	Capabilities []string
}

// HasCapability reports whether the identity carries the capability.
func (id *Identity) HasCapability(capability string) bool {
	for _, c := range id.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Authorize reports whether the identity may use the required capability.
// A missing identity or an empty capability set is always unauthorized.
func Authorize(id *Identity, required string) bool {
	if id == nil || required == "" {
		return false
	}
	return id.HasCapability(required)
}
