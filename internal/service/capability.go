package service

// Role is the caller's tier within an org, carried on every request.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleEditor  Role = "editor"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Capability names one guarded operation.
type Capability string

const (
	CapabilityQueueCreate     Capability = "queue:create"
	CapabilityQueueRetry      Capability = "queue:retry"
	CapabilityQueueCancel     Capability = "queue:cancel"
	CapabilityQueueManage     Capability = "queue:manage"
	CapabilityApprovalRequest Capability = "approval:request"
	CapabilityApprovalDecide  Capability = "approval:decide"
	CapabilityPublishTrigger  Capability = "publish:trigger"
	CapabilityStatsRead       Capability = "stats:read"
)

// roleCapabilities is the single declarative capability table. Every guarded
// operation consults it through HasCapability; no call site checks role names
// directly. queue:manage is the manager tier: it extends retry/cancel beyond
// the item's creator.
var roleCapabilities = map[Role][]Capability{
	RoleViewer: {
		CapabilityStatsRead,
	},
	RoleEditor: {
		CapabilityQueueCreate,
		CapabilityQueueRetry,
		CapabilityQueueCancel,
		CapabilityApprovalRequest,
		CapabilityStatsRead,
	},
	RoleManager: {
		CapabilityQueueCreate,
		CapabilityQueueRetry,
		CapabilityQueueCancel,
		CapabilityQueueManage,
		CapabilityApprovalRequest,
		CapabilityApprovalDecide,
		CapabilityPublishTrigger,
		CapabilityStatsRead,
	},
	RoleAdmin: {
		CapabilityQueueCreate,
		CapabilityQueueRetry,
		CapabilityQueueCancel,
		CapabilityQueueManage,
		CapabilityApprovalRequest,
		CapabilityApprovalDecide,
		CapabilityPublishTrigger,
		CapabilityStatsRead,
	},
}

var capabilitySet = func() map[Role]map[Capability]struct{} {
	set := make(map[Role]map[Capability]struct{}, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		m := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			m[c] = struct{}{}
		}
		set[role] = m
	}
	return set
}()

// HasCapability reports whether a role grants a capability. Pure lookup,
// unknown roles grant nothing.
func HasCapability(role Role, capability Capability) bool {
	caps, ok := capabilitySet[role]
	if !ok {
		return false
	}
	_, ok = caps[capability]
	return ok
}

// Actor identifies the caller on whose behalf a service operation runs. It is
// populated from verified token claims, never from request bodies.
type Actor struct {
	UserID string
	OrgID  string
	Role   Role
}

// Can reports whether the actor's role grants a capability.
func (a Actor) Can(capability Capability) bool {
	return HasCapability(a.Role, capability)
}
