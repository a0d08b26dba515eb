package rbac

// Capability represents a single permitted action category.
type Capability string

const (
	CapDashboardView Capability = "dashboard.view"

	CapKYCReview  Capability = "kyc.review"
	CapKYCApprove Capability = "kyc.approve"

	CapAuctionMonitor Capability = "auction.monitor"
	CapAuctionCancel  Capability = "auction.cancel"
	CapAuctionFlag    Capability = "auction.flag"

	CapPaymentVerify Capability = "payment.verify"
	CapPaymentRefund Capability = "payment.refund"

	CapUserView    Capability = "user.view"
	CapUserEdit    Capability = "user.edit"
	CapUserSuspend Capability = "user.suspend"

	CapSupportView  Capability = "support.view"
	CapSupportReply Capability = "support.reply"

	CapReportsFinancial Capability = "reports.financial"
	CapReportsGenerate  Capability = "reports.generate"

	CapSystemConfig Capability = "system.config"
	CapAuditView    Capability = "audit.view"
)

// Capabilities lists every declared capability in declaration order.
func Capabilities() []Capability {
	return []Capability{
		CapDashboardView,
		CapKYCReview, CapKYCApprove,
		CapAuctionMonitor, CapAuctionCancel, CapAuctionFlag,
		CapPaymentVerify, CapPaymentRefund,
		CapUserView, CapUserEdit, CapUserSuspend,
		CapSupportView, CapSupportReply,
		CapReportsFinancial, CapReportsGenerate,
		CapSystemConfig,
		CapAuditView,
	}
}

type capabilitySet map[Capability]struct{}

func newCapabilitySet(caps ...Capability) capabilitySet {
	set := make(capabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// roleCapabilities is the process-wide permission table. It is total over
// Roles() and is never written after package initialisation.
var roleCapabilities = map[Role]capabilitySet{
	RoleSuperAdmin: newCapabilitySet(Capabilities()...),
	RoleModerator: newCapabilitySet(
		CapDashboardView, CapAuctionMonitor, CapAuctionFlag,
	),
	RoleOperationsAdmin: newCapabilitySet(
		CapDashboardView, CapKYCReview, CapKYCApprove, CapUserView, CapUserEdit,
	),
	RoleFinanceAdmin: newCapabilitySet(
		CapDashboardView, CapPaymentVerify, CapPaymentRefund, CapReportsFinancial,
	),
	RoleSupportAdmin: newCapabilitySet(
		CapDashboardView, CapSupportView, CapSupportReply, CapUserView,
	),
}

// HasPermission reports whether role is granted capability. Unknown roles are
// denied.
func HasPermission(role Role, capability Capability) bool {
	set, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	_, granted := set[capability]
	return granted
}

// CapabilitiesFor returns the capabilities granted to role in declaration order.
func CapabilitiesFor(role Role) []Capability {
	granted := make([]Capability, 0)
	for _, c := range Capabilities() {
		if HasPermission(role, c) {
			granted = append(granted, c)
		}
	}
	return granted
}
