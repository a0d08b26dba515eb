package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultPolicy decides the outcome for paths no route rule covers.
type DefaultPolicy string

const (
	PolicyAllow DefaultPolicy = "allow"
	PolicyDeny  DefaultPolicy = "deny"
)

// ParsePolicy validates a configured default policy.
func ParsePolicy(raw string) (DefaultPolicy, error) {
	switch DefaultPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyAllow:
		return PolicyAllow, nil
	case PolicyDeny:
		return PolicyDeny, nil
	default:
		return "", fmt.Errorf("rbac: unknown default policy %q", raw)
	}
}

// RouteRule binds a path prefix to the capability it requires.
type RouteRule struct {
	Prefix     string
	Capability Capability
}

// DefaultRouteRules returns the console's route rules in declaration order.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/kyc", Capability: CapKYCReview},
		{Prefix: "/payments", Capability: CapPaymentVerify},
		{Prefix: "/auctions/monitor", Capability: CapAuctionMonitor},
		{Prefix: "/support", Capability: CapSupportView},
		{Prefix: "/reports", Capability: CapReportsFinancial},
		{Prefix: "/settings", Capability: CapSystemConfig},
		{Prefix: "/audit-logs", Capability: CapAuditView},
	}
}

// RouteMap resolves the capability required for a path. Rules are matched
// longest prefix first; equal lengths keep declaration order.
type RouteMap struct {
	rules  []RouteRule
	policy DefaultPolicy
}

// NewRouteMap builds an immutable RouteMap.
func NewRouteMap(policy DefaultPolicy, rules ...RouteRule) *RouteMap {
	if policy == "" {
		policy = PolicyAllow
	}
	ordered := make([]RouteRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Prefix == "" {
			continue
		}
		ordered = append(ordered, rule)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})
	return &RouteMap{rules: ordered, policy: policy}
}

// DefaultRouteMap builds the console route map with the given default policy.
func DefaultRouteMap(policy DefaultPolicy) *RouteMap {
	return NewRouteMap(policy, DefaultRouteRules()...)
}

// Policy returns the outcome applied to unmatched paths.
func (m *RouteMap) Policy() DefaultPolicy {
	if m == nil {
		return PolicyAllow
	}
	return m.policy
}

// Rules returns the rules in match order.
func (m *RouteMap) Rules() []RouteRule {
	if m == nil {
		return nil
	}
	out := make([]RouteRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Required returns the capability guarding path, if any rule matches.
func (m *RouteMap) Required(path string) (Capability, bool) {
	if m == nil {
		return "", false
	}
	for _, rule := range m.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Capability, true
		}
	}
	return "", false
}

// CanAccess reports whether role may reach path. The landing page only
// needs a session, whatever the default policy.
func (m *RouteMap) CanAccess(role Role, path string) bool {
	if path == "/" {
		return true
	}
	required, ok := m.Required(path)
	if !ok {
		return m.Policy() == PolicyAllow
	}
	return HasPermission(role, required)
}

var defaultRoutes = DefaultRouteMap(PolicyAllow)

// CanAccessRoute applies the default route map, which allows unmatched paths.
func CanAccessRoute(role Role, path string) bool {
	return defaultRoutes.CanAccess(role, path)
}

// RequiredCapability looks path up in the default route map.
func RequiredCapability(path string) (Capability, bool) {
	return defaultRoutes.Required(path)
}
