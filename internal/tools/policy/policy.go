// Package policy computes the set of tool groups a channel is permitted
// to use, so the Dispatcher can ask the registry for exactly the tools a
// session is allowed to see (list_for_permissions).
package policy

import "github.com/coredispatch/agentcore/internal/agent"

// Policy is a channel's tool-group allow-set. A group absent from Allow is
// denied; there is no separate deny-list because groups are already the
// coarsest unit of permission the registry understands.
type Policy struct {
	Allow map[agent.ToolGroup]bool
}

// Profile is a named bundle of groups, letting channel configuration pick
// "minimal", "messaging" or "full" rather than enumerate five booleans by hand.
type Profile string

const (
	ProfileMinimal   Profile = "minimal"
	ProfileMessaging Profile = "messaging"
	ProfileFull      Profile = "full"
)

var profileGroups = map[Profile][]agent.ToolGroup{
	ProfileMinimal:   {},
	ProfileMessaging: {agent.GroupMessage, agent.GroupIdentity},
	ProfileFull:      {agent.GroupExec, agent.GroupMessage, agent.GroupFiles, agent.GroupNet, agent.GroupIdentity},
}

// FromProfile builds a Policy from a named profile, plus any explicit
// extra groups to allow on top of it.
func FromProfile(p Profile, extra ...agent.ToolGroup) Policy {
	allow := make(map[agent.ToolGroup]bool)
	for _, g := range profileGroups[p] {
		allow[g] = true
	}
	for _, g := range extra {
		allow[g] = true
	}
	return Policy{Allow: allow}
}

// AllowGroup reports whether a Policy permits a given tool group.
func (p Policy) AllowGroup(g agent.ToolGroup) bool {
	return p.Allow[g]
}
