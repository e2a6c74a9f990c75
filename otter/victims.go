package otter

import (
	"sort"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// selectVictims chooses which servers give way during a scale-in pass.
// Pending creates are reclaimed before any in-service server is touched,
// oldest reservation first; among active servers the oldest created go
// first. Server identifiers present in the excluded set, typically those
// already targeted by an in-flight delete job, are skipped so a repeated
// pass does not double up on the same victim.
func selectVictims(state *structs.GroupState, count int,
	excluded map[string]bool) (pendingVictims []string, serverVictims []structs.ActiveServer) {

	if count <= 0 {
		return nil, nil
	}

	pending := make([]string, 0, len(state.Pending))
	for jobID := range state.Pending {
		pending = append(pending, jobID)
	}
	sort.Slice(pending, func(i, j int) bool {
		ti, tj := state.Pending[pending[i]], state.Pending[pending[j]]
		if ti.Equal(tj) {
			return pending[i] < pending[j]
		}
		return ti.Before(tj)
	})

	for _, jobID := range pending {
		if len(pendingVictims) == count {
			return pendingVictims, nil
		}
		pendingVictims = append(pendingVictims, jobID)
	}

	servers := make([]structs.ActiveServer, 0, len(state.Active))
	for _, server := range state.Active {
		if excluded[server.ID] {
			continue
		}
		servers = append(servers, server)
	}
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Created.Equal(servers[j].Created) {
			return servers[i].ID < servers[j].ID
		}
		return servers[i].Created.Before(servers[j].Created)
	})

	remaining := count - len(pendingVictims)
	if remaining > len(servers) {
		remaining = len(servers)
	}
	serverVictims = servers[:remaining]

	return pendingVictims, serverVictims
}
