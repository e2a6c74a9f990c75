package otter

import (
	"testing"
	"time"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

func TestVictims_PendingReclaimedFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	state.Pending["job-b"] = base.Add(2 * time.Minute)
	state.Pending["job-a"] = base.Add(1 * time.Minute)
	state.Active["srv-1"] = structs.ActiveServer{ID: "srv-1", Created: base}

	pending, servers := selectVictims(state, 2, nil)

	if len(pending) != 2 {
		t.Fatalf("expected 2 pending victims, got %v", len(pending))
	}
	if pending[0] != "job-a" || pending[1] != "job-b" {
		t.Fatalf("expected oldest reservation first [job-a job-b], got %v", pending)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no server victims while pending remain, got %v", servers)
	}
}

func TestVictims_OldestServersFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	state.Active["srv-new"] = structs.ActiveServer{ID: "srv-new", Created: base.Add(time.Hour)}
	state.Active["srv-old"] = structs.ActiveServer{ID: "srv-old", Created: base}
	state.Active["srv-mid"] = structs.ActiveServer{ID: "srv-mid", Created: base.Add(30 * time.Minute)}

	_, servers := selectVictims(state, 2, nil)

	if len(servers) != 2 {
		t.Fatalf("expected 2 server victims, got %v", len(servers))
	}
	if servers[0].ID != "srv-old" || servers[1].ID != "srv-mid" {
		t.Fatalf("expected [srv-old srv-mid], got [%v %v]", servers[0].ID, servers[1].ID)
	}
}

func TestVictims_TieBrokenByID(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	state.Active["srv-b"] = structs.ActiveServer{ID: "srv-b", Created: created}
	state.Active["srv-a"] = structs.ActiveServer{ID: "srv-a", Created: created}

	_, servers := selectVictims(state, 1, nil)
	if len(servers) != 1 || servers[0].ID != "srv-a" {
		t.Fatalf("expected deterministic victim srv-a, got %v", servers)
	}
}

func TestVictims_ExcludedServersSkipped(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	state.Active["srv-old"] = structs.ActiveServer{ID: "srv-old", Created: base}
	state.Active["srv-new"] = structs.ActiveServer{ID: "srv-new", Created: base.Add(time.Hour)}

	excluded := map[string]bool{"srv-old": true}

	_, servers := selectVictims(state, 1, excluded)
	if len(servers) != 1 || servers[0].ID != "srv-new" {
		t.Fatalf("expected srv-new after exclusion, got %v", servers)
	}
}

func TestVictims_CountBeyondPopulation(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	state.Pending["job-a"] = base
	state.Active["srv-1"] = structs.ActiveServer{ID: "srv-1", Created: base}

	pending, servers := selectVictims(state, 10, nil)
	if len(pending) != 1 || len(servers) != 1 {
		t.Fatalf("expected every member selected, got %v pending %v servers",
			len(pending), len(servers))
	}
}

func TestVictims_ZeroCount(t *testing.T) {
	state := structs.NewGroupState()
	state.Pending["job-a"] = time.Now()

	pending, servers := selectVictims(state, 0, nil)
	if pending != nil || servers != nil {
		t.Fatalf("expected no victims for zero count, got %v %v", pending, servers)
	}
}
