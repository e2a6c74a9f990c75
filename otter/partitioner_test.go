package otter

import (
	"fmt"
	"testing"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

func TestPartitioner_EmptyMembershipOwnsNothing(t *testing.T) {
	p := NewPartitioner("worker-1")

	if p.OwnsGroup(structs.GroupID{Tenant: "t1", ID: "g1"}) {
		t.Fatal("expected no ownership before the first membership update")
	}
}

func TestPartitioner_SingleWorkerOwnsEverything(t *testing.T) {
	p := NewPartitioner("worker-1")
	p.UpdateMembership([]string{"worker-1"})

	for i := 0; i < 20; i++ {
		id := structs.GroupID{Tenant: "t1", ID: fmt.Sprintf("g%d", i)}
		if !p.OwnsGroup(id) {
			t.Fatalf("expected the sole worker to own group %v", id)
		}
	}
}

func TestPartitioner_AssignmentIsAPartition(t *testing.T) {
	members := []string{"worker-1", "worker-2", "worker-3"}

	partitioners := make([]*Partitioner, len(members))
	for i, m := range members {
		partitioners[i] = NewPartitioner(m)
		partitioners[i].UpdateMembership(members)
	}

	// Every group is owned by exactly one worker, and every worker
	// computes the same answer from the same membership set.
	for i := 0; i < 50; i++ {
		id := structs.GroupID{Tenant: "t1", ID: fmt.Sprintf("g%d", i)}

		owners := 0
		for _, p := range partitioners {
			if p.OwnsGroup(id) {
				owners++
			}
		}
		if owners != 1 {
			t.Fatalf("expected exactly one owner for group %v, got %v", id, owners)
		}
	}
}

func TestPartitioner_UpdateMembershipReportsChange(t *testing.T) {
	p := NewPartitioner("worker-1")

	if !p.UpdateMembership([]string{"worker-1", "worker-2"}) {
		t.Fatal("expected the first update to report a change")
	}
	if p.UpdateMembership([]string{"worker-1", "worker-2"}) {
		t.Fatal("expected an identical update to report no change")
	}
	if !p.UpdateMembership([]string{"worker-1"}) {
		t.Fatal("expected a departure to report a change")
	}
}

func TestPartitioner_OwnedGroupsFilters(t *testing.T) {
	members := []string{"worker-1", "worker-2"}

	p1 := NewPartitioner("worker-1")
	p1.UpdateMembership(members)
	p2 := NewPartitioner("worker-2")
	p2.UpdateMembership(members)

	var all []structs.GroupID
	for i := 0; i < 40; i++ {
		all = append(all, structs.GroupID{Tenant: "t1", ID: fmt.Sprintf("g%d", i)})
	}

	owned1 := p1.OwnedGroups(all)
	owned2 := p2.OwnedGroups(all)

	if len(owned1)+len(owned2) != len(all) {
		t.Fatalf("expected the split to cover all %v groups, got %v and %v",
			len(all), len(owned1), len(owned2))
	}
	if len(owned1) == 0 || len(owned2) == 0 {
		t.Fatalf("expected both workers to own a share, got %v and %v",
			len(owned1), len(owned2))
	}
}
