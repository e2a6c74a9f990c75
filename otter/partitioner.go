package otter

import (
	"hash/fnv"
	"sync"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// Partitioner assigns scaling groups to worker processes. Every worker
// computes the same deterministic assignment from the sorted live
// membership set, so the workers converge on ownership without pairwise
// communication. During a rebalance two workers may transiently believe
// they own the same group; the distributed group lock is the correctness
// backstop for that window, not the assignment itself.
type Partitioner struct {
	workerID string

	lock    sync.RWMutex
	members []string
}

// NewPartitioner sets up a Partitioner for the given worker identity. The
// membership set is empty until the first update arrives from the
// coordination watch, during which the worker owns nothing.
func NewPartitioner(workerID string) *Partitioner {
	return &Partitioner{workerID: workerID}
}

// UpdateMembership replaces the live worker set and reports whether the
// assignment changed. The caller provides the set pre-sorted, as emitted by
// the membership watch.
func (p *Partitioner) UpdateMembership(members []string) (changed bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if len(members) != len(p.members) {
		changed = true
	} else {
		for i := range members {
			if members[i] != p.members[i] {
				changed = true
				break
			}
		}
	}

	if changed {
		logging.Info("core/partitioner: worker membership changed, %v live "+
			"workers, ownership will be recomputed", len(members))
		p.members = append([]string(nil), members...)
	}

	return changed
}

// OwnsGroup reports whether this worker currently owns the given group. A
// worker that has lost ownership must stop issuing new triggers for the
// group, though jobs it already dispatched run to completion since jobs are
// owned by groups, not workers.
func (p *Partitioner) OwnsGroup(id structs.GroupID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if len(p.members) == 0 {
		return false
	}

	h := fnv.New32a()
	h.Write([]byte(id.Key()))
	owner := p.members[h.Sum32()%uint32(len(p.members))]

	return owner == p.workerID
}

// OwnedGroups filters the full group set down to the groups assigned to
// this worker.
func (p *Partitioner) OwnedGroups(all []structs.GroupID) []structs.GroupID {
	var owned []structs.GroupID
	for _, id := range all {
		if p.OwnsGroup(id) {
			owned = append(owned, id)
		}
	}
	return owned
}

// Workers returns the current live membership set.
func (p *Partitioner) Workers() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return append([]string(nil), p.members...)
}
