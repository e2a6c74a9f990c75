package client

import (
	"fmt"
	"sort"
	"time"

	metrics "github.com/armon/go-metrics"
	consul "github.com/hashicorp/consul/api"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// membershipWaitTime bounds the blocking queries used when watching the
// worker membership set and waiting on contended group locks.
const membershipWaitTime = 5 * time.Minute

// CreateSession creates a Consul session for use in group locking and
// ephemeral worker membership, and spawns the renewal keepalive to ensure
// the session is maintained for the lifetime of the daemon.
func (c *consulClient) CreateSession(ttl int, renewChan chan struct{}) (string, error) {
	entry := &consul.SessionEntry{
		Name:      "otter",
		Behavior:  consul.SessionBehaviorDelete,
		TTL:       fmt.Sprintf("%ds", ttl),
		LockDelay: 1 * time.Second,
	}

	session, _, err := c.consul.Session().Create(entry, nil)
	if err != nil {
		return "", err
	}

	// Renew in the background until the renew channel is closed, at which
	// point the session is destroyed so locks and membership entries clear
	// without waiting for the TTL.
	go func() {
		err := c.consul.Session().RenewPeriodic(entry.TTL, session, nil, renewChan)
		if err != nil {
			logging.Error("client/lock: session renewal for %v ended: %v",
				session, err)
		}
	}()

	logging.Debug("client/lock: obtained Consul session %v with TTL %v",
		session, entry.TTL)

	return session, nil
}

// DestroySession removes the session during a graceful shutdown.
func (c *consulClient) DestroySession(session string) error {
	_, err := c.consul.Session().Destroy(session, nil)
	return err
}

// lockKey builds the KV path of the distributed lock for a group.
func (c *consulClient) lockKey(id structs.GroupID) string {
	return c.keyRoot + "/locks/" + id.Key()
}

// AcquireLock attempts to acquire the distributed lock for a group using
// the provided session. If the lock is contended the call blocks on the
// lock key, retrying the acquire whenever the holder changes, until the
// wait window expires. It returns false when the lock could not be
// obtained inside the window; the caller is expected to drop the trigger
// and rely on the next sweep.
func (c *consulClient) AcquireLock(id structs.GroupID, session string, wait time.Duration) (bool, error) {
	defer metrics.MeasureSince([]string{"consul", "acquire_lock"}, time.Now())

	key := c.lockKey(id)
	kv := c.consul.KV()
	deadline := time.Now().Add(wait)

	for {
		acquired, _, err := kv.Acquire(&consul.KVPair{
			Key:     key,
			Session: session,
		}, nil)
		if err != nil {
			return false, fmt.Errorf("client/lock: an error occurred while "+
				"attempting to acquire the lock for group %v: %v", id, err)
		}

		if acquired {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		// Block on the lock key until the holder changes or the remaining
		// wait window runs out, then retry the acquire.
		pair, meta, err := kv.Get(key, &consul.QueryOptions{
			WaitTime: remaining,
		})
		if err != nil {
			return false, fmt.Errorf("client/lock: an error occurred while "+
				"waiting on the lock for group %v: %v", id, err)
		}

		if pair != nil && pair.Session != "" {
			_, _, err = kv.Get(key, &consul.QueryOptions{
				WaitIndex: meta.LastIndex,
				WaitTime:  remaining,
			})
			if err != nil {
				return false, fmt.Errorf("client/lock: an error occurred while "+
					"waiting on the lock for group %v: %v", id, err)
			}
		}
	}
}

// ReleaseLock releases a previously acquired group lock.
func (c *consulClient) ReleaseLock(id structs.GroupID, session string) error {
	released, _, err := c.consul.KV().Release(&consul.KVPair{
		Key:     c.lockKey(id),
		Session: session,
	}, nil)
	if err != nil {
		return fmt.Errorf("client/lock: an error occurred while attempting "+
			"to release the lock for group %v: %v", id, err)
	}

	if !released {
		logging.Warning("client/lock: the lock for group %v was not held by "+
			"session %v at release time", id, session)
	}

	return nil
}

// RegisterWorker publishes an ephemeral membership entry for this worker.
// The entry is acquired with the worker's session and the session behavior
// is delete, so the entry disappears when the worker dies or shuts down.
func (c *consulClient) RegisterWorker(workerID, session string) error {
	acquired, _, err := c.consul.KV().Acquire(&consul.KVPair{
		Key:     c.keyRoot + "/workers/" + workerID,
		Value:   []byte(workerID),
		Session: session,
	}, nil)
	if err != nil {
		return fmt.Errorf("client/lock: an error occurred while attempting "+
			"to register worker %v: %v", workerID, err)
	}

	if !acquired {
		return fmt.Errorf("client/lock: unable to register worker %v, the "+
			"membership entry is held by another session", workerID)
	}

	logging.Info("client/lock: registered worker %v in the membership set",
		workerID)

	return nil
}

// WatchWorkers runs a blocking query loop over the membership prefix and
// emits the sorted list of live worker identifiers every time the set
// changes. The loop runs until the stop channel is closed.
func (c *consulClient) WatchWorkers(updateCh chan []string, stopCh chan struct{}) {
	prefix := c.keyRoot + "/workers/"
	q := &consul.QueryOptions{WaitTime: membershipWaitTime}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		pairs, meta, err := c.consul.KV().List(prefix, q)
		if err != nil {
			logging.Error("client/lock: failed to read the worker membership "+
				"set from Consul: %v", err)

			// Sleep as we don't want to retry the API call as fast as Go
			// possibly can.
			time.Sleep(10 * time.Second)
			continue
		}

		if meta.LastIndex == q.WaitIndex {
			continue
		}
		q.WaitIndex = meta.LastIndex

		workers := make([]string, 0, len(pairs))
		for _, pair := range pairs {
			// Entries whose session has been invalidated are deleted by
			// Consul; anything still listed is live.
			workers = append(workers, string(pair.Value))
		}
		sort.Strings(workers)

		select {
		case updateCh <- workers:
		case <-stopCh:
			return
		}
	}
}
