package client

import (
	"encoding/json"
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"
	consul "github.com/hashicorp/consul/api"

	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// jobKey builds the KV path of one job record.
func (c *consulClient) jobKey(jobID string) string {
	return c.keyRoot + "/jobs/" + jobID
}

// WriteJob performs a check-and-set write of a job record against the
// version it was read at. A record at version zero is created only if it
// does not already exist, which is how a dispatching supervisor claims a
// fresh job ID. The record's modify index is refreshed on success so the
// caller can continue writing.
func (c *consulClient) WriteJob(job *structs.Job) (bool, error) {
	defer metrics.MeasureSince([]string{"consul", "write_job"}, time.Now())

	job.Touched = time.Now().UTC()

	value, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("client/jobs: an error occurred when "+
			"attempting to serialize job %v for persistent storage: %v",
			job.ID, err)
	}

	pair := &consul.KVPair{
		Key:         c.jobKey(job.ID),
		Value:       value,
		ModifyIndex: job.Version,
	}

	ok, _, err := c.consul.KV().CAS(pair, nil)
	if err != nil {
		return false, fmt.Errorf("client/jobs: an error occurred when "+
			"attempting to write job %v: %v", job.ID, err)
	}

	if ok {
		// Re-read to learn the new modify index for subsequent writes.
		refreshed, _, err := c.consul.KV().Get(c.jobKey(job.ID), nil)
		if err == nil && refreshed != nil {
			job.Version = refreshed.ModifyIndex
		}
	}

	return ok, nil
}

// ReadJob reads a job record, returning nil when the record has been
// removed on terminal completion.
func (c *consulClient) ReadJob(jobID string) (*structs.Job, error) {
	pair, _, err := c.consul.KV().Get(c.jobKey(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("client/jobs: an error occurred while "+
			"attempting to read job %v: %v", jobID, err)
	}
	if pair == nil {
		return nil, nil
	}

	job := &structs.Job{}
	if err := json.Unmarshal(pair.Value, job); err != nil {
		return nil, fmt.Errorf("client/jobs: an error occurred while "+
			"attempting to deserialize job %v: %v", jobID, err)
	}
	job.Version = pair.ModifyIndex

	return job, nil
}

// ListJobs enumerates every in-flight job record. Records which fail to
// deserialize are logged and skipped rather than failing the sweep.
func (c *consulClient) ListJobs() ([]*structs.Job, error) {
	pairs, _, err := c.consul.KV().List(c.keyRoot+"/jobs/", nil)
	if err != nil {
		return nil, fmt.Errorf("client/jobs: an error occurred while "+
			"attempting to list job records: %v", err)
	}

	var jobs []*structs.Job
	for _, pair := range pairs {
		job := &structs.Job{}
		if err := json.Unmarshal(pair.Value, job); err != nil {
			logging.Error("client/jobs: unable to deserialize job record at "+
				"%v: %v", pair.Key, err)
			continue
		}
		job.Version = pair.ModifyIndex
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// DeleteJob removes a job record on terminal completion.
func (c *consulClient) DeleteJob(jobID string) error {
	_, err := c.consul.KV().Delete(c.jobKey(jobID), nil)
	if err != nil {
		return fmt.Errorf("client/jobs: an error occurred while attempting "+
			"to delete job %v: %v", jobID, err)
	}
	return nil
}
