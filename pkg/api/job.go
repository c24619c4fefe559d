package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const jobIDPrefix = "job_"

// Job is the parsed unit of work delivered by the host platform.
//
// The input payload is treated as opaque generation parameters except for
// the routing flag: openai_route selects the OpenAI-compatible backend
// instead of the raw engine.
type Job struct {
	// ID identifies the job. Assigned by the transport layer if the host
	// did not provide one.
	ID string

	// OpenAIRoute selects the Compat backend when true, the Base backend
	// otherwise.
	OpenAIRoute bool

	// Params holds the remaining generation parameters, passed through to
	// the backend untouched.
	Params map[string]any
}

// jobEnvelope is the wire form of a job submission:
//
//	{"id": "job_...", "input": {"openai_route": true, ...}}
//
// The id is optional; everything under input except openai_route is opaque.
type jobEnvelope struct {
	ID    string         `json:"id"`
	Input map[string]any `json:"input"`
}

// ParseJob decodes a job submission. The input object is required; an
// absent or non-boolean openai_route flag defaults to false.
func ParseJob(raw []byte) (*Job, error) {
	var env jobEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	if env.Input == nil {
		return nil, fmt.Errorf("parsing job: missing input object")
	}

	job := &Job{
		ID:     env.ID,
		Params: env.Input,
	}
	if job.ID == "" {
		job.ID = NewJobID()
	}
	if v, ok := env.Input["openai_route"].(bool); ok {
		job.OpenAIRoute = v
	}
	return job, nil
}

// NewJobID generates a new job ID with the "job_" prefix.
func NewJobID() string {
	return jobIDPrefix + uuid.NewString()
}
