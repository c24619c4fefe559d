package api

import (
	"strings"
	"testing"
)

func TestParseJob_RoutingFlag(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantRoute bool
	}{
		{
			name:      "openai route true",
			raw:       `{"id":"job_1","input":{"openai_route":true,"prompt":"hi"}}`,
			wantRoute: true,
		},
		{
			name:      "openai route false",
			raw:       `{"id":"job_2","input":{"openai_route":false}}`,
			wantRoute: false,
		},
		{
			name:      "flag absent defaults to base",
			raw:       `{"id":"job_3","input":{"prompt":"hi"}}`,
			wantRoute: false,
		},
		{
			name:      "non-boolean flag ignored",
			raw:       `{"id":"job_4","input":{"openai_route":"yes"}}`,
			wantRoute: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := ParseJob([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseJob() error = %v", err)
			}
			if job.OpenAIRoute != tt.wantRoute {
				t.Errorf("OpenAIRoute = %v, want %v", job.OpenAIRoute, tt.wantRoute)
			}
		})
	}
}

func TestParseJob_ParamsPassedThrough(t *testing.T) {
	job, err := ParseJob([]byte(`{"id":"job_5","input":{"openai_route":true,"max_tokens":128,"model":"m"}}`))
	if err != nil {
		t.Fatalf("ParseJob() error = %v", err)
	}
	if job.Params["model"] != "m" {
		t.Errorf("Params[model] = %v, want m", job.Params["model"])
	}
	if job.Params["max_tokens"] != float64(128) {
		t.Errorf("Params[max_tokens] = %v, want 128", job.Params["max_tokens"])
	}
}

func TestParseJob_MissingInput(t *testing.T) {
	if _, err := ParseJob([]byte(`{"id":"job_6"}`)); err == nil {
		t.Fatal("ParseJob() expected error for missing input")
	}
}

func TestParseJob_InvalidJSON(t *testing.T) {
	if _, err := ParseJob([]byte(`{not json`)); err == nil {
		t.Fatal("ParseJob() expected error for invalid JSON")
	}
}

func TestParseJob_AssignsID(t *testing.T) {
	job, err := ParseJob([]byte(`{"input":{}}`))
	if err != nil {
		t.Fatalf("ParseJob() error = %v", err)
	}
	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("ID = %q, want job_ prefix", job.ID)
	}
}

func TestErrorBatch_Shape(t *testing.T) {
	b := ErrorBatch(errFake("boom"))
	inner, ok := b["error"].(map[string]any)
	if !ok {
		t.Fatalf("error field missing or wrong type: %#v", b)
	}
	if inner["message"] != "boom" {
		t.Errorf("message = %v, want boom", inner["message"])
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
