package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestJobParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  JobParams
		wantErr bool
		mode    JobMode
	}{
		{name: "all", params: JobParams{All: true}, mode: JobModeAll},
		{name: "all wins over year", params: JobParams{All: true, Year: 2024}, mode: JobModeAll},
		{name: "year", params: JobParams{Year: 2024}, mode: JobModeByYear},
		{name: "year and contract", params: JobParams{Year: 2024, ContractNumber: " 531 "}, mode: JobModeContract},
		{name: "contract without year", params: JobParams{ContractNumber: "531"}, wantErr: true},
		{name: "empty", params: JobParams{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if got := tc.params.Mode(); got != tc.mode {
				t.Fatalf("Mode() = %q, want %q", got, tc.mode)
			}
		})
	}
}

func TestJobParamsNormalized(t *testing.T) {
	got := JobParams{Year: 2023, ContractNumber: " 572 "}.Normalized()
	if got.ContractNumber != "572" || got.Year != 2023 || got.All {
		t.Fatalf("Normalized() = %#v", got)
	}
	got = JobParams{All: true, Year: 2023, ContractNumber: "572"}.Normalized()
	if got != (JobParams{All: true}) {
		t.Fatalf("Normalized() = %#v, want all only", got)
	}
}

func TestJobStateJSON(t *testing.T) {
	raw, err := json.Marshal(JobStateRunning)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"en_proceso"` {
		t.Fatalf("marshal = %s, want \"en_proceso\"", raw)
	}

	for input, want := range map[string]JobState{
		`"completado"`: JobStateCompleted,
		`"error"`:      JobStateFailed,
		`"cancelado"`:  JobStateCancelled,
		`"pendiente"`:  JobStatePending,
		`"cancelled"`:  JobStateCancelled,
		`"RUNNING"`:    JobStateRunning,
	} {
		var got JobState
		if err := json.Unmarshal([]byte(input), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", input, err)
		}
		if got != want {
			t.Fatalf("unmarshal %s = %q, want %q", input, got, want)
		}
	}

	var bad JobState
	if err := json.Unmarshal([]byte(`"paused"`), &bad); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestJobStateTerminal(t *testing.T) {
	for state, want := range map[JobState]bool{
		JobStatePending:   false,
		JobStateRunning:   false,
		JobStateCompleted: true,
		JobStateFailed:    true,
		JobStateCancelled: true,
	} {
		if got := state.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestSettleContracts(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want int
	}{
		{"completed counts every contract", Job{State: JobStateCompleted, ContractsTotal: 50, ContractsProcessed: 49}, 50},
		{"failed drops the one in progress", Job{State: JobStateFailed, ContractsTotal: 50, ContractsProcessed: 4}, 3},
		{"cancelled drops the one in progress", Job{State: JobStateCancelled, ContractsTotal: 50, ContractsProcessed: 1}, 0},
		{"nothing started", Job{State: JobStateFailed, ContractsTotal: 50}, 0},
		{"completed without totals", Job{State: JobStateCompleted}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			job.SettleContracts()
			if job.ContractsProcessed != tt.want {
				t.Fatalf("ContractsProcessed = %d, want %d", job.ContractsProcessed, tt.want)
			}
		})
	}
}
