package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobState enumerates the lifecycle of a processing run.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Wire names used by the deployed backend and its existing clients.
var jobStateWire = map[JobState]string{
	JobStatePending:   "pendiente",
	JobStateRunning:   "en_proceso",
	JobStateCompleted: "completado",
	JobStateFailed:    "error",
	JobStateCancelled: "cancelado",
}

// Terminal reports whether no further transition can leave the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Wire returns the state name as encoded on the HTTP API.
func (s JobState) Wire() string {
	if v, ok := jobStateWire[s]; ok {
		return v
	}
	return string(s)
}

// ParseJobState accepts both the wire names and the English names.
func ParseJobState(raw string) (JobState, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for state, wire := range jobStateWire {
		if value == wire || value == string(state) {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", raw)
}

func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Wire())
}

func (s *JobState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseJobState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JobMode is the contract selection a run was started with.
type JobMode string

const (
	JobModeAll      JobMode = "COMPLETO"
	JobModeByYear   JobMode = "POR_ANO"
	JobModeContract JobMode = "ESPECIFICO"
)

// JobParams is the submission payload. Exactly one selection applies:
// everything, one year, or one contract within a year.
type JobParams struct {
	All            bool   `json:"procesar_todo,omitempty"`
	Year           int    `json:"año,omitempty"`
	ContractNumber string `json:"numero_contrato,omitempty"`
}

// Validate rejects a selection with neither the "all" flag nor a year.
func (p JobParams) Validate() error {
	if p.All {
		return nil
	}
	if p.Year <= 0 {
		return fmt.Errorf("%w: select a year or process all contracts", ErrValidation)
	}
	return nil
}

// Mode resolves the selection. "All" wins over a year, mirroring the form.
func (p JobParams) Mode() JobMode {
	switch {
	case p.All:
		return JobModeAll
	case p.Year > 0 && strings.TrimSpace(p.ContractNumber) != "":
		return JobModeContract
	default:
		return JobModeByYear
	}
}

// Normalized drops fields that do not apply to the resolved mode.
func (p JobParams) Normalized() JobParams {
	switch p.Mode() {
	case JobModeAll:
		return JobParams{All: true}
	case JobModeContract:
		return JobParams{Year: p.Year, ContractNumber: strings.TrimSpace(p.ContractNumber)}
	default:
		return JobParams{Year: p.Year}
	}
}

// Job is one backend processing run.
type Job struct {
	ID             string   `json:"job_id"`
	State          JobState `json:"estado"`
	Progress       float64  `json:"progreso"`
	StatusMessage  string   `json:"mensaje"`
	Mode           JobMode  `json:"modo,omitempty"`
	Year           string   `json:"año"`
	ContractNumber string   `json:"numero_contrato"`
	ContractsTotal int      `json:"contratos_total"`
	// ContractsProcessed is the position of the contract in progress while
	// the job runs. SettleContracts turns it into a count of finished
	// contracts once the job stops.
	ContractsProcessed int        `json:"contratos_procesados"`
	CurrentContract    string     `json:"contrato_actual"`
	StartedAt          time.Time  `json:"inicio"`
	FinishedAt         *time.Time `json:"fin"`
	Artifacts          []string   `json:"archivos_generados"`
	Errors             []string   `json:"errores"`
	TotalLogs          int        `json:"total_logs"`
}

// SettleContracts fixes ContractsProcessed when the job stops. A completed
// job finished every contract; otherwise the one in progress did not finish.
func (j *Job) SettleContracts() {
	switch {
	case j.State == JobStateCompleted && j.ContractsTotal > 0:
		j.ContractsProcessed = j.ContractsTotal
	case j.ContractsProcessed > 0:
		j.ContractsProcessed--
	}
}

// LogCategory classifies a log line for presentation only.
type LogCategory string

const (
	LogInfo     LogCategory = "info"
	LogSuccess  LogCategory = "success"
	LogWarning  LogCategory = "warning"
	LogError    LogCategory = "error"
	LogFile     LogCategory = "file"
	LogDownload LogCategory = "download"
	LogProcess  LogCategory = "process"
	LogContract LogCategory = "contract"
)

// LogTimestampLayout is the display format of LogEntry.Timestamp.
const LogTimestampLayout = "15:04:05"

// LogEntry is one immutable line of execution narrative.
type LogEntry struct {
	Timestamp string      `json:"timestamp"`
	Category  LogCategory `json:"tipo"`
	Text      string      `json:"mensaje"`
}

// LogPage answers "logs since offset N" together with the job status.
type LogPage struct {
	Success            bool       `json:"success"`
	JobID              string     `json:"job_id"`
	State              JobState   `json:"estado"`
	Progress           float64    `json:"progreso"`
	StatusMessage      string     `json:"mensaje"`
	CurrentContract    string     `json:"contrato_actual"`
	TotalLogs          int        `json:"total_logs"`
	Logs               []LogEntry `json:"logs"`
	Artifacts          []string   `json:"archivos_generados"`
	ContractsProcessed int        `json:"contratos_procesados"`
	ContractsTotal     int        `json:"contratos_total"`
}

// SubmitResult is the backend's answer to a job submission.
type SubmitResult struct {
	Success bool    `json:"success"`
	JobID   string  `json:"job_id,omitempty"`
	Mode    JobMode `json:"modo,omitempty"`
	Message string  `json:"mensaje,omitempty"`
	Detail  string  `json:"detail,omitempty"`
	// EstimatedContracts counts the master rows matching the selection.
	EstimatedContracts int `json:"contratos_estimados,omitempty"`
}

// JobSummary is a history row.
type JobSummary struct {
	ID             string     `json:"job_id"`
	State          JobState   `json:"estado"`
	Mode           JobMode    `json:"modo"`
	Year           string     `json:"año"`
	ContractsTotal int        `json:"contratos_total"`
	StartedAt      time.Time  `json:"inicio"`
	FinishedAt     *time.Time `json:"fin"`
	ArtifactCount  int        `json:"archivos_generados"`
}

// Artifact describes one generated file of a job.
type Artifact struct {
	Name        string `json:"nombre"`
	Size        int64  `json:"tamaño"`
	DownloadURL string `json:"ruta_descarga"`
}

// Summary projects a job onto its history row.
func (j Job) Summary() JobSummary {
	return JobSummary{
		ID:             j.ID,
		State:          j.State,
		Mode:           j.Mode,
		Year:           j.Year,
		ContractsTotal: j.ContractsTotal,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		ArtifactCount:  len(j.Artifacts),
	}
}
