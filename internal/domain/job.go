package domain

import (
	"encoding/json"
	"time"
)

// Job names recorded in the job log. Each (name, external id) pair keeps only
// its most recent outcome.
const (
	JobFetchEntries = "fetch_entries"
	JobResolveImage = "resolve_image"
)

const (
	JobStatusOK  = "ok"
	JobStatusErr = "err"
)

type JobLog struct {
	ID         int64           `db:"id"`
	Name       string          `db:"name"`
	ExternalID string          `db:"external_id"`
	Status     string          `db:"status"`
	Payload    json.RawMessage `db:"payload"`
	CreatedAt  time.Time       `db:"created_at"`
}

// JobOutcome is the result of a single job attempt. Exactly one of Result and
// Error is meaningful, selected by Status.
type JobOutcome struct {
	Status string
	Result any
	Error  string
}

func OKOutcome(result any) JobOutcome {
	return JobOutcome{Status: JobStatusOK, Result: result}
}

func ErrOutcome(err string) JobOutcome {
	return JobOutcome{Status: JobStatusErr, Error: err}
}

// Payload encodes the outcome in the shape stored in the job log's payload
// column: {"type":"ok","result":...} or {"type":"err","error":...}.
func (o JobOutcome) Payload() (json.RawMessage, error) {
	if o.Status == JobStatusOK {
		return json.Marshal(map[string]any{"type": "ok", "result": o.Result})
	}
	return json.Marshal(map[string]any{"type": "err", "error": o.Error})
}

// RefreshStats holds statistics about one batch refresh run.
type RefreshStats struct {
	UserID    int64
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}
