package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"feedkeeper/internal/domain"
)

type JobLogStore struct {
	db *sqlx.DB
}

func NewJobLogStore(db *sqlx.DB) *JobLogStore {
	return &JobLogStore{db: db}
}

// FindRecent returns, for each external id that has one, its job log record
// created at or after now - notOlderThan. Ids without a recent record are
// absent from the result.
func (s *JobLogStore) FindRecent(ctx context.Context, name string, externalIDs []string, notOlderThan time.Duration) (map[string]domain.JobLog, error) {
	result := make(map[string]domain.JobLog)
	if len(externalIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, name, external_id, status, payload, created_at
		FROM job_log
		WHERE name = $1 AND external_id = ANY($2) AND created_at >= $3`

	cutoff := time.Now().Add(-notOlderThan)
	rows, err := s.db.QueryContext(ctx, query, name, pq.Array(externalIDs), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var jl domain.JobLog
		if err := rows.Scan(&jl.ID, &jl.Name, &jl.ExternalID, &jl.Status, &jl.Payload, &jl.CreatedAt); err != nil {
			return nil, err
		}
		result[jl.ExternalID] = jl
	}

	return result, rows.Err()
}

// Record upserts the single record for (name, externalID), replacing any prior
// outcome and resetting its creation time to now. The unique constraint on
// (name, external_id) keeps the log at one live row per job per subject;
// concurrent records for the same subject are last-write-wins.
func (s *JobLogStore) Record(ctx context.Context, name, externalID string, outcome domain.JobOutcome) error {
	payload, err := outcome.Payload()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_log (name, external_id, status, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name, external_id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at`

	_, err = s.db.ExecContext(ctx, query, name, externalID, outcome.Status, payload)
	return err
}
