package llmcall

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/stdcheck/internal/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS llm_calls (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	report_id     TEXT NOT NULL DEFAULT '',
	page          INTEGER NOT NULL DEFAULT 0,
	operation     TEXT NOT NULL,
	attempt       INTEGER NOT NULL DEFAULT 1,
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	response      TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
)`

const indexReport = `CREATE INDEX IF NOT EXISTS idx_llm_calls_report ON llm_calls(report_id, timestamp)`

const columns = `id, timestamp, latency_ms, report_id, page, operation, attempt,
	provider, model, input_tokens, output_tokens, response, success, error`

// Store provides access to call records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the table if needed and returns a store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.Migrate(ctx, db, schema, indexReport); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	ReportID  string
	Operation string
	Success   *bool
	After     *time.Time
	Limit     int
	Offset    int
}

// Insert writes one call.
func (s *Store) Insert(ctx context.Context, c *Call) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO llm_calls (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, storage.FormatTime(c.Timestamp), c.LatencyMs, c.ReportID, c.Page,
		c.Operation, c.Attempt, c.Provider, c.Model, c.InputTokens, c.OutputTokens,
		c.Response, c.Success, c.Error)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// Get retrieves a single call by ID. Returns nil, nil when not found.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM llm_calls WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	calls, err := scanCalls(rows)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, nil
	}
	return &calls[0], nil
}

// List retrieves calls matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var conditions []string
	var args []any

	if filter.ReportID != "" {
		conditions = append(conditions, "report_id = ?")
		args = append(args, filter.ReportID)
	}
	if filter.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, filter.Operation)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}
	if filter.After != nil {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, storage.FormatTime(*filter.After))
	}

	query := `SELECT ` + columns + ` FROM llm_calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp ASC, attempt ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanCalls(rows)
}

func scanCalls(rows *sql.Rows) ([]Call, error) {
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var ts string
		if err := rows.Scan(&c.ID, &ts, &c.LatencyMs, &c.ReportID, &c.Page, &c.Operation,
			&c.Attempt, &c.Provider, &c.Model, &c.InputTokens, &c.OutputTokens,
			&c.Response, &c.Success, &c.Error); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		c.Timestamp = storage.ParseTime(ts)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
