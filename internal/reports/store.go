package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/stdcheck/internal/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS reports (
	id             TEXT PRIMARY KEY,
	filename       TEXT NOT NULL,
	sha256         TEXT NOT NULL,
	size_bytes     INTEGER NOT NULL DEFAULT 0,
	upload_path    TEXT NOT NULL DEFAULT '',
	instruction    TEXT NOT NULL DEFAULT '',
	pages          INTEGER NOT NULL DEFAULT 0,
	page_outcomes  TEXT NOT NULL DEFAULT '[]',
	selected_page  INTEGER NOT NULL DEFAULT 0,
	raw_text       TEXT NOT NULL DEFAULT '',
	record         TEXT NOT NULL DEFAULT '',
	extract_method TEXT NOT NULL DEFAULT '',
	schema_issues  TEXT NOT NULL DEFAULT '[]',
	report_info    TEXT NOT NULL DEFAULT '',
	verdict        TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL DEFAULT '',
	checked_at     TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	message        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
)`

const indexCreated = `CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at)`

const columns = `id, filename, sha256, size_bytes, upload_path, instruction, pages,
	page_outcomes, selected_page, raw_text, record, extract_method, schema_issues,
	report_info, verdict, outcome, checked_at, status, message, created_at, updated_at`

// Store persists reports in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the table if needed and returns a store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.Migrate(ctx, db, schema, indexCreated); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	SHA256 string
	Limit  int
	Offset int
}

// Create inserts r, assigning an ID and timestamps when unset.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	args, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO reports (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Update overwrites the stored report with r.
func (s *Store) Update(ctx context.Context, r *Report) error {
	r.UpdatedAt = time.Now().UTC()
	args, err := encode(r)
	if err != nil {
		return err
	}
	// created_at is never rewritten; id moves to the WHERE clause.
	set := make([]any, 0, len(args)-1)
	set = append(set, args[1:len(args)-2]...)
	set = append(set, args[len(args)-1], args[0])

	res, err := s.db.ExecContext(ctx, `UPDATE reports SET
		filename = ?, sha256 = ?, size_bytes = ?, upload_path = ?, instruction = ?, pages = ?,
		page_outcomes = ?, selected_page = ?, raw_text = ?, record = ?, extract_method = ?,
		schema_issues = ?, report_info = ?, verdict = ?, outcome = ?, checked_at = ?,
		status = ?, message = ?, updated_at = ?
		WHERE id = ?`, set...)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the report with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM reports WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return &reports[0], nil
}

// List returns reports newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	query := `SELECT ` + columns + ` FROM reports WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.SHA256 != "" {
		query += " AND sha256 = ?"
		args = append(args, filter.SHA256)
	}
	query += " ORDER BY created_at DESC, id ASC"

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
	return scanReports(rows)
}

// Delete removes a report. Deleting a missing report returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// encode returns column values in the order of columns.
func encode(r *Report) ([]any, error) {
	outcomes, err := json.Marshal(nonNil(r.PageOutcomes))
	if err != nil {
		return nil, fmt.Errorf("encode page outcomes: %w", err)
	}
	issues, err := json.Marshal(nonNil(r.SchemaIssues))
	if err != nil {
		return nil, fmt.Errorf("encode schema issues: %w", err)
	}
	record := ""
	if r.Record != nil {
		data, err := json.Marshal(r.Record)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		record = string(data)
	}
	checkedAt := ""
	if r.CheckedAt != nil {
		checkedAt = storage.FormatTime(*r.CheckedAt)
	}

	return []any{
		r.ID, r.Filename, r.SHA256, r.SizeBytes, r.UploadPath, r.Instruction, r.Pages,
		string(outcomes), r.SelectedPage, r.RawText, record, r.ExtractMethod, string(issues),
		r.ReportInfo, r.Verdict, r.Outcome, checkedAt, string(r.Status), r.Message,
		storage.FormatTime(r.CreatedAt), storage.FormatTime(r.UpdatedAt),
	}, nil
}

func scanReports(rows *sql.Rows) ([]Report, error) {
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		var outcomes, record, issues, checkedAt, status, created, updated string
		if err := rows.Scan(&r.ID, &r.Filename, &r.SHA256, &r.SizeBytes, &r.UploadPath,
			&r.Instruction, &r.Pages, &outcomes, &r.SelectedPage, &r.RawText, &record,
			&r.ExtractMethod, &issues, &r.ReportInfo, &r.Verdict, &r.Outcome, &checkedAt,
			&status, &r.Message, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}

		if err := json.Unmarshal([]byte(outcomes), &r.PageOutcomes); err != nil {
			return nil, fmt.Errorf("decode page outcomes: %w", err)
		}
		if err := json.Unmarshal([]byte(issues), &r.SchemaIssues); err != nil {
			return nil, fmt.Errorf("decode schema issues: %w", err)
		}
		if record != "" {
			if err := json.Unmarshal([]byte(record), &r.Record); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
		}
		if checkedAt != "" {
			t := storage.ParseTime(checkedAt)
			r.CheckedAt = &t
		}
		r.Status = Status(status)
		r.CreatedAt = storage.ParseTime(created)
		r.UpdatedAt = storage.ParseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
