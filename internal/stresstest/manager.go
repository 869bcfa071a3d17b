package stresstest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/loadhook/internal/migrations"
)

// Manager handles run ledger persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the ledger database at dbPath and migrates it
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases intact
	db.SetMaxOpenConns(1)

	m := &Manager{db: db}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

const runColumns = `id, uuid, url, COALESCE(hooks, ''), goroutines, COALESCE(config_yaml, ''), started_at, completed_at, status,
	total_iterations, total_success, total_status_errors, total_transport_errors, total_hook_errors, total_bytes,
	COALESCE(avg_duration_ms, 0), COALESCE(min_duration_ms, 0), COALESCE(max_duration_ms, 0)`

// CreateRun creates a new run record
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO loadhook_runs
		(uuid, url, hooks, goroutines, config_yaml, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.UUID, run.URL, run.Hooks, run.Goroutines, run.ConfigYAML, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun updates a run record with its final figures
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE loadhook_runs
		SET completed_at = ?, status = ?, total_iterations = ?, total_success = ?,
		    total_status_errors = ?, total_transport_errors = ?, total_hook_errors = ?, total_bytes = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalIterations, run.TotalSuccess,
		run.TotalStatusErrors, run.TotalTransportErrors, run.TotalHookErrors, run.TotalBytes,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs, run.ID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.UUID, &run.URL, &run.Hooks, &run.Goroutines, &run.ConfigYAML,
		&run.StartedAt, &completedAt, &run.Status, &run.TotalIterations, &run.TotalSuccess,
		&run.TotalStatusErrors, &run.TotalTransportErrors, &run.TotalHookErrors, &run.TotalBytes,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	return scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM loadhook_runs WHERE id = ?`, id))
}

// GetRunByUUID retrieves a run by its UUID
func (m *Manager) GetRunByUUID(uuid string) (*Run, error) {
	return scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM loadhook_runs WHERE uuid = ?`, uuid))
}

// ListRuns returns the most recent runs first
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM loadhook_runs ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its iterations
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM loadhook_iterations WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete iterations: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM loadhook_runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

// SaveIterationsBatch saves multiple iterations in a single transaction
func (m *Manager) SaveIterationsBatch(iterations []*Iteration) error {
	if len(iterations) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO loadhook_iterations
		(run_id, worker, iteration, timestamp, elapsed_ms, method, url, status_code, outcome, phase,
		 error_message, duration_ms, request_size, response_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, it := range iterations {
		_, err := stmt.Exec(it.RunID, it.Worker, it.Index, it.Timestamp, it.ElapsedMs, it.Method, it.URL,
			it.StatusCode, string(it.Outcome), it.Phase, it.ErrorMessage, it.DurationMs, it.RequestSize, it.ResponseSize)
		if err != nil {
			return fmt.Errorf("failed to insert iteration: %w", err)
		}
	}

	return tx.Commit()
}

// GetIterations retrieves all iterations of a run ordered by worker then index
func (m *Manager) GetIterations(runID int64) ([]*Iteration, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, worker, iteration, timestamp, elapsed_ms, COALESCE(method, ''), COALESCE(url, ''),
		       status_code, outcome, COALESCE(phase, ''), COALESCE(error_message, ''), duration_ms,
		       request_size, response_size
		FROM loadhook_iterations
		WHERE run_id = ?
		ORDER BY worker, iteration
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var iterations []*Iteration
	for rows.Next() {
		it := &Iteration{}
		var outcome string
		err := rows.Scan(&it.ID, &it.RunID, &it.Worker, &it.Index, &it.Timestamp, &it.ElapsedMs,
			&it.Method, &it.URL, &it.StatusCode, &outcome, &it.Phase, &it.ErrorMessage,
			&it.DurationMs, &it.RequestSize, &it.ResponseSize)
		if err != nil {
			return nil, err
		}
		it.Outcome = Outcome(outcome)
		iterations = append(iterations, it)
	}
	return iterations, rows.Err()
}
