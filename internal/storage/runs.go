package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"etlbranching/internal/domain"
)

var ErrRunNotFound = errors.New("dag run not found")

// RunStore implements domain.RunStore on the metadata database.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ domain.RunStore = (*RunStore)(nil)

// ── DAG Runs ───────────────────────────────────────────────

func (s *RunStore) CreateRun(run *domain.DagRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.State == "" {
		run.State = domain.RunRunning
	}
	params, _ := json.Marshal(run.Params)

	_, err := s.db.conn.Exec(
		`INSERT INTO dag_runs (id, dag_id, params_json, trigger_type, state, started_at, error, dataset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DagID, string(params), run.Trigger, run.State, run.StartedAt, run.Error,
		string(run.Params.Dataset()),
	)
	return err
}

func (s *RunStore) FinishRun(id string, state domain.RunState, errMsg string) error {
	res, err := s.db.conn.Exec(
		`UPDATE dag_runs SET state=?, finished_at=?, error=? WHERE id=?`,
		state, time.Now(), errMsg, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `id, dag_id, params_json, trigger_type, state, started_at, finished_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.DagRun, error) {
	var run domain.DagRun
	var params string
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &run.DagID, &params, &run.Trigger, &run.State, &run.StartedAt, &finished, &run.Error); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(params), &run.Params)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

func (s *RunStore) GetRun(id string) (*domain.DagRun, error) {
	run, err := scanRun(s.db.conn.QueryRow(`SELECT `+runColumns+` FROM dag_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means 20.
func (s *RunStore) ListRuns(limit int) ([]domain.DagRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT `+runColumns+` FROM dag_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.DagRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ── Task Instances ─────────────────────────────────────────

func (s *RunStore) UpsertTaskInstance(ti *domain.TaskInstance) error {
	_, err := s.db.conn.Exec(
		`INSERT INTO task_instances (run_id, task_id, state, try_number, started_at, finished_at, result, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, task_id) DO UPDATE SET
		   state=excluded.state,
		   try_number=excluded.try_number,
		   started_at=COALESCE(excluded.started_at, task_instances.started_at),
		   finished_at=excluded.finished_at,
		   result=excluded.result,
		   error=excluded.error`,
		ti.RunID, ti.TaskID, ti.State, ti.TryNumber, nullTime(ti.StartedAt), nullTime(ti.FinishedAt), ti.Result, ti.Error,
	)
	return err
}

func (s *RunStore) ListTaskInstances(runID string) ([]domain.TaskInstance, error) {
	rows, err := s.db.conn.Query(
		`SELECT run_id, task_id, state, try_number, started_at, finished_at, result, error
		 FROM task_instances WHERE run_id = ? ORDER BY rowid ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tis := []domain.TaskInstance{}
	for rows.Next() {
		var ti domain.TaskInstance
		var started, finished sql.NullTime
		if err := rows.Scan(&ti.RunID, &ti.TaskID, &ti.State, &ti.TryNumber, &started, &finished, &ti.Result, &ti.Error); err != nil {
			return nil, err
		}
		ti.StartedAt = started.Time
		ti.FinishedAt = finished.Time
		tis = append(tis, ti)
	}
	return tis, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
