package etl

import (
	"context"
	"fmt"
	"time"

	"etlbranching/internal/dbclient"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Discover → source.Read → destination.Write.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// SyncJob holds the configuration for a single ETL sync.
type SyncJob struct {
	ID         string       `json:"id"`
	SourceType string       `json:"sourceType"`
	SourceCfg  SourceConfig `json:"sourceConfig"`
	Target     string       `json:"target"` // file path or table name, per destination
	SyncMode   SyncMode     `json:"syncMode"`
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────
// The Engine orchestrates sync execution.

// Engine runs sync jobs using the registered sources and a destination.
type Engine struct {
	Dest Destination
}

// RunSync executes a sync job end-to-end. The records of one job are
// collected before writing, so a failed read never touches the target.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{JobID: job.ID}
	fail := func(err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Resolve source from registry.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail(err)
	}
	if job.SourceCfg == nil {
		job.SourceCfg = SourceConfig{}
	}
	if err := ApplyConfigDefaults(source.Spec(), job.SourceCfg); err != nil {
		return fail(err)
	}

	// 2. Discover schema (column order and names).
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}

	// 3. Read records from source.
	recCh, errCh := source.Read(ctx, job.SourceCfg)
	var records []Record
	for rec := range recCh {
		result.RowsRead++
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// 4. Write to destination.
	mode := job.SyncMode
	if mode == "" {
		mode = SyncReplace
	}
	written, err := e.Dest.Write(ctx, job.Target, schema, records, mode)
	if err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows
// records. maxRows <= 0 means dbclient.DefaultPreviewRows.
func Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	if maxRows <= 0 {
		maxRows = dbclient.DefaultPreviewRows
	}
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		cfg = SourceConfig{}
	}
	if err := ApplyConfigDefaults(source.Spec(), cfg); err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}

	// Stop the reader and drain what it already queued.
	cancel()
	for range recCh {
	}
	if err := <-errCh; err != nil && err != context.Canceled {
		return records, schema, err
	}
	return records, schema, nil
}
