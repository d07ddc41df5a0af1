package etl

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"etlbranching/internal/dbclient"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes records into a target system.
//
// Pattern: Singer target protocol.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing rows, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Destination writes records to a target system.
type Destination interface {
	Write(ctx context.Context, targetID string, schema *Schema, records []Record, mode SyncMode) (int, error)
}

// ── CSV File Destination ───────────────────────────────────
// Writes the staging file: header row plus data rows, no index column.
// targetID is the file path.

// CSVFileWriter implements Destination for local CSV files.
type CSVFileWriter struct{}

func (w *CSVFileWriter) Write(ctx context.Context, path string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}

	if mode == SyncAppend {
		if _, err := os.Stat(path); err == nil {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return 0, err
			}
			n, err := writeCSVRows(ctx, f, schema, records, false)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			return n, err
		} else if !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}

	// Replace: write beside the target, then rename over it so a reader
	// never sees a half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := writeCSVRows(ctx, tmp, schema, records, true)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("install staging file: %w", err)
	}
	return n, nil
}

func writeCSVRows(ctx context.Context, f *os.File, schema *Schema, records []Record, header bool) (int, error) {
	cw := csv.NewWriter(f)
	names := schema.FieldNames()
	if header {
		if err := cw.Write(names); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	written := 0
	line := make([]string, len(names))
	for i, rec := range records {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		for j, name := range names {
			line[j] = rawCell(rec.Data[name])
		}
		if err := cw.Write(line); err != nil {
			return written, fmt.Errorf("write row %d: %w", i, err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flush csv: %w", err)
	}
	return written, nil
}

// ── Table Destination ──────────────────────────────────────
// Writes records into a relational (or document) store table through a
// dbclient.Loader. targetID is the table name. Column types are inferred
// from the records.

// TableWriter implements Destination over a dbclient.Loader.
type TableWriter struct {
	Loader dbclient.Loader
}

func (w *TableWriter) Write(ctx context.Context, table string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return 0, fmt.Errorf("table %s: empty schema", table)
	}
	cols := InferColumns(schema, records)
	rows := ToRows(cols, records)

	if mode == SyncAppend {
		return w.Loader.AppendTable(ctx, table, cols, rows)
	}
	return w.Loader.ReplaceTable(ctx, table, cols, rows)
}

// rawCell keeps string cells byte-for-byte and renders other values as text.
func rawCell(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	s, _ := cellString(v)
	return s
}
