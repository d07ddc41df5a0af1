package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"etlbranching/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file. Cells are kept as raw strings.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  etl.SourceCSVFile,
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Required: false, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	f, reader, err := openCSV(cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	headers, _, err := readHeader(reader, cfg)
	if err != nil {
		return nil, err
	}
	schema := &etl.Schema{Fields: make([]etl.Field, len(headers))}
	for i, h := range headers {
		schema.Fields[i] = etl.Field{Name: h, Type: "text"}
	}
	return schema, nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, reader, err := openCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer f.Close()

		headers, first, err := readHeader(reader, cfg)
		if err != nil {
			errCh <- err
			return
		}

		emit := func(row []string) bool {
			data := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					data[h] = row[j]
				} else {
					data[h] = ""
				}
			}
			select {
			case out <- etl.Record{Data: data}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if first != nil && !emit(first) {
			return
		}
		for {
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("parse csv: %w", err)
				return
			}
			if !emit(row) {
				return
			}
		}
	}()

	return out, errCh
}

func openCSV(cfg etl.SourceConfig) (*os.File, *csv.Reader, error) {
	filePath, _ := cfg["filePath"].(string)
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	reader := csv.NewReader(f)
	if delim, ok := cfg["delimiter"].(string); ok && len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	return f, reader, nil
}

// readHeader returns the column names. Without a header row the names are
// col_1, col_2, ... and the first data row is returned so it is not lost.
func readHeader(reader *csv.Reader, cfg etl.SourceConfig) ([]string, []string, error) {
	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}

	hasHeader := true
	if h, ok := cfg["hasHeader"].(string); ok {
		hasHeader = strings.ToLower(h) != "false"
	}
	if !hasHeader {
		headers := make([]string, len(first))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		return headers, first, nil
	}

	if len(first) > 0 {
		first[0] = strings.TrimPrefix(first[0], "\ufeff")
	}
	return uniqueHeaders(first), nil, nil
}

// uniqueHeaders names blank columns "Unnamed: i" and suffixes repeats
// with .1, .2, ... so every column survives the trip into a table.
func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for n := 1; taken[name]; n++ {
			name = h + "." + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
