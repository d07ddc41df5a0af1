package etl

import (
	"fmt"
	"strconv"
	"strings"

	"etlbranching/internal/dbclient"
)

// ── Type Inference ─────────────────────────────────────────
// A column is the narrowest type every non-empty cell parses as:
// INTEGER, then REAL, then BOOLEAN (true/false words), else TEXT.
// A column with no non-empty cells is TEXT.

// InferColumns derives typed columns for records, in schema order.
func InferColumns(schema *Schema, records []Record) []dbclient.Column {
	names := schema.FieldNames()
	cols := make([]dbclient.Column, len(names))
	for i, name := range names {
		cols[i] = dbclient.Column{Name: name, Type: inferColumn(name, records)}
	}
	return cols
}

func inferColumn(name string, records []Record) dbclient.ColumnType {
	isInt, isReal, isBool := true, true, true
	seen := false
	for _, rec := range records {
		s, ok := cellString(rec.Data[name])
		if !ok {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isReal {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isReal = false
			}
		}
		if isBool {
			if _, ok := parseBoolWord(s); !ok {
				isBool = false
			}
		}
		if !isInt && !isReal && !isBool {
			return dbclient.ColumnText
		}
	}
	switch {
	case !seen:
		return dbclient.ColumnText
	case isInt:
		return dbclient.ColumnInteger
	case isReal:
		return dbclient.ColumnReal
	case isBool:
		return dbclient.ColumnBoolean
	}
	return dbclient.ColumnText
}

// ToRows converts records into typed row values, one slice per record in
// cols order. Empty cells become nil.
func ToRows(cols []dbclient.Column, records []Record) [][]any {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = convertCell(c.Type, rec.Data[c.Name])
		}
		rows[i] = row
	}
	return rows
}

func convertCell(t dbclient.ColumnType, v any) any {
	s, ok := cellString(v)
	if !ok {
		return nil
	}
	switch t {
	case dbclient.ColumnInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case dbclient.ColumnReal:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case dbclient.ColumnBoolean:
		if b, ok := parseBoolWord(s); ok {
			return b
		}
	}
	return s
}

// cellString renders a cell as trimmed text; ok is false for empty cells.
func cellString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	case bool:
		s = strconv.FormatBool(val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
