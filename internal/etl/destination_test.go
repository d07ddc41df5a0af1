package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCSVFileWriter_ReplaceAndAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "walmart.csv")
	schema := &Schema{Fields: []Field{{Name: "a"}, {Name: "b"}}}
	w := &CSVFileWriter{}

	n, err := w.Write(ctx, path, schema, []Record{{Data: map[string]any{"a": "1", "b": "x,y"}}}, SyncReplace)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
	if _, err := w.Write(ctx, path, schema, []Record{{Data: map[string]any{"a": "2"}}}, SyncAppend); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "a,b\n1,\"x,y\"\n2,\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}

	if _, err := w.Write(ctx, path, schema, nil, SyncReplace); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "a,b\n" {
		t.Errorf("replace should overwrite, got %q", data)
	}
}
