package domain

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCatalog_Lookup(t *testing.T) {
	c := DefaultCatalog()

	spec, err := c.Lookup(DatasetWalmart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.File != "wmt_data.csv" {
		t.Errorf("expected wmt_data.csv, got %q", spec.File)
	}

	if _, err := c.Lookup("netflix"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestCatalog_Names(t *testing.T) {
	names := DefaultCatalog().Names()
	if len(names) != 2 || names[0] != DatasetInstagram || names[1] != DatasetWalmart {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestPaths(t *testing.T) {
	if got := StagingPath("data", DatasetWalmart); got != filepath.Join("data", "walmart.csv") {
		t.Errorf("staging path: %s", got)
	}
	if got := StorePath("data", DatasetInstagram); got != filepath.Join("data", "instagram.db") {
		t.Errorf("store path: %s", got)
	}
}

func TestRunParams_Dataset(t *testing.T) {
	tests := []struct {
		name   string
		params RunParams
		want   Dataset
	}{
		{"nil", nil, DatasetWalmart},
		{"empty", RunParams{}, DatasetWalmart},
		{"blank", RunParams{"dataset": ""}, DatasetWalmart},
		{"instagram", RunParams{"dataset": "instagram"}, DatasetInstagram},
		{"non-string", RunParams{"dataset": 42}, DatasetWalmart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.Dataset(); got != tt.want {
				t.Errorf("Dataset() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunParams_WithDefaults(t *testing.T) {
	in := RunParams{"dataset": "", "extra": 1}
	out := in.WithDefaults()
	if out["dataset"] != "walmart" {
		t.Errorf("expected default dataset, got %v", out["dataset"])
	}
	if out["extra"] != 1 {
		t.Errorf("expected extra param kept, got %v", out["extra"])
	}
	if in["dataset"] != "" {
		t.Error("WithDefaults must not mutate its receiver")
	}
}
