package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// ErrUnknownDataset is returned when a dataset name has no catalog entry.
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset is the run-time selector for which dataset a run extracts and loads.
type Dataset string

const (
	DatasetWalmart   Dataset = "walmart"
	DatasetInstagram Dataset = "instagram"
)

// Branched reports whether the pipeline has a branch for d.
func (d Dataset) Branched() bool {
	return d == DatasetWalmart || d == DatasetInstagram
}

// DefaultDataset is used when a run is triggered without a dataset param.
const DefaultDataset = DatasetWalmart

// DatasetSpec describes where a dataset lives on the dataset host and which
// file inside the downloaded directory holds the records.
type DatasetSpec struct {
	Name   Dataset `json:"name" yaml:"name"`
	Handle string  `json:"handle" yaml:"handle"` // owner/slug[/versions/N]
	File   string  `json:"file" yaml:"file"`     // path relative to the download dir
}

// Catalog maps dataset names to their specs.
type Catalog map[Dataset]DatasetSpec

// DefaultCatalog returns the two datasets the pipeline branches between.
func DefaultCatalog() Catalog {
	return Catalog{
		DatasetWalmart: {
			Name:   DatasetWalmart,
			Handle: "umerhaddii/walmart-stock-data-2024",
			File:   "wmt_data.csv",
		},
		DatasetInstagram: {
			Name:   DatasetInstagram,
			Handle: "ankulsharma150/marketing-analytics-project",
			File:   "Instagram-Data.csv",
		},
	}
}

// Lookup returns the spec for name or ErrUnknownDataset.
func (c Catalog) Lookup(name Dataset) (DatasetSpec, error) {
	spec, ok := c[name]
	if !ok {
		return DatasetSpec{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return spec, nil
}

// Names returns the catalog entries sorted by name.
func (c Catalog) Names() []Dataset {
	names := make([]Dataset, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// StagingPath is the flat file extract writes and load reads.
func StagingPath(dataDir string, name Dataset) string {
	return filepath.Join(dataDir, string(name)+".csv")
}

// StorePath is the single-file relational store for a dataset.
func StorePath(dataDir string, name Dataset) string {
	return filepath.Join(dataDir, string(name)+".db")
}

// StoreFileName is the value load reports back, e.g. "walmart.db".
func StoreFileName(name Dataset) string {
	return string(name) + ".db"
}
