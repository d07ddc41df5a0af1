package secret

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// EnvStore reads credentials from KAGGLE_USERNAME and KAGGLE_KEY.
type EnvStore struct {
	Getenv func(string) string // nil means os.Getenv
}

// NewEnvStore creates an EnvStore over the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{Getenv: os.Getenv}
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	var v string
	switch key {
	case KeyKaggleUsername:
		v = getenv("KAGGLE_USERNAME")
	case KeyKaggleKey:
		v = getenv("KAGGLE_KEY")
	}
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

// KaggleFileStore reads the kaggle.json credentials file:
//
//	{"username": "...", "key": "..."}
type KaggleFileStore struct {
	Path string
}

// NewKaggleFileStore creates a KaggleFileStore for dir/kaggle.json.
func NewKaggleFileStore(dir string) *KaggleFileStore {
	return &KaggleFileStore{Path: filepath.Join(dir, "kaggle.json")}
}

func (f *KaggleFileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	var creds struct {
		Username string `json:"username"`
		Key      string `json:"key"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}

	switch key {
	case KeyKaggleUsername:
		if creds.Username != "" {
			return []byte(creds.Username), nil
		}
	case KeyKaggleKey:
		if creds.Key != "" {
			return []byte(creds.Key), nil
		}
	}
	return nil, nil
}
