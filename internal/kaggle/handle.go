package kaggle

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Handle identifies a dataset on the host: owner/slug[/versions/N].
// Version 0 means latest.
type Handle struct {
	Owner   string
	Slug    string
	Version int
}

// ParseHandle parses "owner/slug" or "owner/slug/versions/N".
func ParseHandle(s string) (Handle, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	switch len(parts) {
	case 2:
	case 4:
		if parts[2] != "versions" {
			return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
		}
	default:
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}

	h := Handle{Owner: parts[0], Slug: parts[1]}
	if h.Owner == "" || h.Slug == "" || strings.ContainsAny(s, `\`) || h.Owner == ".." || h.Slug == ".." {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	if len(parts) == 4 {
		v, err := strconv.Atoi(parts[3])
		if err != nil || v <= 0 {
			return Handle{}, fmt.Errorf("%w: bad version in %q", ErrInvalidHandle, s)
		}
		h.Version = v
	}
	return h, nil
}

func (h Handle) String() string {
	if h.Version > 0 {
		return fmt.Sprintf("%s/%s/versions/%d", h.Owner, h.Slug, h.Version)
	}
	return h.Owner + "/" + h.Slug
}

// cachePath is the local directory a handle is extracted into. Latest and
// pinned versions live in sibling leaves so refreshing one keeps the others.
func (h Handle) cachePath(root string) string {
	p := filepath.Join(root, "datasets", h.Owner, h.Slug)
	if h.Version > 0 {
		return filepath.Join(p, "versions", strconv.Itoa(h.Version))
	}
	return filepath.Join(p, "latest")
}
