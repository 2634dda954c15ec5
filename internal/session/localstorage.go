package session

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// The scan stops at the first control byte so leveldb framing does not
// leak into the value.
var localStorageRe = regexp.MustCompile(`antigravity[^\x00-\x1f\x7f]+`)

const maxLocalStorageMatch = 4096

// LocalStorageScan greps the raw leveldb files under each profile's
// "Local Storage" for an antigravity credential string. No leveldb parsing
// is attempted.
func LocalStorageScan(profileDirs []string) Source {
	return Source{
		Name: "local_storage",
		Extract: func(ctx context.Context) (*Session, error) {
			for _, dir := range profileDirs {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if m := scanLevelDB(filepath.Join(dir, "Local Storage", "leveldb")); m != "" {
					return &Session{Cookie: m}, nil
				}
			}
			return nil, nil
		},
	}
}

func scanLevelDB(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && (strings.HasSuffix(e.Name(), ".log") || strings.HasSuffix(e.Name(), ".ldb")) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if m := localStorageRe.Find(data); m != nil {
			if len(m) > maxLocalStorageMatch {
				m = m[:maxLocalStorageMatch]
			}
			return string(m)
		}
	}
	return ""
}
