package git

import (
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/thomas-vilte/leanreview/internal/errors"
)

const devNull = "/dev/null"

// ParseChangedFiles returns the sorted, deduplicated paths touched by a
// unified diff. Deleted files are reported under their old name.
func ParseChangedFiles(unified string) ([]string, error) {
	if strings.TrimSpace(unified) == "" {
		return []string{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return nil, errors.ErrParseDiff.WithError(err)
	}

	seen := make(map[string]struct{}, len(fileDiffs))
	files := make([]string, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		path := cleanDiffPath(fd.NewName)
		if path == "" {
			path = cleanDiffPath(fd.OrigName)
		}
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}

// DiffStats counts added and removed lines per file.
type DiffStats struct {
	Files   int
	Added   int
	Removed int
}

// ParseStats summarises a unified diff.
func ParseStats(unified string) (DiffStats, error) {
	if strings.TrimSpace(unified) == "" {
		return DiffStats{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return DiffStats{}, errors.ErrParseDiff.WithError(err)
	}

	stats := DiffStats{Files: len(fileDiffs)}
	for _, fd := range fileDiffs {
		s := fd.Stat()
		stats.Added += int(s.Added + s.Changed)
		stats.Removed += int(s.Deleted + s.Changed)
	}
	return stats, nil
}

func cleanDiffPath(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == devNull {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
