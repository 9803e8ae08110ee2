package models

import "sort"

type (
	// PRData contains information extracted from a Pull Request.
	PRData struct {
		ID          int
		Title       string
		Creator     string
		Diff        string
		BaseRef     string
		HeadRef     string
		HeadSHA     string
		Description string
	}

	// PostedComment is the comment created on the pull request.
	PostedComment struct {
		ID       int64
		URL      string
		Attempts int
	}
)

// ChangeSet is the set of file paths modified by a pull request.
// It is built once at the start of a run and never mutated afterwards.
type ChangeSet struct {
	files []string
	index map[string]struct{}
}

// NewChangeSet dedupes and sorts the given paths.
func NewChangeSet(paths []string) ChangeSet {
	index := make(map[string]struct{}, len(paths))
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := index[p]; ok {
			continue
		}
		index[p] = struct{}{}
		files = append(files, p)
	}
	sort.Strings(files)
	return ChangeSet{files: files, index: index}
}

// Files returns a copy of the changed paths, sorted.
func (c ChangeSet) Files() []string {
	out := make([]string, len(c.files))
	copy(out, c.files)
	return out
}

func (c ChangeSet) Contains(path string) bool {
	_, ok := c.index[path]
	return ok
}

func (c ChangeSet) Len() int {
	return len(c.files)
}
