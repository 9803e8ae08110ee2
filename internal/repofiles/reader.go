// Package repofiles reads repository files named by the operator, or by the
// impact set, for inclusion in the review prompt.
package repofiles

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
)

var skipDirs = map[string]struct{}{
	".git":  {},
	".lake": {},
}

type Reader struct {
	// Root is the repository root paths are resolved against.
	Root string
	// MaxFileBytes truncates each file, 0 disables it.
	MaxFileBytes int
	// MaxTotalBytes stops reading once reached, 0 disables it.
	MaxTotalBytes int
}

// Expand resolves paths to a sorted, deduplicated list of files relative to
// Root. Directories are walked recursively. Missing paths and paths that
// leave Root, directly or through a symlink, are reported as errors and
// skipped.
func (r *Reader) Expand(paths []string) ([]string, []error) {
	seen := make(map[string]struct{})
	var errs []error

	add := func(full string) {
		rel, err := r.relative(full)
		if err != nil {
			errs = append(errs, err)
			return
		}
		seen[rel] = struct{}{}
	}

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
			errs = append(errs, errors.ErrRepoPathOutsideRoot.WithContext("path", p))
			continue
		}
		full := filepath.Join(r.root(), filepath.FromSlash(p))
		if _, err := r.relative(full); err != nil {
			errs = append(errs, errors.ErrRepoPathOutsideRoot.WithContext("path", p))
			continue
		}

		info, err := os.Stat(full)
		if err != nil {
			errs = append(errs, errors.ErrRepoPathNotFound.WithError(err).WithContext("path", p))
			continue
		}

		if !info.IsDir() {
			add(full)
			continue
		}

		walkErr := filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, errors.ErrRepoFileRead.WithError(err).WithContext("path", path))
				return nil
			}
			if d.IsDir() {
				if _, skip := skipDirs[d.Name()]; skip && path != full {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(path)
			}
			return nil
		})
		if walkErr != nil {
			errs = append(errs, errors.ErrRepoFileRead.WithError(walkErr).WithContext("path", p))
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, errs
}

// Read expands paths and reads every file as UTF-8 text. A failure on one
// path never prevents reading the others.
func (r *Reader) Read(ctx context.Context, paths []string) ([]models.RepoFile, []error) {
	files, errs := r.Expand(paths)

	out := make([]models.RepoFile, 0, len(files))
	total := 0
	for i, rel := range files {
		if r.MaxTotalBytes > 0 && total >= r.MaxTotalBytes {
			skipped := len(files) - i
			logger.Warn(ctx, "context size limit reached, skipping remaining files", "count", skipped)
			errs = append(errs, fmt.Errorf("context size limit of %d bytes reached, %d file(s) omitted starting at %s",
				r.MaxTotalBytes, skipped, rel))
			break
		}

		file, err := r.readFile(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(file.Content)
		out = append(out, file)
	}

	logger.Debug(ctx, "repository files read", "count", len(out), "errors", len(errs), "bytes", total)
	return out, errs
}

func (r *Reader) readFile(rel string) (models.RepoFile, error) {
	data, err := os.ReadFile(filepath.Join(r.root(), filepath.FromSlash(rel)))
	if err != nil {
		return models.RepoFile{}, errors.ErrRepoFileRead.WithError(err).WithContext("path", rel)
	}

	if !utf8.Valid(data) {
		return models.RepoFile{}, errors.ErrRepoFileRead.
			WithError(fmt.Errorf("%s is not valid UTF-8 text", rel)).
			WithContext("path", rel)
	}

	file := models.RepoFile{Path: rel}
	if r.MaxFileBytes > 0 && len(data) > r.MaxFileBytes {
		cut := r.MaxFileBytes
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		data = data[:cut]
		file.Truncated = true
	}
	file.Content = string(data)
	return file, nil
}

// relative returns full relative to Root in slash form. It fails when full,
// or the file a symlink at full points to, is not under Root.
func (r *Reader) relative(full string) (string, error) {
	rel, err := filepath.Rel(r.root(), full)
	if err != nil || escapes(rel) {
		return "", errors.ErrRepoPathOutsideRoot.WithContext("path", full)
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		// missing files are reported by the caller
		return filepath.ToSlash(rel), nil
	}
	root, err := filepath.EvalSymlinks(r.root())
	if err != nil {
		root = r.root()
	}
	if target, err := filepath.Rel(root, resolved); err != nil || escapes(target) {
		return "", errors.ErrRepoPathOutsideRoot.WithContext("path", filepath.ToSlash(rel))
	}
	return filepath.ToSlash(rel), nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

func (r *Reader) root() string {
	if r.Root == "" {
		return "."
	}
	return r.Root
}
