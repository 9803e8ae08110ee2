package lake

import (
	"path"
	"path/filepath"
	"strings"
)

// ModuleMapper converts between repository-relative source paths and module
// names, e.g. ArkLib/Data/Foo.lean <-> ArkLib.Data.Foo.
type ModuleMapper struct {
	// Root is the source directory, relative to the repository root, that
	// module names are resolved against. Empty means the repository root.
	Root string
	// Ext is the source file extension, ".lean" when empty.
	Ext string
}

func (m ModuleMapper) ext() string {
	if m.Ext == "" {
		return ".lean"
	}
	return m.Ext
}

func (m ModuleMapper) root() string {
	root := strings.Trim(filepath.ToSlash(m.Root), "/")
	if root == "." {
		return ""
	}
	return root
}

// ModuleForPath returns the module defined by the file, or false when the
// file is not a source file under Root.
func (m ModuleMapper) ModuleForPath(p string) (string, bool) {
	p = path.Clean(filepath.ToSlash(p))
	if !strings.HasSuffix(p, m.ext()) {
		return "", false
	}

	if root := m.root(); root != "" {
		if !strings.HasPrefix(p, root+"/") {
			return "", false
		}
		p = strings.TrimPrefix(p, root+"/")
	}

	p = strings.TrimSuffix(p, m.ext())
	if p == "" || strings.HasPrefix(p, "../") {
		return "", false
	}
	return strings.ReplaceAll(p, "/", "."), true
}

// PathForModule is the inverse of ModuleForPath.
func (m ModuleMapper) PathForModule(module string) string {
	rel := strings.ReplaceAll(module, ".", "/") + m.ext()
	if root := m.root(); root != "" {
		return root + "/" + rel
	}
	return rel
}
