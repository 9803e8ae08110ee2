package lake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/thomas-vilte/leanreview/internal/depgraph"
	"github.com/thomas-vilte/leanreview/internal/errors"
)

// EdgeDirection tells how an exported edge source -> target is read.
type EdgeDirection string

const (
	// DirectionImports: source imports target.
	DirectionImports EdgeDirection = "imports"
	// DirectionImportedBy: source is imported by target. This is how
	// `lake exe graph` writes its edges, so it is the default.
	DirectionImportedBy EdgeDirection = "imported-by"
)

func ParseDirection(s string) (EdgeDirection, error) {
	switch EdgeDirection(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionImportedBy:
		return DirectionImportedBy, nil
	case DirectionImports:
		return DirectionImports, nil
	}
	return "", fmt.Errorf("unknown edge direction %q", s)
}

// Parse builds a graph from exporter output. JSON (repaired when slightly
// malformed) and DOT are accepted. Explicit "imports" lists on node objects
// always mean the node imports the listed modules, whatever the direction.
func Parse(data []byte, direction EdgeDirection) (*depgraph.Graph, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.ErrGraphParse.WithContext("reason", "empty output")
	}

	b := builder{g: depgraph.New(), direction: direction}

	if isDOT(trimmed) {
		if err := b.dot(string(trimmed)); err != nil {
			return nil, err
		}
		return b.g, nil
	}

	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, errors.ErrGraphParse.WithContext("reason", "unrecognised format")
	}

	if !json.Valid(trimmed) {
		repaired, err := jsonrepair.JSONRepair(string(trimmed))
		if err != nil {
			return nil, errors.ErrGraphParse.WithError(err)
		}
		trimmed = []byte(repaired)
	}

	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.ErrGraphParse.WithError(err)
	}

	if err := b.json(raw); err != nil {
		return nil, err
	}
	return b.g, nil
}

type builder struct {
	g         *depgraph.Graph
	direction EdgeDirection
}

// edge adds an exported edge honouring the configured direction. An unset
// direction reads as DirectionImportedBy.
func (b *builder) edge(source, target string) {
	if b.direction == DirectionImports {
		b.g.AddDependency(source, target)
		return
	}
	b.g.AddDependency(target, source)
}

func (b *builder) json(raw any) error {
	switch v := raw.(type) {
	case map[string]any:
		_, hasNodes := v["nodes"]
		_, hasEdges := v["edges"]
		if hasNodes || hasEdges {
			if err := b.list(v["nodes"]); err != nil {
				return err
			}
			return b.list(v["edges"])
		}
		return b.adjacency(v)
	case []any:
		return b.list(v)
	}
	return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("unexpected top-level %T", raw))
}

func (b *builder) list(raw any) error {
	if raw == nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("expected a list, got %T", raw))
	}
	for _, item := range items {
		if err := b.item(item); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) item(raw any) error {
	switch v := raw.(type) {
	case string:
		b.g.AddNode(v)
		return nil
	case []any:
		if len(v) != 2 {
			return errors.ErrGraphParse.WithContext("reason", "edge pair must have two elements")
		}
		source, ok1 := v[0].(string)
		target, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return errors.ErrGraphParse.WithContext("reason", "edge pair must contain strings")
		}
		b.edge(source, target)
		return nil
	case map[string]any:
		return b.object(v)
	}
	return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("unexpected item %T", raw))
}

func (b *builder) object(obj map[string]any) error {
	source := firstString(obj, "source", "from")
	target := firstString(obj, "target", "to")
	if source != "" && target != "" {
		b.edge(source, target)
		return nil
	}

	id := firstString(obj, "id", "name", "module")
	if id == "" {
		return errors.ErrGraphParse.WithContext("reason", "object is neither a node nor an edge")
	}
	b.g.AddNode(id)

	for _, key := range []string{"imports", "deps", "dependencies"} {
		deps, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, d := range deps {
			if name, ok := d.(string); ok {
				b.g.AddDependency(id, name)
			}
		}
	}
	return nil
}

func (b *builder) adjacency(m map[string]any) error {
	for node, raw := range m {
		b.g.AddNode(node)
		targets, ok := raw.([]any)
		if !ok {
			return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("adjacency for %q is not a list", node))
		}
		for _, t := range targets {
			target, ok := t.(string)
			if !ok {
				return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("adjacency for %q contains %T", node, t))
			}
			b.edge(node, target)
		}
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var (
	dotHeader     = regexp.MustCompile(`(?is)^(strict\s+)?(di)?graph\b`)
	dotAttributes = regexp.MustCompile(`\[[^\]]*\]`)
)

func isDOT(data []byte) bool {
	return dotHeader.Match(data)
}

func (b *builder) dot(src string) error {
	open := strings.Index(src, "{")
	closing := strings.LastIndex(src, "}")
	if open < 0 || closing < open {
		return errors.ErrGraphParse.WithContext("reason", "DOT body not found")
	}
	body := dotAttributes.ReplaceAllString(src[open+1:closing], "")

	for _, stmt := range strings.FieldsFunc(body, func(r rune) bool { return r == ';' || r == '\n' }) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "//") || strings.HasPrefix(stmt, "#") {
			continue
		}

		if strings.Contains(stmt, "->") {
			parts := strings.Split(stmt, "->")
			for i := 0; i+1 < len(parts); i++ {
				source, target := dotID(parts[i]), dotID(parts[i+1])
				if source == "" || target == "" {
					return errors.ErrGraphParse.WithContext("reason", fmt.Sprintf("malformed edge %q", stmt))
				}
				b.edge(source, target)
			}
			continue
		}

		switch first := strings.Fields(stmt)[0]; first {
		case "node", "edge", "graph", "subgraph", "{", "}":
			continue
		}
		if strings.Contains(stmt, "=") {
			// graph attribute such as rankdir=LR
			continue
		}
		if id := dotID(stmt); id != "" {
			b.g.AddNode(id)
		}
	}
	return nil
}

func dotID(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if unq, err := strconv.Unquote(s); err == nil {
			return unq
		}
		return strings.Trim(s, `"`)
	}
	return s
}
