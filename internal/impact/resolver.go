// Package impact computes the set of files a pull request can affect: the
// changed files plus every module that transitively imports one of them.
package impact

import (
	"context"
	"sort"
	"time"

	"github.com/thomas-vilte/leanreview/internal/depgraph"
	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/lake"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
)

// GraphProvider produces the module dependency graph, usually by running
// the build tool's exporter.
type GraphProvider interface {
	Graph(ctx context.Context) (*depgraph.Graph, error)
}

var errGraphDisabled = errors.NewAppError(errors.TypeToolchain, "Dependency graph export disabled", nil)

type Resolver struct {
	// Provider may be nil, in which case the change set is returned as is.
	Provider GraphProvider
	Mapper   lake.ModuleMapper
}

// Result is the impact set of a change set.
type Result struct {
	Files   []string
	Modules []string
	// Fallback reports that no graph was available and Files is exactly
	// the change set.
	Fallback bool
	Reason   error
}

// Info converts the result for the context bundle.
func (r Result) Info() models.ImpactInfo {
	info := models.ImpactInfo{
		Files:    r.Files,
		Modules:  r.Modules,
		Fallback: r.Fallback,
	}
	if r.Reason != nil {
		info.Reason = r.Reason.Error()
	}
	return info
}

// Resolve never fails: any problem obtaining the graph is logged and the
// change set is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, changeSet models.ChangeSet) Result {
	changed := changeSet.Files()

	seeds := make([]string, 0, len(changed))
	for _, p := range changed {
		if mod, ok := r.Mapper.ModuleForPath(p); ok {
			seeds = append(seeds, mod)
		}
	}

	if len(seeds) == 0 {
		logger.Info(ctx, "no source modules changed, skipping dependency graph",
			"count", len(changed))
		return Result{Files: changed, Modules: []string{}}
	}

	if r.Provider == nil {
		return fallback(ctx, changed, errGraphDisabled)
	}

	start := time.Now()
	graph, err := r.Provider.Graph(ctx)
	if err != nil {
		return fallback(ctx, changed, err)
	}

	modules := graph.ImpactedBy(seeds)

	files := make(map[string]struct{}, len(changed)+len(modules))
	for _, p := range changed {
		files[p] = struct{}{}
	}
	for _, mod := range modules {
		files[r.Mapper.PathForModule(mod)] = struct{}{}
	}

	result := Result{
		Files:   sortedKeys(files),
		Modules: modules,
	}

	logger.Info(ctx, "impact set resolved",
		"changed", len(changed),
		"seeds", len(seeds),
		"graph_nodes", graph.Len(),
		"graph_edges", graph.EdgeCount(),
		"count", len(result.Files),
		"duration_ms", time.Since(start).Milliseconds())

	return result
}

func fallback(ctx context.Context, changed []string, reason error) Result {
	logger.Warn(ctx, "dependency graph unavailable, reviewing changed files only",
		"error", reason,
		"count", len(changed))
	return Result{
		Files:    changed,
		Modules:  []string{},
		Fallback: true,
		Reason:   reason,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
