package impact

import (
	"github.com/thomas-vilte/leanreview/internal/config"
	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/lake"
)

// NewResolver builds a resolver running the configured exporter in root.
// A disabled graph yields a resolver without provider.
func NewResolver(cfg config.GraphConfig, root string) (*Resolver, error) {
	r := &Resolver{
		Mapper: lake.ModuleMapper{Root: cfg.SourceRoot, Ext: cfg.Extension},
	}
	if !cfg.Enabled || cfg.Command == "" {
		return r, nil
	}

	direction, err := lake.ParseDirection(cfg.Direction)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithError(err).WithContext("field", "graph.direction")
	}

	r.Provider = &lake.Exporter{
		Command:      cfg.Command,
		Args:         cfg.Args,
		Dir:          root,
		Timeout:      cfg.Timeout,
		OutputSuffix: cfg.OutputSuffix,
		Direction:    direction,
	}
	return r, nil
}
