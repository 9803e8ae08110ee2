// Package lake runs the build tool's dependency-graph exporter and turns its
// output into a depgraph.Graph.
package lake

import (
	"bytes"
	"context"
	stdErrors "errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/thomas-vilte/leanreview/internal/depgraph"
	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/logger"
)

// OutputPlaceholder in Args is replaced by a temporary file path whose
// contents are read once the command exits.
const OutputPlaceholder = "{output}"

// Runner executes name with args in dir and returns stdout and stderr.
type Runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs the command as a subprocess.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type Exporter struct {
	Command      string
	Args         []string
	Dir          string
	Timeout      time.Duration
	OutputSuffix string
	Direction    EdgeDirection
	Runner       Runner
}

// Export runs the exporter and returns its raw output.
func (e *Exporter) Export(ctx context.Context) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	runner := e.Runner
	if runner == nil {
		runner = ExecRunner
	}

	args := make([]string, len(e.Args))
	copy(args, e.Args)

	outputPath := ""
	for i, a := range args {
		if !strings.Contains(a, OutputPlaceholder) {
			continue
		}
		if outputPath == "" {
			f, err := os.CreateTemp("", "leanreview-graph-*"+e.OutputSuffix)
			if err != nil {
				return nil, errors.ErrGraphExport.WithError(err)
			}
			outputPath = f.Name()
			_ = f.Close()
			// Some exporters refuse to overwrite an existing file.
			_ = os.Remove(outputPath)
			defer os.Remove(outputPath)
		}
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, outputPath)
	}

	logger.Debug(ctx, "running graph exporter",
		"command", e.Command,
		"args", strings.Join(args, " "),
		"dir", e.Dir)

	start := time.Now()
	stdout, stderr, err := runner(ctx, e.Dir, e.Command, args...)
	if err != nil {
		if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.ErrGraphTimeout.
				WithError(err).
				WithContext("timeout", e.Timeout.String())
		}
		return nil, errors.ErrGraphExport.
			WithError(err).
			WithContext("command", e.Command).
			WithContext("stderr", strings.TrimSpace(string(stderr)))
	}

	logger.Debug(ctx, "graph exporter finished", "duration_ms", time.Since(start).Milliseconds())

	if outputPath == "" {
		return stdout, nil
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errors.ErrGraphExport.
			WithError(err).
			WithContext("output", outputPath)
	}
	return data, nil
}

// Graph exports and parses the dependency graph.
func (e *Exporter) Graph(ctx context.Context) (*depgraph.Graph, error) {
	data, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(data, e.Direction)
}
