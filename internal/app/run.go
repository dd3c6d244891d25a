package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/insituflow/flume/internal/action"
	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/reduce"
)

// Run executes the main application logic: load the action file, run its
// graph and expressions against the published dataset, and print the
// expression results by name.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	acts, err := action.Load(a.config.ActionsPath)
	if err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}
	a.logger.Debug("Actions loaded.",
		"filters", len(acts.Filters),
		"connects", len(acts.Connects),
		"expressions", len(acts.Expressions))

	results, err := action.Run(ctx, a.workspace, a.evaluator, acts)
	if err != nil {
		return fmt.Errorf("running actions: %w", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.outW, "%s = %s\n", name, formatResult(results[name]))
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// formatResult renders one expression result for the console.
func formatResult(r *expr.Result) string {
	switch v := r.Value.(type) {
	case *reduce.Histogram:
		return fmt.Sprintf("histogram(%q, range=[%g, %g), bins=%v)",
			v.Field, v.Min, v.Max, v.Bins)
	case *reduce.Binning:
		return fmt.Sprintf("binning(%q, reduction=%s, values=%v)",
			v.Field, v.Reduction, v.Values)
	case [3]float64:
		return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
