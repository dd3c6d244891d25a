// Package expr implements the expression language evaluated against the
// published dataset: a lexer and recursive-descent parser producing a small
// AST, a lowering pass that compiles the AST to filters in a working graph,
// and an evaluator that runs the graph through the normal workspace
// scheduler and extracts the root result by filter name. Named results are
// cached so later expressions can reference them as identifiers.
package expr

import (
	"context"
	"fmt"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/mesh"
	"github.com/insituflow/flume/internal/workspace"
)

// Registry keys pinned for the duration of an evaluation.
const (
	DatasetKey = "dataset"
	CacheKey   = "cache"
)

// Evaluator compiles and runs expressions against one dataset. The builtin
// filters must already be registered on the workspace's type table.
type Evaluator struct {
	ws    *workspace.Workspace
	ds    *mesh.Dataset
	fns   Functions
	cache Cache
}

// New creates an evaluator over ws bound to the published dataset.
func New(ws *workspace.Workspace, ds *mesh.Dataset) *Evaluator {
	return &Evaluator{
		ws:    ws,
		ds:    ds,
		fns:   Builtins(),
		cache: make(Cache),
	}
}

// Cache exposes the named-result history.
func (e *Evaluator) Cache() Cache { return e.cache }

// Evaluate compiles and runs one expression, discarding nothing into the
// cache.
func (e *Evaluator) Evaluate(ctx context.Context, src string) (*Result, error) {
	return e.EvaluateNamed(ctx, src, "")
}

// EvaluateNamed compiles src to a filter graph, executes it, and returns
// the root result. A non-empty name appends the result to the expression
// cache so later expressions can reference it.
func (e *Evaluator) EvaluateNamed(ctx context.Context, src, name string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	ast, err := Parse(src)
	if err != nil {
		return nil, err
	}

	// Fresh graph per evaluation; the dataset and cache ride along as
	// pinned entries, re-pinned if a prior failure unwound the registry.
	e.ws.Graph().Reset()
	reg := e.ws.Registry()
	if !reg.Has(DatasetKey) {
		if err := e.ws.Publish(DatasetKey, box.Borrowed(e.ds)); err != nil {
			return nil, err
		}
	}
	if !reg.Has(CacheKey) {
		if err := e.ws.Publish(CacheKey, box.Borrowed(e.cache)); err != nil {
			return nil, err
		}
	}

	rootName, rootType, err := Lower(e.ws.Graph(), e.fns, e.cache, ast)
	if err != nil {
		return nil, err
	}
	logger.Debug("Expression lowered.", "root", rootName, "type", rootType)

	if err := e.ws.Execute(ctx); err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", src, err)
	}

	b, err := reg.Fetch(rootName)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", src, err)
	}
	res, err := box.Get[*Result](b)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", src, err)
	}
	reg.Sweep()

	if name != "" {
		e.cache.Append(name, res)
	}
	return res, nil
}
