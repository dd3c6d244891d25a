// Package action loads and runs HCL action files: filter blocks instantiate
// graph nodes, connect blocks wire ports, and expression blocks evaluate
// queries against the published dataset after the graph has run.
package action

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/workspace"
)

// paramsBlock defers decoding so arbitrary filter parameters survive.
type paramsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// FilterBlock instantiates one filter in the graph.
type FilterBlock struct {
	Type   string       `hcl:"type,label"`
	Name   string       `hcl:"name,label"`
	Params *paramsBlock `hcl:"params,block"`
}

// ConnectBlock wires a producer to one input port of a consumer.
type ConnectBlock struct {
	Src  string `hcl:"src"`
	Dst  string `hcl:"dst"`
	Port string `hcl:"port"`
}

// ExpressionBlock evaluates one expression, caching the result under its
// label.
type ExpressionBlock struct {
	Name string `hcl:"name,label"`
	Expr string `hcl:"expr"`
}

// Actions is one parsed action file.
type Actions struct {
	Filters     []*FilterBlock     `hcl:"filter,block"`
	Connects    []*ConnectBlock    `hcl:"connect,block"`
	Expressions []*ExpressionBlock `hcl:"expression,block"`
}

// Load parses an action file from disk.
func Load(path string) (*Actions, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return decode(file)
}

// LoadBytes parses an action file from memory; filename is used in
// diagnostics only.
func LoadBytes(src []byte, filename string) (*Actions, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return decode(file)
}

func decode(file *hcl.File) (*Actions, error) {
	var acts Actions
	if diags := gohcl.DecodeBody(file.Body, nil, &acts); diags.HasErrors() {
		return nil, fmt.Errorf("decoding actions: %w", diags)
	}
	return &acts, nil
}

// paramsValue evaluates a params block into the cty object the filter
// contract expects.
func paramsValue(p *paramsBlock) (cty.Value, error) {
	if p == nil {
		return cty.NilVal, nil
	}
	attrs, diags := p.Body.JustAttributes()
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("decoding params: %w", diags)
	}
	if len(attrs) == 0 {
		return cty.NilVal, nil
	}
	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return cty.NilVal, fmt.Errorf("evaluating param %q: %w", name, diags)
		}
		vals[name] = v
	}
	return cty.ObjectVal(vals), nil
}

// Run applies the actions: build the graph, execute it if any filters were
// declared, then evaluate the expression blocks in file order. Returns the
// expression results by name.
func Run(ctx context.Context, ws *workspace.Workspace, ev *expr.Evaluator, acts *Actions) (map[string]*expr.Result, error) {
	logger := ctxlog.FromContext(ctx)

	if len(acts.Filters) > 0 {
		g := ws.Graph()
		for _, fb := range acts.Filters {
			params, err := paramsValue(fb.Params)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", fb.Name, err)
			}
			if _, err := g.AddFilter(fb.Type, fb.Name, params); err != nil {
				return nil, err
			}
		}
		for _, cb := range acts.Connects {
			if err := g.Connect(cb.Src, cb.Dst, cb.Port); err != nil {
				return nil, err
			}
		}
		logger.Debug("Action graph built.", "filters", len(acts.Filters))
		if err := ws.Execute(ctx); err != nil {
			return nil, err
		}
	}

	results := make(map[string]*expr.Result, len(acts.Expressions))
	for _, eb := range acts.Expressions {
		res, err := ev.EvaluateNamed(ctx, eb.Expr, eb.Name)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", eb.Name, err)
		}
		results[eb.Name] = res
	}
	return results, nil
}
