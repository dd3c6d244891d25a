// Package relay persists the published dataset: one file per domain inside
// a cycle directory, plus a root index file describing the whole set. Rank
// 0 creates the directory and writes the root; every rank agrees on success
// before proceeding so a failure on any rank surfaces everywhere.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/mesh"
	"github.com/insituflow/flume/internal/workspace"
)

// ErrIo wraps any filesystem failure during an extract.
var ErrIo = fmt.Errorf("io error")

// Protocol holds the root index protocol block.
type Protocol struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// FieldIndex summarizes one field in the blueprint index.
type FieldIndex struct {
	Topology    string `json:"topology" yaml:"topology"`
	Association string `json:"association" yaml:"association"`
}

// RootIndex is the contents of the <prefix>.cycle_NNNNNN.root file.
type RootIndex struct {
	Protocol       Protocol              `json:"protocol" yaml:"protocol"`
	NumberOfFiles  int                   `json:"number_of_files" yaml:"number_of_files"`
	NumberOfTrees  int                   `json:"number_of_trees" yaml:"number_of_trees"`
	FilePattern    string                `json:"file_pattern" yaml:"file_pattern"`
	TreePattern    string                `json:"tree_pattern" yaml:"tree_pattern"`
	BlueprintIndex map[string]FieldIndex `json:"blueprint_index" yaml:"blueprint_index"`
}

const indexVersion = "0.1.0"

// agree raises ErrIo on every rank if any rank reported a local failure.
func agree(c comm.Comm, localErr error, what string) error {
	flag := 0.0
	if localErr != nil {
		flag = 1
	}
	if c.AllReduceMax(flag) > 0 {
		if localErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrIo, what, localErr)
		}
		return fmt.Errorf("%w: %s failed on another rank", ErrIo, what)
	}
	return nil
}

// WriteDataset writes every local domain of ds under
// <prefix>.cycle_NNNNNN/ and, on rank 0, the root index next to it.
// Returns the root file path.
func WriteDataset(c comm.Comm, ds *mesh.Dataset, prefix, protocol string) (string, error) {
	if protocol != "json" && protocol != "yaml" {
		return "", fmt.Errorf("%w: unsupported protocol %q", ErrIo, protocol)
	}

	cycle := ds.Cycle()
	dir := fmt.Sprintf("%s.cycle_%06d", prefix, cycle)
	rootPath := fmt.Sprintf("%s.cycle_%06d.root", prefix, cycle)

	// Rank 0 creates the cycle directory; everyone waits on the outcome.
	var mkErr error
	if c.Rank() == 0 {
		mkErr = os.MkdirAll(dir, 0o755)
	}
	if err := agree(c, mkErr, "creating "+dir); err != nil {
		return "", err
	}

	var writeErr error
	for _, dom := range ds.Domains {
		raw, err := mesh.EncodeDomain(dom, protocol)
		if err != nil {
			writeErr = err
			break
		}
		name := fmt.Sprintf("domain_%06d.%s", dom.State.DomainID, protocol)
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			writeErr = err
			break
		}
	}
	if err := agree(c, writeErr, "writing domain files"); err != nil {
		return "", err
	}

	trees := c.AllReduceSumInts([]int64{int64(len(ds.Domains))})

	var rootErr error
	if c.Rank() == 0 {
		index := RootIndex{
			Protocol:       Protocol{Name: protocol, Version: indexVersion},
			NumberOfFiles:  c.Size(),
			NumberOfTrees:  int(trees[0]),
			FilePattern:    filepath.Join(filepath.Base(dir), "domain_%06d."+protocol),
			TreePattern:    "/",
			BlueprintIndex: blueprintIndex(ds),
		}
		rootErr = writeRoot(rootPath, &index, protocol)
	}
	if err := agree(c, rootErr, "writing "+rootPath); err != nil {
		return "", err
	}
	return rootPath, nil
}

func blueprintIndex(ds *mesh.Dataset) map[string]FieldIndex {
	out := make(map[string]FieldIndex)
	names := ds.FieldNames()
	sort.Strings(names)
	for _, name := range names {
		for _, dom := range ds.Domains {
			if f, ok := dom.Fields[name]; ok {
				out[name] = FieldIndex{Topology: f.Topology, Association: string(f.Association)}
				break
			}
		}
	}
	return out
}

func writeRoot(path string, index *RootIndex, protocol string) error {
	var raw []byte
	var err error
	if protocol == "yaml" {
		raw, err = yaml.Marshal(index)
	} else {
		raw, err = json.MarshalIndent(index, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ReadRoot parses a root index file written by WriteDataset.
func ReadRoot(path string) (*RootIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	var index RootIndex
	if filepath.Ext(path) == ".root" && len(raw) > 0 && raw[0] == '{' {
		err = json.Unmarshal(raw, &index)
	} else {
		err = yaml.Unmarshal(raw, &index)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrIo, path, err)
	}
	return &index, nil
}

// Module implements the workspace module interface for this package.
type Module struct{}

// Register adds the relay extract filter to the workspace's type table.
func (m *Module) Register(ctx context.Context, w *workspace.Workspace) error {
	return w.RegisterType(ctx, extractFilter())
}

// extractFilter is the sink: it consumes the pinned dataset and produces no
// output.
func extractFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName: "relay_extract",
				DefaultParams: cty.ObjectVal(map[string]cty.Value{
					"path":     cty.NullVal(cty.String),
					"protocol": cty.StringVal("json"),
				}),
			}
		},
		VerifyParams: func(params cty.Value, info *filter.Info) bool {
			path := params.GetAttr("path")
			if path.IsNull() || path.Type() != cty.String || path.AsString() == "" {
				info.AddError("Missing required string parameter %q", "path")
				return false
			}
			proto := params.GetAttr("protocol")
			if proto.Type() != cty.String {
				info.AddError("Parameter %q must be a string", "protocol")
				return false
			}
			if p := proto.AsString(); p != "json" && p != "yaml" {
				info.AddError("Unsupported protocol %q, want json or yaml", p)
				return false
			}
			return true
		},
		Execute: func(ctx context.Context, fc *filter.Context) error {
			logger := ctxlog.FromContext(ctx)
			b, err := fc.Registry().Fetch(expr.DatasetKey)
			if err != nil {
				return fmt.Errorf("%s: missing published dataset: %w", fc.Detail(), err)
			}
			ds, err := box.Get[*mesh.Dataset](b)
			if err != nil {
				return err
			}
			root, err := WriteDataset(fc.Comm(), ds,
				fc.Param("path").AsString(), fc.Param("protocol").AsString())
			if err != nil {
				return err
			}
			logger.Info("Extract written.", "root", root)
			return nil
		},
	}
}
