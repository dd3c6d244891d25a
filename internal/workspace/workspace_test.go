package workspace

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/graph"
	"github.com/insituflow/flume/internal/registry"
)

// registerTestTypes installs a small filter family used across the
// scheduler tests: an integer source, an identity pass-through that counts
// its invocations, an adder, and a deliberately failing filter.
func registerTestTypes(t *testing.T, w *Workspace, runs *[]string) {
	t.Helper()
	ctx := context.Background()
	okParams := func(cty.Value, *filter.Info) bool { return true }

	require.NoError(t, w.RegisterType(ctx, &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "source_const",
				OutputPort: true,
				DefaultParams: cty.ObjectVal(map[string]cty.Value{
					"value": cty.NumberIntVal(0),
				}),
			}
		},
		VerifyParams: func(p cty.Value, info *filter.Info) bool {
			if !p.Type().HasAttribute("value") {
				info.AddError("missing required numeric parameter 'value'")
				return false
			}
			return true
		},
		Execute: func(_ context.Context, fc *filter.Context) error {
			*runs = append(*runs, fc.Name())
			v, _ := fc.Param("value").AsBigFloat().Int64()
			filter.SetOwnedOutput(fc, int(v))
			return nil
		},
	}))

	require.NoError(t, w.RegisterType(ctx, &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "identity", PortNames: []string{"in"}, OutputPort: true}
		},
		VerifyParams: okParams,
		Execute: func(_ context.Context, fc *filter.Context) error {
			*runs = append(*runs, fc.Name())
			v, err := filter.InputAs[int](fc, "in")
			if err != nil {
				return err
			}
			filter.SetOwnedOutput(fc, v)
			return nil
		},
	}))

	require.NoError(t, w.RegisterType(ctx, &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "add", PortNames: []string{"lhs", "rhs"}, OutputPort: true}
		},
		VerifyParams: okParams,
		Execute: func(_ context.Context, fc *filter.Context) error {
			*runs = append(*runs, fc.Name())
			lhs, err := filter.InputAs[int](fc, "lhs")
			if err != nil {
				return err
			}
			rhs, err := filter.InputAs[int](fc, "rhs")
			if err != nil {
				return err
			}
			filter.SetOwnedOutput(fc, lhs+rhs)
			return nil
		},
	}))

	require.NoError(t, w.RegisterType(ctx, &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "boom", PortNames: []string{"in"}, OutputPort: true}
		},
		VerifyParams: okParams,
		Execute: func(context.Context, *filter.Context) error {
			return fmt.Errorf("synthetic failure")
		},
	}))

	require.NoError(t, w.RegisterType(ctx, &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "forgetful", OutputPort: true}
		},
		VerifyParams: okParams,
		Execute: func(context.Context, *filter.Context) error {
			return nil // declares an output but never sets one
		},
	}))
}

func intParams(v int64) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{"value": cty.NumberIntVal(v)})
}

func TestTwoNodePassThrough(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "a", intParams(42))
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("identity", "b", cty.NilVal)
	require.NoError(t, err)
	require.NoError(t, w.Graph().Connect("a", "b", "in"))

	require.NoError(t, w.Execute(context.Background()))
	assert.Equal(t, []string{"a", "b"}, runs)
	assert.Equal(t, []string{"a", "b"}, w.ExecuteOrder())

	// a was consumed and swept; b lingers as a drained terminal result.
	assert.False(t, w.Registry().Has("a"))
	require.True(t, w.Registry().Has("b"))

	b, err := w.Registry().Fetch("b")
	require.NoError(t, err)
	v, err := box.Get[int](b)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTwoConsumersOfOneProducer(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "p", intParams(7))
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("identity", "c1", cty.NilVal)
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("identity", "c2", cty.NilVal)
	require.NoError(t, err)
	require.NoError(t, w.Graph().Connect("p", "c1", "in"))
	require.NoError(t, w.Graph().Connect("p", "c2", "in"))

	assert.Equal(t, 2, w.Graph().ConsumerCount("p"))
	require.NoError(t, w.Execute(context.Background()))

	// p's output was fetched twice and released after the second fetch.
	assert.False(t, w.Registry().Has("p"))
	assert.True(t, w.Registry().Has("c1"))
	assert.True(t, w.Registry().Has("c2"))
}

func TestSameProducerThroughTwoPortsConsumesTwice(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "p", intParams(3))
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("add", "sum", cty.NilVal)
	require.NoError(t, err)
	require.NoError(t, w.Graph().Connect("p", "sum", "lhs"))
	require.NoError(t, w.Graph().Connect("p", "sum", "rhs"))

	assert.Equal(t, 2, w.Graph().ConsumerCount("p"))
	require.NoError(t, w.Execute(context.Background()))
	assert.False(t, w.Registry().Has("p"))

	b, err := w.Registry().Fetch("sum")
	require.NoError(t, err)
	v, err := box.Get[int](b)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestReadCountExactness(t *testing.T) {
	// A diamond: src feeds two identities which feed an adder. After the
	// run every non-terminal output must be gone from the registry.
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	for _, spec := range []struct {
		typ, name string
		params    cty.Value
	}{
		{"source_const", "src", intParams(5)},
		{"identity", "left", cty.NilVal},
		{"identity", "right", cty.NilVal},
		{"add", "sum", cty.NilVal},
	} {
		_, err := w.Graph().AddFilter(spec.typ, spec.name, spec.params)
		require.NoError(t, err)
	}
	require.NoError(t, w.Graph().Connect("src", "left", "in"))
	require.NoError(t, w.Graph().Connect("src", "right", "in"))
	require.NoError(t, w.Graph().Connect("left", "sum", "lhs"))
	require.NoError(t, w.Graph().Connect("right", "sum", "rhs"))

	require.NoError(t, w.Execute(context.Background()))
	for _, name := range []string{"src", "left", "right"} {
		assert.False(t, w.Registry().Has(name), "intermediate %q must be released", name)
	}
	assert.Equal(t, []string{"sum"}, w.Registry().Orphans())

	b, err := w.Registry().Fetch("sum")
	require.NoError(t, err)
	v, err := box.Get[int](b)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestExecutionOrderIsDeterministic(t *testing.T) {
	run := func() []string {
		var runs []string
		w := New()
		registerTestTypes(t, w, &runs)
		for _, name := range []string{"mike", "alpha", "zulu"} {
			_, err := w.Graph().AddFilter("source_const", name, intParams(1))
			require.NoError(t, err)
		}
		_, err := w.Graph().AddFilter("add", "sum", cty.NilVal)
		require.NoError(t, err)
		require.NoError(t, w.Graph().Connect("zulu", "sum", "lhs"))
		require.NoError(t, w.Graph().Connect("mike", "sum", "rhs"))
		require.NoError(t, w.Execute(context.Background()))
		return runs
	}

	want := run()
	assert.Equal(t, []string{"alpha", "mike", "zulu", "sum"}, want)
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, run())
	}
}

func TestDisconnectedPortFailsBeforeRunning(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("identity", "lonely", cty.NilVal)
	require.NoError(t, err)

	err = w.Execute(context.Background())
	assert.ErrorIs(t, err, graph.ErrDisconnectedPort)
	assert.Empty(t, runs)
}

func TestFilterFailureUnwindsRegistry(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "a", intParams(1))
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("source_const", "b", intParams(2))
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("boom", "kaboom", cty.NilVal)
	require.NoError(t, err)
	_, err = w.Graph().AddFilter("identity", "after", cty.NilVal)
	require.NoError(t, err)
	require.NoError(t, w.Graph().Connect("a", "kaboom", "in"))
	require.NoError(t, w.Graph().Connect("kaboom", "after", "in"))

	err = w.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "kaboom(boom)")
	assert.ErrorContains(t, err, "synthetic failure")

	// No partial results survive the unwind.
	assert.Empty(t, w.Registry().Keys())
	assert.NotContains(t, runs, "after")
}

func TestDeclaredOutputMustBeProduced(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("forgetful", "f", cty.NilVal)
	require.NoError(t, err)

	err = w.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestPublishedDatasetIsPinned(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	data := []float64{1, 2, 3}
	require.NoError(t, w.Publish("dataset", box.Borrowed(&data)))

	_, err := w.Graph().AddFilter("source_const", "a", intParams(1))
	require.NoError(t, err)
	require.NoError(t, w.Execute(context.Background()))

	// Still there after the run, unconsumed.
	reads, err := w.Registry().Reads("dataset")
	require.NoError(t, err)
	assert.Equal(t, registry.Pinned, reads)
}

func TestCanceledContextAborts(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "a", intParams(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runs)
}

func TestResetKeepsRegisteredTypes(t *testing.T) {
	var runs []string
	w := New()
	registerTestTypes(t, w, &runs)

	_, err := w.Graph().AddFilter("source_const", "a", intParams(1))
	require.NoError(t, err)
	require.NoError(t, w.Execute(context.Background()))

	w.Reset()
	assert.Empty(t, w.Registry().Keys())
	assert.Empty(t, w.Graph().Names())

	// Types survive; the graph can be rebuilt and run again.
	_, err = w.Graph().AddFilter("source_const", "a", intParams(9))
	require.NoError(t, err)
	require.NoError(t, w.Execute(context.Background()))

	b, err := w.Registry().Fetch("a")
	require.NoError(t, err)
	v, err := box.Get[int](b)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}
