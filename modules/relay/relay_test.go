package relay_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/mesh"
	"github.com/insituflow/flume/internal/workspace"
	"github.com/insituflow/flume/modules/relay"
)

func TestWriteDatasetSerial(t *testing.T) {
	dir := t.TempDir()
	ds := mesh.Example(2, 3)

	root, err := relay.WriteDataset(comm.Serial{}, ds, filepath.Join(dir, "out"), "json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.cycle_000100.root"), root)

	// One file per domain inside the cycle directory.
	cycleDir := filepath.Join(dir, "out.cycle_000100")
	for _, name := range []string{"domain_000000.json", "domain_000001.json"} {
		raw, err := os.ReadFile(filepath.Join(cycleDir, name))
		require.NoError(t, err)
		dom, err := mesh.DecodeDomain(raw, "json")
		require.NoError(t, err)
		assert.Contains(t, dom.Fields, "braid")
	}

	index, err := relay.ReadRoot(root)
	require.NoError(t, err)
	assert.Equal(t, "json", index.Protocol.Name)
	assert.Equal(t, 1, index.NumberOfFiles)
	assert.Equal(t, 2, index.NumberOfTrees)
	assert.Equal(t, filepath.Join("out.cycle_000100", "domain_%06d.json"), index.FilePattern)
	assert.Equal(t, "vertex", index.BlueprintIndex["braid"].Association)
	assert.Equal(t, "element", index.BlueprintIndex["radial"].Association)
}

func TestWriteDatasetYamlRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds := mesh.Example(1, 3)

	root, err := relay.WriteDataset(comm.Serial{}, ds, filepath.Join(dir, "viz"), "yaml")
	require.NoError(t, err)

	index, err := relay.ReadRoot(root)
	require.NoError(t, err)
	assert.Equal(t, "yaml", index.Protocol.Name)

	raw, err := os.ReadFile(filepath.Join(dir, "viz.cycle_000100", "domain_000000.yaml"))
	require.NoError(t, err)
	dom, err := mesh.DecodeDomain(raw, "yaml")
	require.NoError(t, err)
	assert.Equal(t, ds.Domains[0].Fields["braid"].Values, dom.Fields["braid"].Values)
}

func TestWriteDatasetAcrossRanks(t *testing.T) {
	dir := t.TempDir()
	g := comm.NewGroup(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			// Each rank owns one domain with a globally unique id.
			ds := mesh.Example(2, 3)
			ds.Domains = ds.Domains[rank : rank+1]
			_, errs[rank] = relay.WriteDataset(g.Rank(rank), ds, filepath.Join(dir, "par"), "json")
		}(r)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	index, err := relay.ReadRoot(filepath.Join(dir, "par.cycle_000100.root"))
	require.NoError(t, err)
	assert.Equal(t, 2, index.NumberOfFiles)
	assert.Equal(t, 2, index.NumberOfTrees)

	for _, name := range []string{"domain_000000.json", "domain_000001.json"} {
		_, err := os.Stat(filepath.Join(dir, "par.cycle_000100", name))
		assert.NoError(t, err)
	}
}

func TestWriteDatasetFailureAgreesAcrossRanks(t *testing.T) {
	g := comm.NewGroup(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ds := mesh.Example(2, 3)
			ds.Domains = ds.Domains[rank : rank+1]
			// An unwritable prefix makes rank 0's mkdir fail; both ranks
			// must see the error.
			_, errs[rank] = relay.WriteDataset(g.Rank(rank), ds,
				filepath.Join(string(os.PathSeparator), "dev", "null", "nope"), "json")
		}(r)
	}
	wg.Wait()
	assert.ErrorIs(t, errs[0], relay.ErrIo)
	assert.ErrorIs(t, errs[1], relay.ErrIo)
}

func TestExtractFilter(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New()
	require.NoError(t, (&relay.Module{}).Register(context.Background(), ws))

	ds := mesh.Example(1, 3)
	require.NoError(t, ws.Publish(expr.DatasetKey, box.Borrowed(ds)))

	_, err := ws.Graph().AddFilter("relay_extract", "save",
		cty.ObjectVal(map[string]cty.Value{"path": cty.StringVal(filepath.Join(dir, "out"))}))
	require.NoError(t, err)

	require.NoError(t, ws.Execute(context.Background()))
	_, err = os.Stat(filepath.Join(dir, "out.cycle_000100.root"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "out.cycle_000100", "domain_000000.json"))
	assert.NoError(t, err)
}

func TestExtractFilterRejectsBadParams(t *testing.T) {
	ws := workspace.New()
	require.NoError(t, (&relay.Module{}).Register(context.Background(), ws))

	_, err := ws.Graph().AddFilter("relay_extract", "save", cty.NilVal)
	assert.Error(t, err)

	_, err = ws.Graph().AddFilter("relay_extract", "save2",
		cty.ObjectVal(map[string]cty.Value{
			"path":     cty.StringVal("x"),
			"protocol": cty.StringVal("hdf5"),
		}))
	assert.Error(t, err)
}
