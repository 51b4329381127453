package graph_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
	"github.com/sctg-development/rust-photoacoustic-sub001/registry"
)

func chainDescriptor() graph.Descriptor {
	return graph.Descriptor{
		Nodes: []graph.NodeDescriptor{
			{ID: "in", Type: "input"},
			{ID: "sel", Type: "channel_selector", Parameters: map[string]any{"target_channel": "ChannelA"}},
			{ID: "amp", Type: "gain", Parameters: map[string]any{"gain_db": 0.0}},
			{ID: "out", Type: "output"},
		},
		Connections: []graph.Connection{
			{From: "in", To: "sel"},
			{From: "sel", To: "amp"},
			{From: "amp", To: "out"},
		},
	}
}

func testDeps() node.Dependencies {
	return node.Dependencies{Analytics: analytics.NewState()}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *graph.Descriptor)
	}{
		{"duplicate id", func(d *graph.Descriptor) {
			d.Nodes = append(d.Nodes, graph.NodeDescriptor{ID: "in", Type: "input"})
		}},
		{"empty id", func(d *graph.Descriptor) {
			d.Nodes = append(d.Nodes, graph.NodeDescriptor{Type: "gain"})
		}},
		{"unknown connection source", func(d *graph.Descriptor) {
			d.Connections = append(d.Connections, graph.Connection{From: "ghost", To: "out"})
		}},
		{"disconnected non-input node", func(d *graph.Descriptor) {
			d.Nodes = append(d.Nodes, graph.NodeDescriptor{ID: "island", Type: "gain",
				Parameters: map[string]any{"gain_db": 0.0}})
		}},
		{"cycle", func(d *graph.Descriptor) {
			d.Connections = append(d.Connections, graph.Connection{From: "out", To: "sel"})
		}},
		{"multiple inbound connections", func(d *graph.Descriptor) {
			d.Connections = append(d.Connections, graph.Connection{From: "in", To: "amp"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := chainDescriptor()
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}

	assert.NoError(t, chainDescriptor().Validate())
}

func TestDescriptorRoundTrip(t *testing.T) {
	d := chainDescriptor()

	data, err := d.MarshalJSONIndent()
	require.NoError(t, err)

	parsed, err := graph.ParseJSON(data)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(d, parsed), "JSON round-trip must be lossless")
}

func TestDescriptorParseYAML(t *testing.T) {
	doc := []byte(`
nodes:
  - id: in
    type: input
  - id: amp
    type: gain
    parameters:
      gain_db: 6
connections:
  - from: in
    to: amp
`)
	d, err := graph.ParseYAML(doc)
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	amp, ok := d.Node("amp")
	require.True(t, ok)
	assert.Equal(t, "gain", amp.Type)
}

func TestExecutionOrderIsDeterministic(t *testing.T) {
	d := chainDescriptor()

	order, err := d.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"in", "sel", "amp", "out"}, order)
}

func TestCompare(t *testing.T) {
	old := chainDescriptor()

	t.Run("identical", func(t *testing.T) {
		diff := graph.Compare(old, chainDescriptor())
		assert.True(t, diff.SameTopology)
		assert.Empty(t, diff.ChangedParams)
	})

	t.Run("declaration order is irrelevant", func(t *testing.T) {
		reordered := chainDescriptor()
		reordered.Nodes[1], reordered.Nodes[2] = reordered.Nodes[2], reordered.Nodes[1]
		reordered.Connections[0], reordered.Connections[2] = reordered.Connections[2], reordered.Connections[0]

		diff := graph.Compare(old, reordered)
		assert.True(t, diff.SameTopology)
		assert.Empty(t, diff.ChangedParams)
	})

	t.Run("parameter change", func(t *testing.T) {
		changed := chainDescriptor()
		changed.Nodes[2].Parameters["gain_db"] = 6.0

		diff := graph.Compare(old, changed)
		assert.True(t, diff.SameTopology)
		assert.Equal(t, []string{"amp"}, diff.ChangedParams)
	})

	t.Run("numeric representation is normalized", func(t *testing.T) {
		changed := chainDescriptor()
		changed.Nodes[2].Parameters["gain_db"] = int(0) // YAML decodes 0 as int

		diff := graph.Compare(old, changed)
		assert.True(t, diff.SameTopology)
		assert.Empty(t, diff.ChangedParams)
	})

	t.Run("type change breaks topology", func(t *testing.T) {
		changed := chainDescriptor()
		changed.Nodes[2].Type = "filter"

		assert.False(t, graph.Compare(old, changed).SameTopology)
	})

	t.Run("added node breaks topology", func(t *testing.T) {
		changed := chainDescriptor()
		changed.Nodes = append(changed.Nodes, graph.NodeDescriptor{ID: "extra", Type: "output"})
		changed.Connections = append(changed.Connections, graph.Connection{From: "amp", To: "extra"})

		assert.False(t, graph.Compare(old, changed).SameTopology)
	})

	t.Run("rewired connection breaks topology", func(t *testing.T) {
		changed := chainDescriptor()
		changed.Connections[2] = graph.Connection{From: "sel", To: "out"}

		assert.False(t, graph.Compare(old, changed).SameTopology)
	})
}

func TestBuildCreatesDeclaredNodes(t *testing.T) {
	g, err := graph.Build(chainDescriptor(), registry.MustCatalog(), testDeps())
	require.NoError(t, err)

	assert.Equal(t, []string{"in", "sel", "amp", "out"}, g.ExecutionOrder())
	for _, id := range []string{"in", "sel", "amp", "out"} {
		stage, ok := g.Stage(id)
		require.True(t, ok, id)
		assert.Equal(t, id, stage.ID())
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	d := chainDescriptor()
	d.Nodes[2].Type = "quantizer"

	_, err := graph.Build(d, registry.MustCatalog(), testDeps())
	assert.Error(t, err)
}

func TestBuildRejectsShapeMismatch(t *testing.T) {
	// Output accepts single-channel frames, but input produces dual.
	d := graph.Descriptor{
		Nodes: []graph.NodeDescriptor{
			{ID: "in", Type: "input"},
			{ID: "out", Type: "output"},
		},
		Connections: []graph.Connection{{From: "in", To: "out"}},
	}

	_, err := graph.Build(d, registry.MustCatalog(), testDeps())
	assert.Error(t, err)
}

func TestExecuteRunsOrderedPass(t *testing.T) {
	g, err := graph.Build(chainDescriptor(), registry.MustCatalog(), testDeps())
	require.NoError(t, err)

	f, err := frame.NewDualChannel([]float32{0.25, -0.25}, []float32{1, 1}, 48000, 7, time.Now())
	require.NoError(t, err)
	require.NoError(t, g.Execute(f))

	stage, _ := g.Stage("out")
	latest, ok := stage.(*node.OutputStage).Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(7), latest.Sequence)
	assert.Equal(t, []float32{0.25, -0.25}, latest.Samples, "channel A through unity gain")

	stats := g.Stats()
	assert.Equal(t, uint64(1), stats["in"].Processed)
	assert.Equal(t, uint64(1), stats["out"].Processed)
	assert.Zero(t, stats["out"].Errors)
}

func TestDescriptorConcurrentWithSetDescriptor(t *testing.T) {
	g, err := graph.Build(chainDescriptor(), registry.MustCatalog(), testDeps())
	require.NoError(t, err)

	changed := chainDescriptor()
	changed.Nodes[2].Parameters = map[string]any{"gain_db": 6.0}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			g.SetDescriptor(changed)
			g.SetDescriptor(chainDescriptor())
		}
	}()

	for i := 0; i < 1000; i++ {
		d := g.Descriptor()
		assert.Len(t, d.Nodes, 4)
		assert.Len(t, d.Connections, 3)
	}
	<-done
}

func TestReconfigureNode(t *testing.T) {
	g, err := graph.Build(chainDescriptor(), registry.MustCatalog(), testDeps())
	require.NoError(t, err)

	outcome, err := g.ReconfigureNode("amp", map[string]any{"gain_db": 6.0})
	require.NoError(t, err)
	assert.Equal(t, node.OutcomeApplied, outcome)

	_, err = g.ReconfigureNode("ghost", map[string]any{})
	assert.Error(t, err)
}
