package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadValidFile(t *testing.T) {
	doc := `
version: "1"
acquisition:
  sample_rate: 48000
  frame_size: 1024
graph:
  nodes:
    - id: in
      type: input
    - id: diff
      type: differential
    - id: out
      type: output
  connections:
    - {from: in, to: diff}
    - {from: diff, to: out}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), cfg.Acquisition.SampleRate)
	assert.Len(t, cfg.Graph.Nodes, 3)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing graph", "acquisition: {sample_rate: 48000, frame_size: 1024}"},
		{"frame size too small", `
acquisition: {sample_rate: 48000, frame_size: 2}
graph:
  nodes: [{id: in, type: input}]
`},
		{"node without type", `
acquisition: {sample_rate: 48000, frame_size: 1024}
graph:
  nodes: [{id: in}]
`},
		{"bad log level", `
logging: {level: verbose}
acquisition: {sample_rate: 48000, frame_size: 1024}
graph:
  nodes: [{id: in, type: input}]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsInvalidTopology(t *testing.T) {
	doc := `
acquisition: {sample_rate: 48000, frame_size: 1024}
graph:
  nodes:
    - {id: a, type: input}
    - {id: b, type: gain}
    - {id: c, type: gain}
  connections:
    - {from: b, to: c}
    - {from: c, to: b}
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err, "cycle must fail semantic validation")
}

func TestStoreRevisionsAndNotifications(t *testing.T) {
	store := NewStore(Default())

	_, rev := store.Current()
	assert.Equal(t, uint64(1), rev)

	updates := store.OnChange()

	next := Default()
	next.Version = "2"
	got := store.Replace(next)
	assert.Equal(t, uint64(2), got)

	select {
	case u := <-updates:
		assert.Equal(t, uint64(2), u.Revision)
		assert.Equal(t, "2", u.Config.Version)
	default:
		t.Fatal("expected a change notification")
	}
}

func TestStoreReplaceGraphKeepsRestOfConfig(t *testing.T) {
	store := NewStore(Default())

	desc := graph.Descriptor{
		Nodes: []graph.NodeDescriptor{{ID: "in", Type: "input"}},
	}
	rev := store.ReplaceGraph(desc)
	assert.Equal(t, uint64(2), rev)

	cfg, _ := store.Current()
	assert.Len(t, cfg.Graph.Nodes, 1)
	assert.Equal(t, uint32(48000), cfg.Acquisition.SampleRate, "non-graph fields preserved")
}

func TestStoreNotifyNeverBlocks(t *testing.T) {
	store := NewStore(Default())
	_ = store.OnChange() // never read

	for i := 0; i < 5; i++ {
		store.Replace(Default())
	}
	assert.Equal(t, uint64(6), store.Revision())
}
