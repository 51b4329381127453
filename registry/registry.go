// Package registry assembles the stage catalog from every built-in stage
// package. Importing it is the one place the full set of node types is
// spelled out.
package registry

import (
	"github.com/sctg-development/rust-photoacoustic-sub001/action"
	"github.com/sctg-development/rust-photoacoustic-sub001/computing"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// NewCatalog builds a catalog with all built-in stage types registered.
func NewCatalog() (*node.Catalog, error) {
	c := node.NewCatalog()

	registrations := []struct {
		tag     string
		factory node.Factory
	}{
		{node.TypeInput, node.NewInputStage},
		{node.TypeGain, node.NewGainStage},
		{node.TypeChannelSelector, node.NewChannelSelectorStage},
		{node.TypeChannelMixer, node.NewChannelMixerStage},
		{node.TypeFilter, node.NewFilterStage},
		{node.TypeDifferential, node.NewDifferentialStage},
		{node.TypeRecord, node.NewRecordStage},
		{node.TypeCustom, node.NewCustomStage},
		{node.TypeOutput, node.NewOutputStage},
		{computing.TypePeakFinder, computing.NewPeakFinderStage},
		{computing.TypeConcentration, computing.NewConcentrationStage},
		{action.TypeAction, action.NewStage},
	}

	for _, r := range registrations {
		if err := c.Register(r.tag, r.factory); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustCatalog builds the default catalog and panics on registration
// conflicts. Registration only fails on programmer error.
func MustCatalog() *node.Catalog {
	c, err := NewCatalog()
	if err != nil {
		panic(err)
	}
	return c
}
