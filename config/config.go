// Package config defines the engine configuration document, its schema
// validation and the versioned store that owns the active configuration
// at runtime. The store is single-writer (the reload dispatcher) and
// multi-reader.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
)

// AcquisitionConfig controls the frame producer.
type AcquisitionConfig struct {
	SampleRate      uint32  `yaml:"sample_rate" json:"sample_rate"`
	FrameSize       int     `yaml:"frame_size" json:"frame_size"`
	FramesPerSecond float64 `yaml:"frames_per_second" json:"frames_per_second"`

	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
}

// SimulationConfig parameterizes the deterministic simulated source.
type SimulationConfig struct {
	SignalFrequency float64 `yaml:"signal_frequency" json:"signal_frequency"`
	Amplitude       float64 `yaml:"amplitude" json:"amplitude"`
	NoiseLevel      float64 `yaml:"noise_level" json:"noise_level"`
	Seed            int64   `yaml:"seed" json:"seed"`
}

// GatewayConfig controls the HTTP/websocket API server.
type GatewayConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// NATSConfig controls the optional NATS connection.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the full engine configuration document.
type Config struct {
	Version     string            `yaml:"version" json:"version"`
	DataDir     string            `yaml:"data_dir" json:"data_dir"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Acquisition AcquisitionConfig `yaml:"acquisition" json:"acquisition"`
	Gateway     GatewayConfig     `yaml:"gateway" json:"gateway"`
	NATS        NATSConfig        `yaml:"nats" json:"nats"`
	Graph       graph.Descriptor  `yaml:"graph" json:"graph"`
}

// Default returns a runnable configuration with a minimal passthrough
// graph.
func Default() *Config {
	return &Config{
		Version: "1",
		DataDir: "data",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Acquisition: AcquisitionConfig{
			SampleRate:      48000,
			FrameSize:       2048,
			FramesPerSecond: 20,
			Simulation: SimulationConfig{
				SignalFrequency: 2000,
				Amplitude:       0.8,
				NoiseLevel:      0.05,
				Seed:            1,
			},
		},
		Gateway: GatewayConfig{Addr: ":8080"},
		NATS:    NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222"},
		Graph: graph.Descriptor{
			Nodes: []graph.NodeDescriptor{
				{ID: "acquisition", Type: "input"},
				{ID: "select_a", Type: "channel_selector",
					Parameters: map[string]any{"target_channel": "ChannelA"}},
				{ID: "stream", Type: "output"},
			},
			Connections: []graph.Connection{
				{From: "acquisition", To: "select_a"},
				{From: "select_a", To: "stream"},
			},
		},
	}
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapValidation(err, "config", "load", "reading file")
	}
	return Parse(data)
}

// Parse decodes a YAML document and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapValidation(err, "config", "parse", "decoding YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs schema validation followed by the semantic checks the
// schema cannot express (graph topology, shape compatibility is checked
// at build time).
func (c *Config) Validate() error {
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.WrapValidation(err, "config", "validate", "canonicalizing document")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.WrapValidation(err, "config", "validate", "running schema validation")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return errors.WrapValidation(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, msgs),
			"config", "validate", "checking schema")
	}

	if err := c.Graph.Validate(); err != nil {
		return err
	}
	return nil
}
