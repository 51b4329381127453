package config

// configSchema is the JSON Schema enforced on every configuration
// document before any semantic validation runs. Stage parameter documents
// stay free-form here; each stage factory validates its own parameters.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["acquisition", "graph"],
  "properties": {
    "version": {"type": "string"},
    "data_dir": {"type": "string"},
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error", ""]},
        "format": {"enum": ["text", "json", ""]}
      }
    },
    "acquisition": {
      "type": "object",
      "required": ["sample_rate", "frame_size"],
      "properties": {
        "sample_rate": {"type": "integer", "minimum": 1},
        "frame_size": {"type": "integer", "minimum": 16},
        "frames_per_second": {"type": "number", "minimum": 0},
        "simulation": {
          "type": "object",
          "properties": {
            "signal_frequency": {"type": "number", "minimum": 0},
            "amplitude": {"type": "number", "minimum": 0},
            "noise_level": {"type": "number", "minimum": 0},
            "seed": {"type": "integer"}
          }
        }
      }
    },
    "gateway": {
      "type": "object",
      "properties": {
        "addr": {"type": "string"}
      }
    },
    "nats": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "url": {"type": "string"}
      }
    },
    "graph": {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["id", "type"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "type": {"type": "string", "minLength": 1},
              "parameters": {"type": "object"}
            }
          }
        },
        "connections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
              "from": {"type": "string", "minLength": 1},
              "to": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    }
  }
}`
