// Package configs provides the embedded configuration template for storyvec.
//
// The template is written by `storyvec config init` and documents every key
// that internal/config understands. Values in it match NewConfig() defaults.
//
// Configuration precedence (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. The config file (--config, $CONFIG_PATH, or ./config.yml)
//  3. EMBEDDING_BACKEND and QDRANT_URL
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
