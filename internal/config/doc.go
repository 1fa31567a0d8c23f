// Package config provides configuration loading and validation for the
// interpretation service. It reads YAML with ${VAR} expansion, fills omitted
// keys from defaults, validates each section and assembles the segmenter and
// pipeline settings from them.
package config
