// Package config loads, defaults, and validates slipstream configuration.
//
// Configuration is TOML with one section per concern. Load layers file values
// over Default(), expands ~ paths, and validates the result; a missing file
// means defaults apply. The embedded sample_config.toml documents every knob
// and seeds `slipstream config init`.
package config
