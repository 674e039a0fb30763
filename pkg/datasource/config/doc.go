/*
Package config provides typed access to loosely structured configuration.

# Overview

Config wraps a map[string]any decoded from YAML or JSON and exposes typed
accessors that return a default on a missing key or a type mismatch. It
backs session options (see datasource.OptionsFromConfig) and the per-alias
detector parameters.

	cfg, err := config.FromFile("session.yaml")
	if err != nil {
	    return err
	}
	mode := cfg.String("mode", "smd")
	attempts := cfg.Int("retry_attempts", 5)
	gains := cfg.FloatSlice("gain", nil)

Nested sections are read with Sub:

	ipm := cfg.Sub("detectors").Sub("Ipm2")

# Path Templates

Expander fills ${var} and $var placeholders. Data source specs provide the
variables instrument, experiment, run and mode:

	path, err := config.NewExpander(config.WithMissingAction(config.MissingError)).
	    Expand("${instrument}/${experiment}/scratch/nc/run${run}.db", spec.Vars())

# Watching

Watcher marks a settings file dirty when it changes on disk. Callers poll
Dirty between events and reload synchronously.

# Thread Safety

Config is safe for concurrent reads. Expander is safe for concurrent use
after construction. Watcher methods are safe to call from any goroutine.
*/
package config
