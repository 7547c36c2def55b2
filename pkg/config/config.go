// Package config provides configuration for the reflector controller.
package config

import "fmt"

// Config holds the engine-consumed configuration for the controller.
// Process-bootstrap knobs (metrics/probe bind addresses, leader election)
// are not part of this record: they stay as cmd/reflector flags, in the
// teacher's style, since the engine never reads them.
type Config struct {
	// Watcher holds tuning for the watch-session engine.
	Watcher WatcherConfig `koanf:"watcher"`

	// Kubeconfig is an explicit path to a kubeconfig file. Empty means
	// fall back to in-cluster discovery, then $KUBECONFIG, then
	// ~/.kube/config.
	Kubeconfig string `koanf:"kubeconfig"`
}

// WatcherConfig tunes the watch-session engine (spec.md §3).
type WatcherConfig struct {
	// TimeoutSeconds bounds a single watch call before it is torn down
	// and a fresh session is started.
	TimeoutSeconds int `koanf:"timeout_seconds"`
	// QueueCapacity is the bounded event queue size between the watch
	// goroutine and the dispatch loop.
	QueueCapacity int `koanf:"queue_capacity"`
}

// Default returns the configuration used when neither a config file nor
// environment overrides are present.
func Default() Config {
	return Config{
		Watcher: WatcherConfig{
			TimeoutSeconds: 3600,
			QueueCapacity:  256,
		},
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Watcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("watcher.timeout_seconds must be positive, got %d", c.Watcher.TimeoutSeconds)
	}
	if c.Watcher.QueueCapacity <= 0 {
		return fmt.Errorf("watcher.queue_capacity must be positive, got %d", c.Watcher.QueueCapacity)
	}
	return nil
}
