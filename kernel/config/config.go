// Package config loads the configuration a cmd/ driver binary needs:
// which engine backend to run, how often to cycle, and where the external
// queue and log store live. Grounded on the teacher's plain-struct,
// no-DSL configuration style (cmd/demo wires everything by hand in main);
// here the same fields are instead read from a YAML document via
// gopkg.in/yaml.v3 so a deployment can change them without a rebuild.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses as a Go duration string ("500ms", "2s") in YAML, since
// yaml.v3 has no built-in time.Duration support.
type Duration time.Duration

// AsDuration converts d to a time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level document a cmd/ driver loads at startup.
type Config struct {
	// PlanID names the plan this process drives, used as the key for
	// logstore and distributed-marshalling identity.
	PlanID string `yaml:"plan_id"`

	// CyclePeriod paces the cooperative cycle loop (§5).
	CyclePeriod Duration `yaml:"cycle_period"`

	Engine EngineConfig `yaml:"engine"`
	Queue  QueueConfig  `yaml:"queue"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig selects and configures the engine.Engine backend.
type EngineConfig struct {
	// Backend is "inmem" or "temporal".
	Backend string `yaml:"backend"`

	Temporal TemporalConfig `yaml:"temporal"`
}

// TemporalConfig configures kernel/engine/temporalengine.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// QueueConfig selects and configures the external-event queue.
type QueueConfig struct {
	// Backend is "mem" or "redis".
	Backend string `yaml:"backend"`

	MemCapacity int `yaml:"mem_capacity"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures kernel/queue's Redis-backed queue.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	Key  string `yaml:"key"`
}

// LogConfig selects and configures the persisted log store.
type LogConfig struct {
	// Backend is "inmem" or "mongo".
	Backend string `yaml:"backend"`

	Mongo MongoConfig `yaml:"mongo"`
}

// MongoConfig configures kernel/logstore/mongologstore.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Default returns a Config suitable for local single-process runs: the
// in-memory engine, in-memory queue, and in-memory log store.
func Default() Config {
	return Config{
		PlanID:      "default",
		CyclePeriod: Duration(time.Second),
		Engine:      EngineConfig{Backend: "inmem"},
		Queue:       QueueConfig{Backend: "mem", MemCapacity: 64},
		Log:         LogConfig{Backend: "inmem"},
	}
}

// Load reads and parses a YAML config document from path, defaulting
// unset fields from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = Duration(time.Second)
	}
	return cfg, nil
}
