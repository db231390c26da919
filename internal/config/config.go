package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "60s"-style strings in
// both JSON and YAML config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string        `json:"httpAddr" yaml:"httpAddr"`
	DataDir  string        `json:"dataDir" yaml:"dataDir"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Labeling LabelingConf  `json:"labeling" yaml:"labeling"`
	Outbox   OutboxConfig  `json:"outbox" yaml:"outbox"`
	Log      LogConfig     `json:"log" yaml:"log"`
}

// StorageConfig tunes the embedded store.
type StorageConfig struct {
	Fsync         string   `json:"fsync" yaml:"fsync"` // always | interval | never
	FsyncInterval Duration `json:"fsyncInterval" yaml:"fsyncInterval"`
}

// LabelingConf tunes the distribution engine.
type LabelingConf struct {
	MaxHolders     int      `json:"maxHolders" yaml:"maxHolders"`
	Quorum         int      `json:"quorum" yaml:"quorum"`
	Affirmative    string   `json:"affirmative" yaml:"affirmative"`
	LeaseTTL       Duration `json:"leaseTTL" yaml:"leaseTTL"`
	LeaseScan      Duration `json:"leaseScan" yaml:"leaseScan"`
	ReseedInterval Duration `json:"reseedInterval" yaml:"reseedInterval"`
}

// OutboxConfig tunes consensus notification delivery.
type OutboxConfig struct {
	ConsensusURL string   `json:"consensusUrl" yaml:"consensusUrl"`
	Buffer       int      `json:"buffer" yaml:"buffer"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
	MaxElapsed   Duration `json:"maxElapsed" yaml:"maxElapsed"`
}

// LogConfig tunes process logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		DataDir:  DefaultDataDir(),
		Storage: StorageConfig{
			Fsync:         "interval",
			FsyncInterval: Duration(5 * time.Second),
		},
		Labeling: LabelingConf{
			MaxHolders:     3,
			Quorum:         3,
			Affirmative:    "Yes",
			LeaseTTL:       Duration(60 * time.Second),
			LeaseScan:      Duration(time.Second),
			ReseedInterval: Duration(10 * time.Minute),
		},
		Outbox: OutboxConfig{
			Buffer:     256,
			Timeout:    Duration(10 * time.Second),
			MaxElapsed: Duration(2 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) layered
// over the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
