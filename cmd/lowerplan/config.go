// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/lowerexec/backends"
	"github.com/gomlx/lowerexec/backends/builtin"
	"github.com/gomlx/lowerexec/backends/cpu"
	"github.com/gomlx/lowerexec/pkg/compiler"
	"github.com/gomlx/lowerexec/pkg/ir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the content of the --config file. Fields that are not set keep the flag values.
type Config struct {
	Backends []BackendConfig `yaml:"backends"`
	Options  string          `yaml:"options"`
	Graph    string          `yaml:"graph"`
	Depth    *int            `yaml:"depth"`
	Batch    *int            `yaml:"batch"`
	NoColor  *bool           `yaml:"no_color"`
}

// BackendConfig configures one cpu backend.
type BackendConfig struct {
	ID      string    `yaml:"id"`
	Layout  ir.Layout `yaml:"layout"`
	Planner string    `yaml:"planner"`
	Threads int       `yaml:"threads"`
}

// LoadConfig reads the configuration file. An empty path returns an empty Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading configuration %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing configuration %q", path)
	}
	return cfg, nil
}

// apply sets the flag variables for the values present in the configuration and not set in the
// command line.
func (cfg Config) apply(cmd *cli.Command) {
	if len(cfg.Backends) > 0 && !cmd.IsSet("backend") {
		backendFlags = backendFlags[:0]
		for _, b := range cfg.Backends {
			backendFlags = append(backendFlags, b.String())
		}
	}
	if cfg.Options != "" && !cmd.IsSet("options") {
		optionsFlag = cfg.Options
	}
	if cfg.Graph != "" && !cmd.IsSet("graph") {
		graphName = cfg.Graph
	}
	if cfg.Depth != nil && !cmd.IsSet("depth") {
		depth = *cfg.Depth
	}
	if cfg.Batch != nil && !cmd.IsSet("batch") {
		batchSize = *cfg.Batch
	}
	if cfg.NoColor != nil && !cmd.IsSet("no-color") {
		noColor = *cfg.NoColor
	}
}

// String returns the --backend flag form of the configuration.
func (b BackendConfig) String() string {
	var layout string
	if b.Layout != ir.LayoutUnknown {
		layout = b.Layout.String()
	}
	parts := []string{b.ID, layout, b.Planner}
	if b.Threads != 0 {
		parts = append(parts, strconv.Itoa(b.Threads))
	}
	return strings.TrimRight(strings.Join(parts, ":"), ":")
}

// parseBackendFlag parses id[:layout[:planner[:threads]]].
func parseBackendFlag(value string) (cpu.Config, error) {
	parts := strings.Split(value, ":")
	if len(parts) > 4 || parts[0] == "" {
		return cpu.Config{}, errors.Errorf("invalid backend %q, expected id[:layout[:planner[:threads]]]", value)
	}
	config := cpu.Config{ID: parts[0]}
	if len(parts) > 1 && parts[1] != "" {
		layout, err := ir.LayoutString(parts[1])
		if err != nil {
			return config, errors.WithMessagef(err, "backend %q", value)
		}
		config.PreferredLayout = layout
	}
	if len(parts) > 2 {
		config.Planner = parts[2]
	}
	if len(parts) > 3 {
		threads, err := strconv.Atoi(parts[3])
		if err != nil {
			return config, errors.Wrapf(err, "number of threads of backend %q", value)
		}
		config.NumThreads = threads
	}
	return config, nil
}

// newManager creates the builtin backend and one cpu backend per --backend value.
func newManager(values []string) (*backends.Manager, error) {
	compute := make([]backends.Backend, 0, len(values))
	for _, value := range values {
		config, err := parseBackendFlag(value)
		if err != nil {
			return nil, err
		}
		backend, err := cpu.New(config)
		if err != nil {
			return nil, err
		}
		compute = append(compute, backend)
	}
	return backends.NewManager(builtin.New(), compute...)
}

// compileOptions returns the options of $LOWEREXEC_CONFIG, overridden by the --options flag.
func compileOptions(config string) (compiler.Options, error) {
	options, err := compiler.OptionsFromEnv()
	if err != nil {
		return options, err
	}
	if config == "" {
		return options, nil
	}
	envConfig := os.Getenv(compiler.ConfigEnvVar)
	if envConfig != "" {
		config = envConfig + "," + config
	}
	return compiler.ParseOptions(config)
}
