package config

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
)

type optionsBuilder struct {
	configs []*Options
	err     error
}

func newOptionsBuilder() *optionsBuilder {
	return &optionsBuilder{
		configs: make([]*Options, 0, 3),
	}
}

// build merges the collected sources in order; mergo fills only zero
// fields, so earlier sources win.
func (b *optionsBuilder) build() (*Options, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building config: %w", b.err)
	}

	opts := new(Options)
	for _, cfg := range b.configs {
		if err := mergo.Merge(opts, cfg); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	return opts, opts.validate()
}

func (b *optionsBuilder) withEnv() *optionsBuilder {
	envCfg := &Options{}
	if err := parseEnv(envCfg); err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}

	b.configs = append(b.configs, envCfg)
	return b
}

// withJSON loads the JSON file if a path was supplied by an earlier source.
func (b *optionsBuilder) withJSON() *optionsBuilder {
	var jsonPath string
	for _, cfg := range b.configs {
		if cfg.JSONFilePath != "" {
			jsonPath = cfg.JSONFilePath
		}
	}
	if jsonPath == "" {
		return b
	}

	jsonCfg, err := parseJSON(jsonPath)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	b.configs = append(b.configs, jsonCfg)
	return b
}

func (b *optionsBuilder) withDefaults() *optionsBuilder {
	b.configs = append(b.configs, defaults())
	return b
}
