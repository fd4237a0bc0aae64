package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-leadhooks/core"
	"gopkg.in/yaml.v3"
)

// fileConfigProvider reads the YAML file at path. An empty path yields the defaults.
func fileConfigProvider(path string) (core.ConfigProvider, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return core.NewCfgxConfigProvider(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	values, err := decodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: values}), nil
}

func decodeConfig(raw []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}
