// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ControllerConfig selects and parameterizes the motion controller.
type ControllerConfig struct {
	// Type of the controller. Only "grbl" is supported.
	Type string `yaml:"type"`

	// Path of the serial device, e.g. /dev/ttyUSB0.
	Path string `yaml:"path"`

	// Baud rate of the link. 0 selects the standard 115200.
	Baud int `yaml:"baud"`
}

// ServerConfig holds the HTTP listen parameters.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Server     ServerConfig     `yaml:"server"`
}

// loadConfig reads and validates a YAML config file.
func loadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Controller.Type != "" && cfg.Controller.Type != "grbl" {
		return Config{}, fmt.Errorf("unsupported controller type %q", cfg.Controller.Type)
	}
	return cfg, nil
}

// addr renders the listen address, defaulting to port 9000 on all
// interfaces.
func (s ServerConfig) addr() string {
	port := s.Port
	if port == 0 {
		port = 9000
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}
