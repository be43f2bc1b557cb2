/*
 * Copyright 2025 Axioforce Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads client configuration from a JSON file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
)

const (
	// EnvPrefix is prepended to every override variable, e.g. FLUX_HOST.
	EnvPrefix = "FLUX_"

	defaultHost        = "localhost"
	defaultHTTPPort    = 5000
	defaultDecayWindow = time.Second
)

// DefaultFallbackPorts are tried when port discovery misses.
var DefaultFallbackPorts = []int{3000}

// Config is the client configuration.
type Config struct {
	Host          string        `json:"host"`
	SocketPort    int           `json:"socket_port"`
	HTTPPort      int           `json:"http_port"`
	DecayWindow   Duration      `json:"decay_window"`
	FallbackPorts []int         `json:"fallback_ports"`
	Logging       logger.Config `json:"logging"`
}

// Duration unmarshals both JSON numbers (seconds) and Go duration strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, err)
		}

		*d = Duration(parsed)

		return nil
	}

	var asNumber float64
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}

	*d = Duration(time.Duration(asNumber * float64(time.Second)))

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Host:          defaultHost,
		HTTPPort:      defaultHTTPPort,
		DecayWindow:   Duration(defaultDecayWindow),
		FallbackPorts: append([]int(nil), DefaultFallbackPorts...),
	}
}

// Load reads the config file at path (optional) and applies environment
// overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = Duration(defaultDecayWindow)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "HOST"); v != "" {
		cfg.Host = v
	}

	if v, ok := envInt("SOCKET_PORT"); ok {
		cfg.SocketPort = v
	}

	if v, ok := envInt("HTTP_PORT"); ok {
		cfg.HTTPPort = v
	}

	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv(EnvPrefix + "DEBUG"); v == "1" || v == "true" {
		cfg.Logging.Debug = true
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}
