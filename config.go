// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Daemon          bool   `yaml:"daemon"`
	CheckInterval   int    `yaml:"check_interval_minutes"`
	ConsumptionDays int    `yaml:"consumption_days"`
	WebUI           bool   `yaml:"web_ui"`
	WebPort         int    `yaml:"web_port"`
	Debug           bool   `yaml:"debug"`
}

func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		Daemon:          false,
		CheckInterval:   10,
		ConsumptionDays: DefaultConsumptionDays,
		WebUI:           false,
		WebPort:         WebDefaultPort,
		Debug:           false,
	}

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func (c *Config) ApplyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10
	}
	if c.ConsumptionDays <= 0 {
		c.ConsumptionDays = DefaultConsumptionDays
	}
	if c.WebPort <= 0 {
		c.WebPort = WebDefaultPort
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errors []string

	// Validate credentials
	if c.Username == "" {
		errors = append(errors, "username is required")
	} else if !strings.Contains(c.Username, "@") {
		errors = append(errors, fmt.Sprintf("username should be the email address of your Turff account, got: %s", c.Username))
	}

	if c.Password == "" {
		errors = append(errors, "password is required")
	}

	// Validate web port
	if c.WebPort < 1 || c.WebPort > 65535 {
		errors = append(errors, fmt.Sprintf("web port must be between 1-65535, got: %d", c.WebPort))
	}
	if c.WebPort < 1024 && c.WebPort != 0 {
		errors = append(errors, fmt.Sprintf("warning: port %d requires root privileges (consider using 8080 or higher)", c.WebPort))
	}

	// Validate check interval
	if c.CheckInterval < 1 {
		errors = append(errors, fmt.Sprintf("check interval must be at least 1 minute, got: %d", c.CheckInterval))
	}
	if c.CheckInterval > 1440 {
		errors = append(errors, fmt.Sprintf("check interval seems too long (%d minutes = %.1f hours), consider using a shorter interval", c.CheckInterval, float64(c.CheckInterval)/60.0))
	}

	// Validate consumption window
	if c.ConsumptionDays < 1 {
		errors = append(errors, fmt.Sprintf("consumption window must be at least 1 day, got: %d", c.ConsumptionDays))
	}
	if c.ConsumptionDays > 365 {
		errors = append(errors, fmt.Sprintf("consumption window seems too long (%d days), the log is paged two records at a time", c.ConsumptionDays))
	}

	// Logical validations
	if c.WebUI && !c.Daemon {
		errors = append(errors, "web UI requires daemon mode (use both -daemon and -web flags)")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
