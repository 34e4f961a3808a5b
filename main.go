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
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file in the working directory supplies TURFF_USERNAME and
	// TURFF_PASSWORD when present; absence is not an error.
	_ = godotenv.Load()

	var username, password, configPath string
	var daemon, webUI, debug, showVersion, validateOnly bool
	var days, webPort int

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.StringVar(&username, "username", os.Getenv("TURFF_USERNAME"), "Turff account email address")
	flag.StringVar(&password, "password", os.Getenv("TURFF_PASSWORD"), "Turff account password")
	flag.BoolVar(&daemon, "daemon", false, "Run in daemon mode (continuous monitoring)")
	flag.BoolVar(&webUI, "web", false, "Enable web status dashboard (daemon mode only)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&validateOnly, "validate", false, "Validate credentials and exit")
	flag.IntVar(&days, "days", 0, "Consumption aggregation window in days (default: 31)")
	flag.IntVar(&webPort, "port", WebDefaultPort, "Web dashboard port")
	flag.Parse()

	if showVersion {
		fmt.Printf("turffmon %s\n", GetVersion())
		fmt.Printf("User-Agent: %s\n", GetUserAgent())
		os.Exit(0)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		os.Exit(1)
	}
	config.ApplyDefaults()

	// Command line arguments and environment variables override config file
	if username != "" {
		config.Username = username
	}
	if password != "" {
		config.Password = password
	}
	if daemon {
		config.Daemon = true
	}
	if webUI {
		config.WebUI = true
	}
	if debug {
		config.Debug = true
	}
	if days > 0 {
		config.ConsumptionDays = days
	}
	if webPort != WebDefaultPort && webPort > 0 {
		config.WebPort = webPort
	}

	if config.Username == "" || config.Password == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -username=<email> -password=<password>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Or set environment variables: TURFF_USERNAME and TURFF_PASSWORD\n")
		fmt.Fprintf(os.Stderr, "Or use a configuration file with -config=<path>\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := NewLogger(config.Debug).WithUsername(config.Username)
	logger.Info("Starting Turff inventory monitor", "version", GetVersion())

	client := NewTurffClient(config.Username, config.Password, config.Debug)
	defer client.Close()

	if validateOnly {
		ok, err := client.ValidateCredentials()
		if err != nil {
			logger.Error("Could not reach the Turff API", "error", err)
			os.Exit(2)
		}
		if !ok {
			logger.UserMessage("Credentials invalid")
			os.Exit(1)
		}
		houseName, err := client.GetHouseName()
		if err != nil {
			logger.Error("Failed to fetch house", "error", err)
			os.Exit(2)
		}
		logger.UserMessage("Credentials valid, house: %s", houseName)
		return
	}

	monitor := NewInventoryMonitor(client, config.Username, logger)
	monitor.SetConsumptionDays(config.ConsumptionDays)

	if config.CheckInterval > 0 && config.CheckInterval != 10 {
		monitor.SetCheckInterval(time.Duration(config.CheckInterval) * time.Minute)
		logger.Info("Using custom check interval", "minutes", config.CheckInterval)
	}

	if config.WebUI && config.Daemon {
		monitor.EnableWebUI(config.WebPort)
		logger.Info("Web dashboard enabled", "url", fmt.Sprintf("http://localhost:%d", config.WebPort))
	} else if config.WebUI && !config.Daemon {
		logger.Warn("Web dashboard can only be enabled in daemon mode")
	}

	if config.Daemon {
		logger.Info("Running in daemon mode - continuous monitoring")
		monitor.Start()
	} else {
		logger.Info("Running in one-shot mode")
		if err := monitor.CheckOnce(); err != nil {
			logger.Error("Check failed", "error", err)
			os.Exit(1)
		}
	}
}
