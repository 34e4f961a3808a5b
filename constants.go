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

import "time"

// Turff API settings
const (
	// APIBaseURL - Fixed host for the Turff API (HTTPS/443)
	APIBaseURL = "https://api.turff.nl"

	// DefaultRequestTimeout - Maximum time for a single HTTP request; there is no retry
	DefaultRequestTimeout = 10 * time.Second

	// InvalidCredentialsBody - Login response body signalling rejected credentials
	InvalidCredentialsBody = "Inlog gegevens kloppen niet"
)

// API endpoint paths, relative to APIBaseURL. The parameterized ones take
// the house id.
const (
	EndpointLogin  = "auth/auth/login"
	EndpointHouses = "api/house"
	EndpointHouse  = "api/house/%s"
	EndpointStands = "api/tablet/%s/getStands"
	EndpointLog    = "api/tablet/%s/log"
)

// Consumption log settings
const (
	// LogPageSize - Records fetched per consumption log page
	LogPageSize = 2

	// DefaultConsumptionDays - Default aggregation window in days
	DefaultConsumptionDays = 31

	// WeekWindowDays - Window size for the derived week total (day offsets 0-6)
	WeekWindowDays = 7

	// MonthWindowDays - Window size for the derived month total (day offsets 0-30)
	MonthWindowDays = 31
)

// Monitor settings
const (
	// MonitorDefaultCheckInterval - Default poll interval for sensor refreshes
	MonitorDefaultCheckInterval = 10 * time.Minute

	// ConsumptionUpdateInterval - Consumption sensors refresh at most this often
	ConsumptionUpdateInterval = 5 * time.Minute
)

// Web dashboard settings
const (
	// WebDashboardRefreshInterval - Auto-refresh interval for the dashboard (client-side)
	WebDashboardRefreshInterval = 30 * time.Second

	// WebDefaultPort - Default port for the status dashboard
	WebDefaultPort = 8080
)

// State management settings
const (
	// StateCleanupAge - Drop readings for products unseen for this long
	StateCleanupAge = 7 * 24 * time.Hour
)
