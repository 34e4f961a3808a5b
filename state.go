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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BalanceReading is the last fetched stock reading for one product.
type BalanceReading struct {
	ProductName string             `json:"product_name"`
	Balance     map[string]float64 `json:"balance"`
	Total       float64            `json:"total"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ConsumptionReading is the last fetched consumption aggregate for one
// product.
type ConsumptionReading struct {
	ProductName string            `json:"product_name"`
	Users       []UserConsumption `json:"users"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AppState is the monitor's persisted state. It carries the last sensor
// readings so restarts do not lose the dashboard and so the consumption
// throttle holds across runs. The client's session (cookie, house id) is
// deliberately not persisted; it lives only in memory.
type AppState struct {
	HouseName   string                         `json:"house_name,omitempty"`
	Products    map[string]string              `json:"products"` // UID -> name
	Balances    map[string]*BalanceReading     `json:"balances"`
	Consumption map[string]*ConsumptionReading `json:"consumption"`
	LastCheck   time.Time                      `json:"last_check,omitempty"`
	LastUpdated time.Time                      `json:"last_updated"`
}

func newAppState() *AppState {
	return &AppState{
		Products:    make(map[string]string),
		Balances:    make(map[string]*BalanceReading),
		Consumption: make(map[string]*ConsumptionReading),
		LastUpdated: time.Now(),
	}
}

func getStateFilePath(username string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "turffmon")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use the account name in the filename to separate state per account
	safe := strings.NewReplacer("@", "_at_", "/", "_", string(filepath.Separator), "_").Replace(username)
	return filepath.Join(configDir, fmt.Sprintf("state_%s.json", safe)), nil
}

func LoadState(username string) (*AppState, error) {
	statePath, err := getStateFilePath(username)
	if err != nil {
		return nil, err
	}

	// If file doesn't exist, return empty state
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return newAppState(), nil
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	// Initialize maps if they're nil (for backward compatibility)
	if state.Products == nil {
		state.Products = make(map[string]string)
	}
	if state.Balances == nil {
		state.Balances = make(map[string]*BalanceReading)
	}
	if state.Consumption == nil {
		state.Consumption = make(map[string]*ConsumptionReading)
	}

	return &state, nil
}

func (s *AppState) Save(username string) error {
	statePath, err := getStateFilePath(username)
	if err != nil {
		return err
	}

	s.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(statePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

func (s *AppState) IsCacheValid(cacheTime time.Time, maxAge time.Duration) bool {
	return time.Since(cacheTime) < maxAge
}

// CleanupStaleProducts drops readings for products the API no longer
// reports, plus anything untouched for longer than StateCleanupAge.
func (s *AppState) CleanupStaleProducts(current []Product) {
	known := make(map[string]bool, len(current))
	for _, p := range current {
		known[p.UID] = true
	}

	for uid := range s.Products {
		if !known[uid] {
			delete(s.Products, uid)
			delete(s.Balances, uid)
			delete(s.Consumption, uid)
		}
	}
	for uid, reading := range s.Balances {
		if time.Since(reading.UpdatedAt) > StateCleanupAge {
			delete(s.Balances, uid)
		}
	}
	for uid, reading := range s.Consumption {
		if time.Since(reading.UpdatedAt) > StateCleanupAge {
			delete(s.Consumption, uid)
		}
	}
}
