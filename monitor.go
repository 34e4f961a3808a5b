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
	"sync"
	"time"
)

// InventoryMonitor periodically polls the Turff API and projects products
// into two sensors each: a stock sensor (sum of user balances, refreshed
// every cycle) and a consumption sensor (per-user aggregates, refreshed at
// most every ConsumptionUpdateInterval).
type InventoryMonitor struct {
	client          *TurffClient
	state           *AppState
	logger          *Logger
	metrics         *Metrics
	username        string
	checkInterval   time.Duration
	consumptionDays int
	stopCh          chan struct{}
	webServer       *WebServer

	// mu guards state: the web server reads it from its own goroutine.
	mu sync.RWMutex
}

func NewInventoryMonitor(client *TurffClient, username string, logger *Logger) *InventoryMonitor {
	state, err := LoadState(username)
	if err != nil {
		logger.Warn("Failed to load state, starting fresh", "error", err)
		state = newAppState()
	}

	metrics := NewMetrics()
	client.SetMetrics(metrics)

	return &InventoryMonitor{
		client:          client,
		state:           state,
		logger:          logger.WithComponent("monitor"),
		metrics:         metrics,
		username:        username,
		checkInterval:   MonitorDefaultCheckInterval,
		consumptionDays: DefaultConsumptionDays,
		stopCh:          make(chan struct{}),
	}
}

func (m *InventoryMonitor) SetCheckInterval(interval time.Duration) {
	m.checkInterval = interval
}

func (m *InventoryMonitor) SetConsumptionDays(days int) {
	m.consumptionDays = days
}

func (m *InventoryMonitor) EnableWebUI(port int) {
	m.webServer = NewWebServer(m, port)
}

// Start runs the poll loop until Stop is called. The first refresh happens
// immediately.
func (m *InventoryMonitor) Start() {
	m.logger.Info("Starting inventory monitoring", "check_interval", m.checkInterval)

	if m.webServer != nil {
		go func() {
			if err := m.webServer.Start(); err != nil {
				m.logger.Error("Web server error", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.refresh()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			m.logger.Info("Stopping inventory monitoring")
			m.client.Close()
			return
		}
	}
}

func (m *InventoryMonitor) Stop() {
	close(m.stopCh)
}

// CheckOnce validates the credentials, resolves the house and runs a single
// refresh cycle, printing the readings. Used in one-shot mode.
func (m *InventoryMonitor) CheckOnce() error {
	ok, err := m.client.ValidateCredentials()
	if err != nil {
		return err
	}
	if !ok {
		return &CredentialsError{Message: "Turff credentials invalid"}
	}

	houseName, err := m.client.GetHouseName()
	if err != nil {
		return err
	}
	m.logger.UserMessage("House: %s", houseName)

	m.refresh()

	snapshot := m.Snapshot()
	for uid, name := range snapshot.Products {
		if reading, ok := snapshot.Balances[uid]; ok {
			m.logger.UserMessage("%s: %.0f in stock", name, reading.Total)
			for user, stand := range reading.Balance {
				m.logger.UserMessage("  %s: %.0f", user, stand)
			}
		}
	}
	return nil
}

// refresh runs one full poll cycle. A failure on a single product is logged
// and does not abort the cycle.
func (m *InventoryMonitor) refresh() {
	m.logger.Debug("Refreshing sensors")

	houseName, err := m.client.GetHouseName()
	if err != nil {
		m.logger.LogAPIError(err, EndpointHouses)
		return
	}

	products, err := m.client.GetProducts()
	if err != nil {
		m.logger.LogAPIError(err, EndpointHouses)
		return
	}

	m.mu.Lock()
	m.state.HouseName = houseName
	m.state.CleanupStaleProducts(products)
	for _, product := range products {
		m.state.Products[product.UID] = product.Name
	}
	m.mu.Unlock()

	for _, product := range products {
		m.refreshStock(product)
		m.refreshConsumption(product)
	}

	now := time.Now()
	m.mu.Lock()
	m.state.LastCheck = now
	err = m.state.Save(m.username)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("Failed to save state", "error", err)
	}
	m.metrics.SetLastCheck(now)
}

// refreshStock updates the stock sensor: state is the sum of all user
// balances, the per-user map becomes the attributes.
func (m *InventoryMonitor) refreshStock(product Product) {
	balance, err := m.client.GetProductBalance(product.UID)
	if err != nil {
		m.logger.WithProduct(product.Name).LogAPIError(err, EndpointStands)
		return
	}

	var total float64
	for _, stand := range balance {
		total += stand
	}

	m.mu.Lock()
	m.state.Balances[product.UID] = &BalanceReading{
		ProductName: product.Name,
		Balance:     balance,
		Total:       total,
		UpdatedAt:   time.Now(),
	}
	m.mu.Unlock()

	m.metrics.RecordBalance(product.Name, balance)
	m.logger.Debug("Updated stock sensor", "product", product.Name, "total", total, "users", len(balance))
}

// refreshConsumption updates the consumption sensor, honoring the throttle:
// a reading younger than ConsumptionUpdateInterval is kept as-is.
func (m *InventoryMonitor) refreshConsumption(product Product) {
	m.mu.RLock()
	previous, ok := m.state.Consumption[product.UID]
	m.mu.RUnlock()
	if ok && m.state.IsCacheValid(previous.UpdatedAt, ConsumptionUpdateInterval) {
		m.logger.Debug("Consumption sensor throttled", "product", product.Name)
		return
	}

	users, err := m.client.GetConsumptionHistory(product.UID, m.consumptionDays)
	if err != nil {
		m.logger.WithProduct(product.Name).LogAPIError(err, EndpointLog)
		return
	}

	m.mu.Lock()
	m.state.Consumption[product.UID] = &ConsumptionReading{
		ProductName: product.Name,
		Users:       users,
		UpdatedAt:   time.Now(),
	}
	m.mu.Unlock()

	m.metrics.RecordConsumption(product.Name, users)
	m.logger.Debug("Updated consumption sensor", "product", product.Name, "users", len(users))
}

// Snapshot returns a copy of the current state for readers on other
// goroutines (the web server).
func (m *InventoryMonitor) Snapshot() AppState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := AppState{
		HouseName:   m.state.HouseName,
		Products:    make(map[string]string, len(m.state.Products)),
		Balances:    make(map[string]*BalanceReading, len(m.state.Balances)),
		Consumption: make(map[string]*ConsumptionReading, len(m.state.Consumption)),
		LastCheck:   m.state.LastCheck,
		LastUpdated: m.state.LastUpdated,
	}
	for uid, name := range m.state.Products {
		snapshot.Products[uid] = name
	}
	for uid, reading := range m.state.Balances {
		copied := *reading
		snapshot.Balances[uid] = &copied
	}
	for uid, reading := range m.state.Consumption {
		copied := *reading
		snapshot.Consumption[uid] = &copied
	}
	return snapshot
}
