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
	"html/template"
	"net/http"
	"sort"
	"time"
)

// StatusData is the JSON shape served on /api/status.
type StatusData struct {
	HouseName   string          `json:"house_name"`
	Products    []ProductStatus `json:"products"`
	LastCheck   time.Time       `json:"last_check"`
	LastUpdated time.Time       `json:"last_updated"`
	Version     string          `json:"version"`
}

type ProductStatus struct {
	UID         string             `json:"uid"`
	Name        string             `json:"name"`
	StockTotal  float64            `json:"stock_total"`
	Balance     map[string]float64 `json:"balance,omitempty"`
	Consumption []UserConsumption  `json:"consumption,omitempty"`
	BalanceAt   time.Time          `json:"balance_updated_at,omitempty"`
}

type WebServer struct {
	monitor *InventoryMonitor
	server  *http.Server
}

func NewWebServer(monitor *InventoryMonitor, port int) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		monitor: monitor,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/", ws.handleDashboard)
	mux.HandleFunc("/api/status", ws.handleStatusAPI)
	mux.HandleFunc("/healthz", ws.handleHealthz)
	mux.Handle("/metrics", monitor.metrics.Handler())

	return ws
}

func (ws *WebServer) Start() error {
	ws.monitor.logger.Info("Starting web server", "addr", ws.server.Addr)
	return ws.server.ListenAndServe()
}

func (ws *WebServer) statusData() StatusData {
	snapshot := ws.monitor.Snapshot()

	products := make([]ProductStatus, 0, len(snapshot.Products))
	for uid, name := range snapshot.Products {
		status := ProductStatus{UID: uid, Name: name}
		if reading, ok := snapshot.Balances[uid]; ok {
			status.StockTotal = reading.Total
			status.Balance = reading.Balance
			status.BalanceAt = reading.UpdatedAt
		}
		if reading, ok := snapshot.Consumption[uid]; ok {
			status.Consumption = reading.Users
		}
		products = append(products, status)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })

	return StatusData{
		HouseName:   snapshot.HouseName,
		Products:    products,
		LastCheck:   snapshot.LastCheck,
		LastUpdated: snapshot.LastUpdated,
		Version:     GetVersion(),
	}
}

func (ws *WebServer) handleStatusAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ws.statusData()); err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// Dashboard view model: one row per user per product, formatting done here
// rather than in the template.
type userRow struct {
	User  string
	Stand string
	Week  string
	Month string
}

type productView struct {
	Name       string
	StockTotal string
	Rows       []userRow
}

type dashboardData struct {
	HouseName      string
	LastCheck      string
	Version        string
	Products       []productView
	RefreshSeconds int
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<meta http-equiv="refresh" content="{{.RefreshSeconds}}">
	<title>turffmon - {{.HouseName}}</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #fafafa; }
		h1 { font-size: 1.4em; }
		table { border-collapse: collapse; margin-bottom: 2em; }
		th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
		th { background: #eee; }
		.meta { color: #666; font-size: 0.85em; }
	</style>
</head>
<body>
	<h1>{{.HouseName}}</h1>
	<p class="meta">Last check: {{.LastCheck}} &middot; turffmon {{.Version}}</p>
	{{range .Products}}
	<h2>{{.Name}} ({{.StockTotal}} in stock)</h2>
	<table>
		<tr><th>User</th><th>Stand</th><th>Week</th><th>Month</th></tr>
		{{range .Rows}}
		<tr><td>{{.User}}</td><td>{{.Stand}}</td><td>{{.Week}}</td><td>{{.Month}}</td></tr>
		{{end}}
	</table>
	{{end}}
</body>
</html>`))

func (ws *WebServer) dashboardData() dashboardData {
	status := ws.statusData()

	data := dashboardData{
		HouseName:      status.HouseName,
		Version:        status.Version,
		RefreshSeconds: int(WebDashboardRefreshInterval.Seconds()),
	}
	if !status.LastCheck.IsZero() {
		data.LastCheck = status.LastCheck.Format("2006-01-02 15:04:05")
	} else {
		data.LastCheck = "never"
	}

	for _, product := range status.Products {
		view := productView{
			Name:       product.Name,
			StockTotal: fmt.Sprintf("%.0f", product.StockTotal),
		}

		consumptionByUser := make(map[string]UserConsumption, len(product.Consumption))
		for _, user := range product.Consumption {
			consumptionByUser[user.Name] = user
		}

		users := make([]string, 0, len(product.Balance))
		for user := range product.Balance {
			users = append(users, user)
		}
		sort.Strings(users)

		for _, user := range users {
			row := userRow{
				User:  user,
				Stand: fmt.Sprintf("%.0f", product.Balance[user]),
			}
			if consumption, ok := consumptionByUser[user]; ok {
				if consumption.Week != nil {
					row.Week = fmt.Sprintf("%.0f", *consumption.Week)
				}
				if consumption.Month != nil {
					row.Month = fmt.Sprintf("%.0f", *consumption.Month)
				}
			}
			view.Rows = append(view.Rows, row)
		}
		data.Products = append(data.Products, view)
	}
	return data
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, ws.dashboardData()); err != nil {
		ws.monitor.logger.Error("Failed to render dashboard", "error", err)
	}
}
