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
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry and all instruments exposed on the
// /metrics endpoint. The client observes API requests through it; the
// monitor records sensor readings after each cycle.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests      *prometheus.CounterVec
	apiDuration      *prometheus.HistogramVec
	stockLevel       *prometheus.GaugeVec
	stockTotal       *prometheus.GaugeVec
	consumptionWeek  *prometheus.GaugeVec
	consumptionMonth *prometheus.GaugeVec
	lastCheck        prometheus.Gauge
	up               prometheus.Gauge
}

// NewMetrics creates a registry with all turffmon instruments registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turffmon_api_requests_total",
			Help: "Total number of Turff API requests by endpoint, method and status code.",
		}, []string{"endpoint", "method", "status"}),
		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "turffmon_api_request_duration_seconds",
			Help:    "Turff API request duration by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		stockLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turffmon_product_stock",
			Help: "Current stand per product and user.",
		}, []string{"product", "user"}),
		stockTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turffmon_product_stock_total",
			Help: "Sum of all user stands per product.",
		}, []string{"product"}),
		consumptionWeek: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turffmon_consumption_week",
			Help: "Consumption over the last 7 days per product and user.",
		}, []string{"product", "user"}),
		consumptionMonth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turffmon_consumption_month",
			Help: "Consumption over the last 31 days per product and user.",
		}, []string{"product", "user"}),
		lastCheck: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turffmon_last_check_timestamp_seconds",
			Help: "Unix timestamp of the last completed refresh cycle.",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turffmon_up",
			Help: "Whether the monitor is up and running.",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "turffmon_build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": GetVersion()},
	}, func() float64 { return 1 })

	m.up.Set(1)
	return m
}

// ObserveAPIRequest records one API request. A status of 0 means the
// request never produced a response (transport failure or timeout).
func (m *Metrics) ObserveAPIRequest(method, endpoint string, status int, duration float64) {
	m.apiRequests.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordBalance publishes a product's stock reading.
func (m *Metrics) RecordBalance(productName string, balance map[string]float64) {
	var total float64
	for user, stand := range balance {
		m.stockLevel.WithLabelValues(productName, user).Set(stand)
		total += stand
	}
	m.stockTotal.WithLabelValues(productName).Set(total)
}

// RecordConsumption publishes a product's consumption aggregates.
func (m *Metrics) RecordConsumption(productName string, users []UserConsumption) {
	for _, user := range users {
		if user.Week != nil {
			m.consumptionWeek.WithLabelValues(productName, user.Name).Set(*user.Week)
		}
		if user.Month != nil {
			m.consumptionMonth.WithLabelValues(productName, user.Name).Set(*user.Month)
		}
	}
}

// SetLastCheck records the end of a refresh cycle.
func (m *Metrics) SetLastCheck(t time.Time) {
	m.lastCheck.Set(float64(t.Unix()))
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
