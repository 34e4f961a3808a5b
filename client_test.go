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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionCookie = "connect.sid=s%3Aabc123; Path=/; HttpOnly"

// fakeTurff emulates the upstream API for client tests. Zero values serve a
// healthy single-house account with no products.
type fakeTurff struct {
	loginBody  string            // non-empty overrides the default login success body
	housesJSON string            // api/house response
	houseJSON  string            // api/house/{id} response
	standsJSON string            // getStands response
	logPages   map[int]string    // log response per requested offset; missing offsets serve []

	loginCalls  int32
	housesCalls int32
	logOffsets  []int
	lastCookie  string
	lastStands  standsRequest
}

func (f *fakeTurff) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.loginCalls, 1)
		assert.Equal(t, http.MethodPost, r.Method)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "local", req.Type)

		if f.loginBody != "" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, f.loginBody)
			return
		}
		w.Header().Set("Set-Cookie", testSessionCookie)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/api/house", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.housesCalls, 1)
		f.lastCookie = r.Header.Get("Cookie")
		body := f.housesJSON
		if body == "" {
			body = `{"houses": [{"UID": "house-1"}]}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	mux.HandleFunc("/api/house/house-1", func(w http.ResponseWriter, r *http.Request) {
		f.lastCookie = r.Header.Get("Cookie")
		body := f.houseJSON
		if body == "" {
			body = `{"info": {"name": "Test House"}, "tablet": {"items": []}}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	mux.HandleFunc("/api/tablet/house-1/getStands", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastStands))
		body := f.standsJSON
		if body == "" {
			body = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	mux.HandleFunc("/api/tablet/house-1/log", func(w http.ResponseWriter, r *http.Request) {
		var req logRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, LogPageSize, req.Limit)
		f.logOffsets = append(f.logOffsets, req.Offset)

		body, ok := f.logPages[req.Offset]
		if !ok {
			body = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	return mux
}

func newTestClient(t *testing.T, fake *fakeTurff) *TurffClient {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	client := NewTurffClient("user@example.com", "secret", false)
	t.Cleanup(client.Close)
	client.BaseURL = server.URL
	return client
}

// logStamp renders a timestamp the way the upstream log does.
func logStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func daysAgo(n int) time.Time {
	return time.Now().AddDate(0, 0, -n)
}

func logPage(records ...string) string {
	out := "["
	for i, r := range records {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out + "]"
}

func logRecord(alias string, amount float64, artificial bool, ts time.Time) string {
	return fmt.Sprintf(`{"alias": %q, "amount": %v, "artificial": %v, "time_stamp": %q}`,
		alias, amount, artificial, logStamp(ts))
}

func TestConnected(t *testing.T) {
	client := NewTurffClient("user@example.com", "secret", false)
	defer client.Close()

	assert.False(t, client.Connected())

	client.cookie = testSessionCookie
	assert.False(t, client.Connected(), "cookie alone is not connected")

	client.houseID = "house-1"
	assert.True(t, client.Connected())

	client.cookie = ""
	assert.False(t, client.Connected(), "house id alone is not connected")
}

func TestValidateCredentialsSuccess(t *testing.T) {
	fake := &fakeTurff{}
	client := newTestClient(t, fake)

	ok, err := client.ValidateCredentials()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, client.Connected())
	assert.Equal(t, "house-1", client.houseID)
	assert.Equal(t, testSessionCookie, client.cookie)
}

func TestValidateCredentialsInvalid(t *testing.T) {
	fake := &fakeTurff{loginBody: InvalidCredentialsBody}
	client := newTestClient(t, fake)

	ok, err := client.ValidateCredentials()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, client.Connected())
}

func TestValidateCredentialsDoesNotSwallowConnectionErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // connection refused from here on

	client := NewTurffClient("user@example.com", "secret", false)
	defer client.Close()
	client.BaseURL = server.URL

	_, err := client.ValidateCredentials()
	require.Error(t, err)

	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
}

func TestLazyConnectHappensOnce(t *testing.T) {
	fake := &fakeTurff{
		houseJSON: `{"info": {"name": "De Berg"}, "tablet": {"items": [{"UID": "p-1", "name": "Beer"}]}}`,
	}
	client := newTestClient(t, fake)

	name, err := client.GetHouseName()
	require.NoError(t, err)
	assert.Equal(t, "De Berg", name)

	products, err := client.GetProducts()
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, Product{UID: "p-1", Name: "Beer"}, products[0])

	assert.Equal(t, int32(1), fake.loginCalls, "login should happen once")
	assert.Equal(t, int32(1), fake.housesCalls, "house list should be resolved once")
	assert.Equal(t, testSessionCookie, fake.lastCookie, "session cookie must be replayed")
}

func TestGetProductBalance(t *testing.T) {
	fake := &fakeTurff{
		standsJSON: `[
			{"alias": "Anna", "stand": 3},
			{"alias": "Bram", "stand": -1.5},
			{"alias": "Anna", "stand": 7}
		]`,
	}
	client := newTestClient(t, fake)

	balance, err := client.GetProductBalance("p-1")
	require.NoError(t, err)

	assert.Equal(t, "p-1", fake.lastStands.ItemUID)
	assert.Len(t, balance, 2, "one entry per distinct alias")
	assert.Equal(t, 7.0, balance["Anna"], "last entry wins on duplicate alias")
	assert.Equal(t, -1.5, balance["Bram"])
}

func TestGetConsumptionHistoryAggregates(t *testing.T) {
	fake := &fakeTurff{
		logPages: map[int]string{
			0: logPage(
				logRecord("Anna", 2, false, daysAgo(0)),
				logRecord("Anna", 3, false, daysAgo(1)),
			),
		},
	}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 2)
	require.NoError(t, err)
	require.Len(t, users, 1)

	anna := users[0]
	assert.Equal(t, "Anna", anna.Name)
	assert.Equal(t, 2.0, anna.Days[0])
	assert.Equal(t, 3.0, anna.Days[1])
	assert.Nil(t, anna.Week, "window of 2 days has no week total")
	assert.Nil(t, anna.Month)
}

func TestGetConsumptionHistoryWeekAndMonth(t *testing.T) {
	fake := &fakeTurff{
		logPages: map[int]string{
			0: logPage(
				logRecord("Anna", 2, false, daysAgo(0)),
				logRecord("Anna", 3, false, daysAgo(3)),
			),
			2: logPage(
				logRecord("Anna", 5, false, daysAgo(8)),
				logRecord("Bram", 1, false, daysAgo(0)),
			),
		},
	}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 31)
	require.NoError(t, err)
	require.Len(t, users, 2)

	byName := make(map[string]UserConsumption)
	for _, u := range users {
		byName[u.Name] = u
	}

	anna := byName["Anna"]
	require.NotNil(t, anna.Week)
	require.NotNil(t, anna.Month)
	assert.Equal(t, 5.0, *anna.Week, "only offsets 0-6 count toward the week")
	assert.Equal(t, 10.0, *anna.Month)

	bram := byName["Bram"]
	require.NotNil(t, bram.Week)
	require.NotNil(t, bram.Month)
	assert.Equal(t, 1.0, *bram.Week)
	assert.Equal(t, 1.0, *bram.Month)

	// First appearance order across pages.
	assert.Equal(t, "Anna", users[0].Name)
	assert.Equal(t, "Bram", users[1].Name)
}

func TestGetConsumptionHistoryStopsAtWindow(t *testing.T) {
	fake := &fakeTurff{
		logPages: map[int]string{
			0: logPage(
				logRecord("Anna", 2, false, daysAgo(0)),
				logRecord("Bram", 3, false, daysAgo(1)),
			),
			2: logPage(
				logRecord("Anna", 9, false, daysAgo(5)), // outside the 2-day window
				logRecord("Carl", 1, false, daysAgo(0)),
			),
		},
	}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 2)
	require.NoError(t, err)

	byName := make(map[string]UserConsumption)
	for _, u := range users {
		byName[u.Name] = u
	}
	assert.Len(t, users, 2)
	assert.Equal(t, 2.0, byName["Anna"].Days[0], "triggering record must not be counted")
	assert.Equal(t, 3.0, byName["Bram"].Days[1])
	assert.NotContains(t, byName, "Carl", "records after the stop are excluded")
	assert.Equal(t, []int{0, 2}, fake.logOffsets, "no further pages after the stop")
}

func TestGetConsumptionHistorySkipsArtificial(t *testing.T) {
	fake := &fakeTurff{
		logPages: map[int]string{
			0: logPage(
				logRecord("Anna", 24, true, daysAgo(0)), // restock
				logRecord("Anna", 2, false, daysAgo(0)),
			),
		},
	}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 7)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 2.0, users[0].Days[0], "artificial entries contribute nothing")
}

func TestGetConsumptionHistoryEmptyLog(t *testing.T) {
	fake := &fakeTurff{}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 31)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, []int{0}, fake.logOffsets)
}

func TestGetConsumptionHistoryGroupNameFallback(t *testing.T) {
	fake := &fakeTurff{
		logPages: map[int]string{
			0: logPage(
				fmt.Sprintf(`{"groupName": "Kitchen", "amount": 4, "artificial": false, "time_stamp": %q}`, logStamp(daysAgo(0))),
			),
		},
	}
	client := newTestClient(t, fake)

	users, err := client.GetConsumptionHistory("p-1", 7)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Kitchen", users[0].Name)
	assert.Equal(t, 4.0, users[0].Days[0])
}

func TestAPIErrorWithJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": "boom"}`)
	}))
	t.Cleanup(server.Close)

	client := NewTurffClient("user@example.com", "secret", false)
	defer client.Close()
	client.BaseURL = server.URL

	_, err := client.ValidateCredentials()
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "boom"}, apiErr.Body)
}

func TestAPIErrorWithTextBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "not found")
	}))
	t.Cleanup(server.Close)

	client := NewTurffClient("user@example.com", "secret", false)
	defer client.Close()
	client.BaseURL = server.URL

	_, err := client.GetProductBalance("p-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, map[string]interface{}{"message": "not found"}, apiErr.Body)
}

func TestRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := NewTurffClient("user@example.com", "secret", false)
	defer client.Close()
	client.BaseURL = server.URL
	client.SetRequestTimeout(50 * time.Millisecond)

	_, err := client.GetHouseName()
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSessionOwnership(t *testing.T) {
	owned := NewTurffClient("user@example.com", "secret", false)
	assert.True(t, owned.ownsClient)
	owned.Close()

	borrowed := NewTurffClientWithHTTPClient("user@example.com", "secret", &http.Client{}, false)
	assert.False(t, borrowed.ownsClient)
	borrowed.Close() // no-op on a borrowed session
}

func TestNoHousesOnAccount(t *testing.T) {
	fake := &fakeTurff{housesJSON: `{"houses": []}`}
	client := newTestClient(t, fake)

	_, err := client.GetProducts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no houses")
}

func TestNewTurffClientDefaults(t *testing.T) {
	client := NewTurffClient("user@example.com", "secret", true)
	defer client.Close()

	assert.Equal(t, "user@example.com", client.Username)
	assert.Equal(t, "secret", client.Password)
	assert.Equal(t, APIBaseURL, client.BaseURL)
	assert.Equal(t, DefaultRequestTimeout, client.timeout)
	assert.True(t, client.debug)
	assert.NotNil(t, client.client)
}
