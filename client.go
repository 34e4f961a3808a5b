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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// House is the house resource returned by api/house/{house_id}.
type House struct {
	Info   HouseInfo   `json:"info"`
	Tablet HouseTablet `json:"tablet"`
}

type HouseInfo struct {
	Name string `json:"name"`
}

type HouseTablet struct {
	Items []Product `json:"items"`
}

// Product is one tracked item on the house tablet. The UID is the stable
// identity across requests.
type Product struct {
	UID  string `json:"UID"`
	Name string `json:"name"`
}

type houseListResponse struct {
	Houses []struct {
		UID string `json:"UID"`
	} `json:"houses"`
}

type loginRequest struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type standsRequest struct {
	ItemUID string `json:"itemUID"`
}

type logRequest struct {
	ItemUID string `json:"itemUID"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

// standEntry is one row of the getStands response
type standEntry struct {
	Alias string  `json:"alias"`
	Stand float64 `json:"stand"`
}

// ConsumptionRecord is a single entry of the consumption log. Artificial
// entries are stock replenishments, not personal consumption.
type ConsumptionRecord struct {
	Alias      string  `json:"alias"`
	GroupName  string  `json:"groupName"`
	TimeStamp  string  `json:"time_stamp"`
	Amount     float64 `json:"amount"`
	Artificial bool    `json:"artificial"`
}

// userName returns the display name for the record, falling back to the
// group name when no alias is present.
func (r ConsumptionRecord) userName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.GroupName
}

// UserConsumption aggregates one user's consumption inside the requested
// window. Days maps day offset (0 = today) to the summed amount for that
// day. Week and Month are only set when the requested window spans at least
// a week or a month respectively.
type UserConsumption struct {
	Name  string          `json:"name"`
	Days  map[int]float64 `json:"days"`
	Week  *float64        `json:"week,omitempty"`
	Month *float64        `json:"month,omitempty"`
}

// TurffClient talks to the Turff household inventory API. It holds the
// session state (cookie and house id) for a single account.
//
// A TurffClient is not safe for concurrent use: simultaneous calls can race
// on the cookie and house id fields. Callers are expected to issue one
// request at a time and await its completion.
type TurffClient struct {
	Username string
	Password string
	BaseURL  string

	client     *http.Client
	ownsClient bool
	timeout    time.Duration
	cookie     string
	houseID    string
	debug      bool
	logger     *Logger
	metrics    *Metrics
}

// NewTurffClient creates a client with its own HTTP session. The session is
// released by Close.
func NewTurffClient(username, password string, debug bool) *TurffClient {
	c := newTurffClient(username, password, debug)
	c.client = &http.Client{}
	c.ownsClient = true
	return c
}

// NewTurffClientWithHTTPClient creates a client on top of a caller-owned
// HTTP session. The caller stays responsible for closing it; Close on the
// returned client is a no-op.
func NewTurffClientWithHTTPClient(username, password string, httpClient *http.Client, debug bool) *TurffClient {
	c := newTurffClient(username, password, debug)
	c.client = httpClient
	return c
}

func newTurffClient(username, password string, debug bool) *TurffClient {
	return &TurffClient{
		Username: username,
		Password: password,
		BaseURL:  APIBaseURL,
		timeout:  DefaultRequestTimeout,
		debug:    debug,
		logger:   NewLogger(debug).WithComponent("turff_client"),
	}
}

// SetRequestTimeout overrides the per-request timeout.
func (c *TurffClient) SetRequestTimeout(d time.Duration) {
	c.timeout = d
}

// SetMetrics attaches a metrics sink; API requests are observed on it.
func (c *TurffClient) SetMetrics(m *Metrics) {
	c.metrics = m
}

// Close releases the HTTP session if the client owns it.
func (c *TurffClient) Close() {
	if c.ownsClient && c.client != nil {
		c.client.CloseIdleConnections()
	}
}

// Connected reports whether both the session cookie and the house id are
// set. All data-fetching calls require this and connect lazily when it does
// not hold.
func (c *TurffClient) Connected() bool {
	return c.cookie != "" && c.houseID != ""
}

// ValidateCredentials attempts a full connect sequence. It returns false
// only when the login was rejected for bad credentials; connection and API
// failures propagate as errors. On success the session cookie and house id
// are left populated.
func (c *TurffClient) ValidateCredentials() (bool, error) {
	if err := c.connect(); err != nil {
		var credErr *CredentialsError
		if errors.As(err, &credErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetHouseName returns the display name of the account's house.
func (c *TurffClient) GetHouseName() (string, error) {
	house, err := c.getHouse()
	if err != nil {
		return "", err
	}
	return house.Info.Name, nil
}

// GetProducts returns the products tracked on the house tablet, in API
// order.
func (c *TurffClient) GetProducts() ([]Product, error) {
	house, err := c.getHouse()
	if err != nil {
		return nil, err
	}
	return house.Tablet.Items, nil
}

// GetProductBalance returns the current stand per user alias for a product.
// Duplicate aliases in the response are not deduplicated; the last entry
// wins.
func (c *TurffClient) GetProductBalance(productID string) (map[string]float64, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	var stands []standEntry
	uri := fmt.Sprintf(EndpointStands, c.houseID)
	if err := c.doJSON(http.MethodPost, uri, standsRequest{ItemUID: productID}, &stands); err != nil {
		return nil, err
	}

	balance := make(map[string]float64, len(stands))
	for _, entry := range stands {
		balance[entry.Alias] = entry.Stand
	}
	return balance, nil
}

// GetConsumptionHistory pages through the consumption log for a product and
// aggregates per-user daily totals for the last days days, counted back
// from today in the local calendar. Records flagged artificial contribute
// nothing. The result is ordered by first appearance of each user while
// walking the log newest page first.
func (c *TurffClient) GetConsumptionHistory(productID string, days int) ([]UserConsumption, error) {
	if days <= 0 {
		days = DefaultConsumptionDays
	}
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	buckets, order, err := c.pageConsumptionLog(productID, days)
	if err != nil {
		return nil, err
	}

	users := make([]UserConsumption, 0, len(order))
	for _, name := range order {
		user := UserConsumption{Name: name, Days: buckets[name]}
		if days >= WeekWindowDays {
			week := sumDayRange(user.Days, WeekWindowDays)
			user.Week = &week
		}
		if days >= MonthWindowDays {
			month := sumDayRange(user.Days, MonthWindowDays)
			user.Month = &month
		}
		users = append(users, user)
	}
	return users, nil
}

// pageConsumptionLog fetches log pages of fixed size at increasing offsets
// until the API runs out of records or a record falls outside the window.
// The record that triggers the stop is excluded; everything accumulated up
// to that point is kept.
func (c *TurffClient) pageConsumptionLog(productID string, days int) (map[string]map[int]float64, []string, error) {
	uri := fmt.Sprintf(EndpointLog, c.houseID)
	today := civilDate(time.Now())

	buckets := make(map[string]map[int]float64)
	var order []string

	for offset := 0; ; offset += LogPageSize {
		var page []ConsumptionRecord
		req := logRequest{ItemUID: productID, Limit: LogPageSize, Offset: offset}
		if err := c.doJSON(http.MethodPost, uri, req, &page); err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			// End of data.
			return buckets, order, nil
		}

		for _, record := range page {
			ts, err := parseLogTimestamp(record.TimeStamp)
			if err != nil {
				return nil, nil, err
			}
			age := int(today.Sub(civilDate(ts.Local())).Hours() / 24)
			if age >= days {
				return buckets, order, nil
			}
			if record.Artificial {
				continue
			}

			name := record.userName()
			if _, seen := buckets[name]; !seen {
				buckets[name] = make(map[int]float64)
				order = append(order, name)
			}
			buckets[name][age] += record.Amount
		}
	}
}

// sumDayRange sums the day buckets for offsets 0..window-1.
func sumDayRange(days map[int]float64, window int) float64 {
	var total float64
	for offset, amount := range days {
		if offset < window {
			total += amount
		}
	}
	return total
}

// civilDate truncates a moment to its calendar date, normalized to UTC
// midnight so that date arithmetic is immune to DST transitions.
func civilDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func parseLogTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse log timestamp %q: %w", raw, err)
	}
	return ts, nil
}

func (c *TurffClient) getHouse() (*House, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	var house House
	if err := c.doJSON(http.MethodGet, fmt.Sprintf(EndpointHouse, c.houseID), nil, &house); err != nil {
		return nil, err
	}
	return &house, nil
}

func (c *TurffClient) ensureConnected() error {
	if c.Connected() {
		return nil
	}
	return c.connect()
}

// connect logs in and resolves the house id, each only when its field is
// still missing.
func (c *TurffClient) connect() error {
	if c.cookie == "" {
		if err := c.login(); err != nil {
			return err
		}
	}
	if c.houseID == "" {
		if err := c.setHouseID(); err != nil {
			return err
		}
	}
	return nil
}

// login authenticates and stores the session cookie. The API signals bad
// credentials through a fixed response body rather than a status code; any
// other body counts as success.
func (c *TurffClient) login() error {
	payload := loginRequest{Type: "local", Email: c.Username, Password: c.Password}
	resp, err := c.do(http.MethodPost, EndpointLogin, payload)
	if err != nil {
		return err
	}

	if string(resp.Body) == InvalidCredentialsBody {
		return &CredentialsError{Message: "Turff credentials invalid"}
	}

	cookie := resp.Header.Get("Set-Cookie")
	if cookie == "" {
		return fmt.Errorf("login response carried no Set-Cookie header")
	}
	c.cookie = cookie
	c.logger.Debug("Logged in to Turff API")
	return nil
}

// setHouseID resolves the house id from the account's house list. The first
// house returned is assumed canonical; multi-house accounts are not
// supported.
func (c *TurffClient) setHouseID() error {
	var houses houseListResponse
	if err := c.doJSON(http.MethodGet, EndpointHouses, nil, &houses); err != nil {
		return err
	}
	if len(houses.Houses) == 0 {
		return fmt.Errorf("no houses associated with this account")
	}
	c.houseID = houses.Houses[0].UID
	c.logger.Debug("Resolved house id", "house_id", c.houseID)
	return nil
}

// apiResponse is a fully consumed HTTP response. login needs the headers,
// everything else only the body.
type apiResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// doJSON performs a request and decodes the JSON response body into out.
func (c *TurffClient) doJSON(method, uri string, payload, out interface{}) error {
	resp, err := c.do(method, uri, payload)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return fmt.Errorf("unexpected content type %q from %s", resp.Header.Get("Content-Type"), uri)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", uri, err)
	}
	return nil
}

// do performs a single request against the Turff API. Transport and timeout
// failures surface as *ConnectionError, 4xx/5xx statuses as *APIError with
// the decoded (or wrapped) response body. There is no retry.
func (c *TurffClient) do(method, uri string, payload interface{}) (*apiResponse, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	url := strings.TrimRight(c.BaseURL, "/") + "/" + uri
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", GetUserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.debugLogRequest(method, url, req.Header, reqBody)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime).Seconds()
	if err != nil {
		c.observeRequest(method, uri, 0, duration)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ConnectionError{Message: "timeout occurred while connecting to Turff API", Err: err}
		}
		return nil, &ConnectionError{Message: "error occurred while communicating with Turff API", Err: err}
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observeRequest(method, uri, resp.StatusCode, duration)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ConnectionError{Message: "timeout occurred while connecting to Turff API", Err: err}
		}
		return nil, &ConnectionError{Message: "error occurred while reading Turff API response", Err: err}
	}

	c.observeRequest(method, uri, resp.StatusCode, duration)
	c.logger.LogAPIRequest(method, uri, resp.StatusCode, duration)
	c.debugLogResponse(resp, contents, duration)

	if resp.StatusCode/100 == 4 || resp.StatusCode/100 == 5 {
		return nil, NewAPIError(resp.StatusCode, uri, errorBody(resp.Header.Get("Content-Type"), contents))
	}

	return &apiResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       contents,
	}, nil
}

// errorBody decodes a 4xx/5xx body: parsed JSON when the content type says
// so, otherwise the raw text under a message key.
func errorBody(contentType string, contents []byte) map[string]interface{} {
	if strings.HasPrefix(contentType, "application/json") {
		var body map[string]interface{}
		if err := json.Unmarshal(contents, &body); err == nil {
			return body
		}
	}
	return map[string]interface{}{"message": string(contents)}
}

func (c *TurffClient) observeRequest(method, endpoint string, status int, duration float64) {
	if c.metrics != nil {
		c.metrics.ObserveAPIRequest(method, endpoint, status, duration)
	}
}

// debugLogRequest logs detailed request information in debug mode
func (c *TurffClient) debugLogRequest(method, url string, headers http.Header, bodyBytes []byte) {
	if !c.debug {
		return
	}

	// Mask sensitive headers
	maskedHeaders := make(map[string]string)
	for key, values := range headers {
		if len(values) > 0 {
			if key == "Cookie" {
				val := values[0]
				if len(val) > 12 {
					maskedHeaders[key] = val[:6] + "..." + val[len(val)-4:]
				} else if val != "" {
					maskedHeaders[key] = "***"
				}
			} else {
				maskedHeaders[key] = values[0]
			}
		}
	}

	c.logger.Debug("→ HTTP Request",
		"method", method,
		"url", url,
		"headers", maskedHeaders,
	)

	if len(bodyBytes) > 0 {
		bodyStr := string(bodyBytes)
		if strings.Contains(bodyStr, `"password"`) {
			bodyStr = "*** login payload ***"
		} else if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "... (truncated)"
		}
		c.logger.Debug("  Request Body", "body", bodyStr)
	}
}

// debugLogResponse logs detailed response information in debug mode
func (c *TurffClient) debugLogResponse(resp *http.Response, body []byte, duration float64) {
	if !c.debug {
		return
	}

	c.logger.Debug("← HTTP Response",
		"status", resp.StatusCode,
		"status_text", resp.Status,
		"duration_ms", duration*1000,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if len(body) > 0 {
		bodyStr := string(body)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "... (truncated)"
		}
		c.logger.Debug("  Response Body", "body", bodyStr)
	}
}
