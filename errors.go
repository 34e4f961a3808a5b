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
)

// ConnectionError represents a timeout or transport failure reaching the
// Turff API. It is never retried internally; it surfaces to the caller
// immediately.
type ConnectionError struct {
	Message string
	Err     error // Underlying error if any
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error: %s (caused by: %v)", e.Message, e.Err)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CredentialsError represents a login attempt rejected by the known
// invalid-credentials response body. ValidateCredentials converts it into a
// boolean instead of propagating.
type CredentialsError struct {
	Message string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("credentials error: %s", e.Message)
}

// APIError represents any HTTP 4xx/5xx response from the Turff API that is
// not specifically a credentials failure. Body holds the parsed JSON error
// body, or the raw text under a message key.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       map[string]interface{}
	Err        error
}

func (e *APIError) Error() string {
	if len(e.Body) > 0 {
		if encoded, err := json.Marshal(e.Body); err == nil {
			return fmt.Sprintf("API error (%d) at %s: %s", e.StatusCode, e.Endpoint, encoded)
		}
	}
	return fmt.Sprintf("API error (%d) at %s", e.StatusCode, e.Endpoint)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError carrying the decoded response body
func NewAPIError(statusCode int, endpoint string, body map[string]interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Body:       body,
	}
}

// ValidationError represents configuration or input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s (value: %v): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
