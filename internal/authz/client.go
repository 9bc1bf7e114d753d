// Package authz is a client for the relation-tuple authorization service.
package authz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Subject identifies who is asking, e.g. {Type: "user", ID: email}.
type Subject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Resource identifies what is being asked about, e.g. {Type: "file", ID: fileID}.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Tuple asserts that Subject holds Relation on Resource.
type Tuple struct {
	Subject  Subject  `json:"subject"`
	Relation string   `json:"relation"`
	Resource Resource `json:"resource"`
}

// Client talks to the authorization service's REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the authorization service at baseURL,
// authenticating with the given API token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateTuples inserts the given relation tuples as one batch. The
// service treats re-inserting an existing tuple as a no-op, so the call
// is safe to repeat. An empty batch is skipped entirely.
func (c *Client) CreateTuples(tuples []Tuple) error {
	if len(tuples) == 0 {
		return nil
	}

	reqBody := struct {
		Tuples []Tuple `json:"tuples"`
	}{Tuples: tuples}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal tuples: %w", err)
	}

	resp, err := c.post("/v1/tuple/create", jsonData)
	if err != nil {
		return fmt.Errorf("tuple create request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tuple create returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Check asks whether subject may perform action on resource. Any
// transport failure, non-200 status, or malformed response is treated
// as not allowed. Callers cannot distinguish an outage from a denial;
// that is intentional.
func (c *Client) Check(subject Subject, action string, resource Resource) bool {
	reqBody := struct {
		Subject  Subject  `json:"subject"`
		Action   string   `json:"action"`
		Resource Resource `json:"resource"`
	}{Subject: subject, Action: action, Resource: resource}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		log.Printf("Error marshaling check request for %s on %s: %v", subject.ID, resource.ID, err)
		return false
	}

	resp, err := c.post("/v1/check", jsonData)
	if err != nil {
		log.Printf("Error checking permission for %s on %s: %v", subject.ID, resource.ID, err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Permission check returned status %d for %s on %s", resp.StatusCode, subject.ID, resource.ID)
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Error reading check response body: %v", err)
		return false
	}

	var result struct {
		Result *struct {
			Allowed bool `json:"allowed"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Printf("Error unmarshaling check response: %v", err)
		return false
	}
	if result.Result == nil {
		return false
	}

	return result.Result.Allowed
}

func (c *Client) post(path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.http.Do(req)
}
