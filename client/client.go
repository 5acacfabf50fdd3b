// Package client implements the Executor contract against a remote runner
// service: each test case is posted to the runner's /execute endpoint and
// the returned outcome is passed back to the core untouched.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arlberg/triage/internal/model"
)

type Outcome = model.Outcome
type TestCase = model.TestCase

type Client struct {
	http *http.Client
	host string
}

type RequestError struct {
	ResponseCode int
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.ResponseCode)
}

func New(host string, c *http.Client) Client {
	return Client{http: c, host: host}
}

// Execute implements the executor contract: exactly one test case in,
// exactly one outcome (or error) out.
func (c Client) Execute(ctx context.Context, tc model.TestCase) (model.Outcome, error) {
	body, err := json.Marshal(tc)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("marshaling test case: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/execute", bytes.NewReader(body))
	if err != nil {
		return model.Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return model.Outcome{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return model.Outcome{}, RequestError{ResponseCode: res.StatusCode}
	}

	var outcome model.Outcome

	if err = json.NewDecoder(res.Body).Decode(&outcome); err != nil {
		return model.Outcome{}, fmt.Errorf("decoding outcome: %w", err)
	}

	return outcome, nil
}
