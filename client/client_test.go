package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arlberg/triage/client"
	"github.com/arlberg/triage/internal/model"
)

func TestExecutePostsCaseAndDecodesOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/execute", r.URL.Path)

		var tc model.TestCase
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&tc))
		assert.Equal(t, "tc-1", tc.ID)

		json.NewEncoder(w).Encode(model.Outcome{
			TestCaseID:    tc.ID,
			Status:        model.OutcomePassed,
			ExecutionTime: 1.2,
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL, http.DefaultClient)

	outcome, err := c.Execute(context.Background(), model.TestCase{ID: "tc-1", Name: "login"})

	assert.NoError(t, err)
	assert.Equal(t, model.OutcomePassed, outcome.Status)
	assert.InDelta(t, 1.2, outcome.ExecutionTime, 0.0001)
}

func TestExecuteNonOKStatusIsARequestError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := client.New(srv.URL, http.DefaultClient)

	_, err := c.Execute(context.Background(), model.TestCase{ID: "tc-1"})

	var reqErr client.RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadGateway, reqErr.ResponseCode)
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := client.New(srv.URL, http.DefaultClient)

	_, err := c.Execute(ctx, model.TestCase{ID: "tc-1"})
	assert.Error(t, err)
}
