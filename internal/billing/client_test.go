package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibuc-edu/transition-api/internal/models"
	"github.com/ibuc-edu/transition-api/pkg/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.BillingConfig{BaseURL: baseURL, Timeout: time.Second}, nil)
}

func TestClientCreateCharge(t *testing.T) {
	var received models.ChargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cobrancas", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "cob-123"}) //nolint:errcheck
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	id, err := client.CreateCharge(context.Background(), models.ChargeRequest{
		CohortID:    "turma-1",
		StudentID:   "a1",
		AmountCents: 5000,
	})
	require.NoError(t, err)

	assert.Equal(t, "cob-123", id)
	assert.Equal(t, "turma-1", received.CohortID)
	assert.Equal(t, "a1", received.StudentID)
	assert.Equal(t, int64(5000), received.AmountCents)
}

func TestClientCreateChargeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CreateCharge(context.Background(), models.ChargeRequest{StudentID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClientCreateChargeUnreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.CreateCharge(context.Background(), models.ChargeRequest{StudentID: "a1"})
	require.Error(t, err)
}
