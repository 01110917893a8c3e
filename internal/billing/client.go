package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibuc-edu/transition-api/internal/models"
	"github.com/ibuc-edu/transition-api/pkg/config"
)

// Client talks to the external billing collaborator. The engine only ever
// requests that a charge be created; the billing record itself is owned by
// the collaborator.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs a billing client from configuration.
func NewClient(cfg config.BillingConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type chargeResponse struct {
	ID string `json:"id"`
}

// CreateCharge asks the billing service for one charge and returns the
// resulting charge id. Failures are transient from the engine's point of
// view; callers decide whether to record them for reconciliation.
func (c *Client) CreateCharge(ctx context.Context, req models.ChargeRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cobrancas", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("billing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("billing returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var charge chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return "", fmt.Errorf("decode charge response: %w", err)
	}

	c.logger.Debug("charge created",
		zap.String("turma_id", req.CohortID),
		zap.String("aluno_id", req.StudentID),
		zap.String("charge_id", charge.ID),
		zap.Duration("latency", time.Since(start)),
	)
	return charge.ID, nil
}
