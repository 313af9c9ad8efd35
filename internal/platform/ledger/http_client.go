package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/workhub/escrow-backend/internal/observability"
	"github.com/workhub/escrow-backend/internal/pkg/ctxutil"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
	"github.com/workhub/escrow-backend/internal/utils"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv("LEDGER_BASE_URL")),
		APIKey:     strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
		Timeout:    time.Duration(utils.GetEnvAsInt("LEDGER_TIMEOUT_SECONDS", 15, nil)) * time.Second,
		MaxRetries: utils.GetEnvAsInt("LEDGER_MAX_RETRIES", 2, nil),
	}
}

func NewFromEnv(log *logger.Logger) (Gateway, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing LEDGER_BASE_URL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &httpGateway{
		log:        log.With("client", "LedgerGateway"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type httpGateway struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// --- wire types ---

type settleRequest struct {
	IntentID  string  `json:"intent_id"`
	JobID     string  `json:"job_id,omitempty"`
	EscrowRef string  `json:"escrow_ref,omitempty"`
	Payer     string  `json:"payer,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Bps       int     `json:"bps,omitempty"`
}

type settleResponse struct {
	TxRef     string `json:"tx_ref"`
	Duplicate bool   `json:"duplicate"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (g *httpGateway) Fund(ctx context.Context, req FundRequest) (*Settlement, error) {
	if req.Amount <= 0 {
		return nil, &RejectedError{Code: "bad_amount", Reason: "fund amount must be positive"}
	}
	return g.settle(ctx, req.IntentID.String(), "/v1/escrow/fund", settleRequest{
		IntentID: req.IntentID.String(),
		JobID:    req.JobID.String(),
		Payer:    req.Payer,
		Amount:   req.Amount,
	})
}

func (g *httpGateway) Payout(ctx context.Context, req PayoutRequest) (*Settlement, error) {
	if strings.TrimSpace(req.EscrowRef) == "" {
		return nil, &RejectedError{Code: "missing_escrow", Reason: "payout requires an escrow reference"}
	}
	return g.settle(ctx, req.IntentID.String(), "/v1/escrow/payout", settleRequest{
		IntentID:  req.IntentID.String(),
		EscrowRef: req.EscrowRef,
		Recipient: req.Recipient,
	})
}

func (g *httpGateway) Refund(ctx context.Context, req RefundRequest) (*Settlement, error) {
	if strings.TrimSpace(req.EscrowRef) == "" {
		return nil, &RejectedError{Code: "missing_escrow", Reason: "refund requires an escrow reference"}
	}
	if req.Bps <= 0 || req.Bps > 10000 {
		return nil, &RejectedError{Code: "bad_bps", Reason: "refund bps out of range"}
	}
	return g.settle(ctx, req.IntentID.String(), "/v1/escrow/refund", settleRequest{
		IntentID:  req.IntentID.String(),
		EscrowRef: req.EscrowRef,
		Recipient: req.Recipient,
		Bps:       req.Bps,
	})
}

func (g *httpGateway) Cancel(ctx context.Context, req CancelRequest) (*Settlement, error) {
	if strings.TrimSpace(req.EscrowRef) == "" {
		return nil, &RejectedError{Code: "missing_escrow", Reason: "cancel requires an escrow reference"}
	}
	return g.settle(ctx, req.IntentID.String(), "/v1/escrow/cancel", settleRequest{
		IntentID:  req.IntentID.String(),
		EscrowRef: req.EscrowRef,
	})
}

func (g *httpGateway) Penalize(ctx context.Context, req PenaltyRequest) (*Settlement, error) {
	if req.Bps <= 0 || req.Bps > 10000 {
		return nil, &RejectedError{Code: "bad_bps", Reason: "penalty bps out of range"}
	}
	return g.settle(ctx, req.IntentID.String(), "/v1/escrow/penalize", settleRequest{
		IntentID: req.IntentID.String(),
		JobID:    req.JobID.String(),
		Payer:    req.Payer,
		Bps:      req.Bps,
	})
}

func (g *httpGateway) settle(ctx context.Context, intentID, path string, body settleRequest) (*Settlement, error) {
	ctx, span := observability.Tracer().Start(ctx, "ledger"+strings.ReplaceAll(path, "/", "."),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()

	st, err := g.settleWithRetry(ctx, intentID, path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return st, err
}

func (g *httpGateway) settleWithRetry(ctx context.Context, intentID, path string, body settleRequest) (*Settlement, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		if attempt > 0 {
			g.log.Warn("ledger request retrying",
				"path", path,
				"attempt", attempt,
				"error", lastErr.Error(),
			)
			time.Sleep(backoff)
			backoff *= 2
		}

		st, retryable, err := g.doOnce(ctx, path, body)
		if err == nil {
			return st, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, wrapUnknown(intentID, lastErr)
}

// doOnce returns (settlement, retryable, err). Only transport failures
// and 5xx responses are retryable; retrying is safe because the ledger
// dedupes on intent id.
func (g *httpGateway) doOnce(ctx context.Context, path string, body settleRequest) (*Settlement, bool, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, false, &RejectedError{Code: "encode", Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, g.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, false, &RejectedError{Code: "request", Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, true, readErr
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("ledger http %d: %s", resp.StatusCode, truncate(string(raw)))
	}

	var wire settleResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		// A 2xx we cannot parse may still have settled.
		if resp.StatusCode < 300 {
			return nil, true, fmt.Errorf("ledger http %d: unparseable body", resp.StatusCode)
		}
		return nil, false, &RejectedError{Code: fmt.Sprintf("http_%d", resp.StatusCode), Reason: truncate(string(raw))}
	}

	if resp.StatusCode >= 300 {
		return nil, false, &RejectedError{Code: wire.Code, Reason: wire.Reason}
	}
	if strings.TrimSpace(wire.TxRef) == "" {
		return nil, true, fmt.Errorf("ledger http %d: missing tx_ref", resp.StatusCode)
	}
	return &Settlement{TxRef: wire.TxRef, Duplicate: wire.Duplicate}, false, nil
}

func wrapUnknown(intentID string, cause error) error {
	ue := &UnknownError{Cause: cause}
	if id, err := uuid.Parse(intentID); err == nil {
		ue.IntentID = id
	}
	return ue
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
