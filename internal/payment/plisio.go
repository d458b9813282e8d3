// Package payment holds the Plisio gateway client. The gateway only ever
// touches the ledger through CreditWallet, keyed by its transaction id.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Invoice is a hosted payment page the user is sent to.
type Invoice struct {
	TransactionID string
	URL           string
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the gateway is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// CreateInvoice asks Plisio for a hosted invoice. orderNumber ties the
// payment back to the crediting operation; amount is in wallet units.
func (c *Client) CreateInvoice(ctx context.Context, orderNumber string, userID int64, amount int64, currency string) (*Invoice, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("payment gateway is not configured")
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("order_number", orderNumber)
	params.Set("order_name", fmt.Sprintf("Wallet top-up for %d", userID))
	params.Set("source_currency", currency)
	params.Set("source_amount", strconv.FormatInt(amount, 10))

	endpoint := c.baseURL + "/invoices/new?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build invoice request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoice request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read invoice response: %w", err)
	}

	var parsed struct {
		Status string `json:"status"`
		Data   struct {
			TxnID      string `json:"txn_id"`
			InvoiceURL string `json:"invoice_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w", err)
	}
	if parsed.Status != "success" || parsed.Data.TxnID == "" || parsed.Data.InvoiceURL == "" {
		return nil, fmt.Errorf("invalid invoice response: status=%s", parsed.Status)
	}

	return &Invoice{TransactionID: parsed.Data.TxnID, URL: parsed.Data.InvoiceURL}, nil
}

// WebhookEvent is the payment status callback payload. Deliveries may repeat;
// consumers must key any credit on TransactionID.
type WebhookEvent struct {
	TransactionID string `json:"txn_id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	UserID        int64  `json:"user_id,string"`
}

// Completed reports whether the event confirms a finished payment.
func (e WebhookEvent) Completed() bool {
	switch e.Status {
	case "completed", "mismatch":
		return true
	}
	return false
}

// ParseWebhook decodes and sanity-checks a webhook payload.
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	if evt.TransactionID == "" {
		return nil, fmt.Errorf("webhook missing txn_id")
	}
	return &evt, nil
}

// CreditAmount parses the paid amount into wallet units.
func (e WebhookEvent) CreditAmount() (int64, error) {
	amount, err := strconv.ParseFloat(e.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse webhook amount %q: %w", e.Amount, err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("webhook amount must be positive, got %s", e.Amount)
	}
	return int64(amount), nil
}
