// Package zarinpal implements the payment gateway handshake against the
// ZarinPal REST API.
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/payment"
)

const (
	productionBaseURL = "https://api.zarinpal.com/pg/v4"
	sandboxBaseURL    = "https://sandbox.zarinpal.com/pg/v4"
	payURLFormat      = "%s/StartPay/%s"

	// statusOK is the gateway's code for a settled transaction.
	statusOK = 100
	// statusAlreadyVerified means the authority was settled by an earlier
	// verify call. Treated as success so a retried callback stays idempotent.
	statusAlreadyVerified = 101
)

// Client talks to the ZarinPal v4 REST API.
type Client struct {
	http       *http.Client
	baseURL    string
	payBaseURL string
	merchantID string
}

var _ payment.Gateway = (*Client)(nil)

// New creates a production Client for the given merchant.
func New(merchantID string) *Client {
	return newClient(merchantID, productionBaseURL, "https://www.zarinpal.com/pg")
}

// NewSandbox creates a Client against the sandbox environment.
func NewSandbox(merchantID string) *Client {
	return newClient(merchantID, sandboxBaseURL, "https://sandbox.zarinpal.com/pg")
}

// NewWithBaseURL creates a Client against a custom endpoint. Used by tests
// and local gateway emulators.
func NewWithBaseURL(merchantID, baseURL, payBaseURL string) *Client {
	return newClient(merchantID, baseURL, payBaseURL)
}

func newClient(merchantID, baseURL, payBaseURL string) *Client {
	return &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		payBaseURL: payBaseURL,
		merchantID: merchantID,
	}
}

type requestPayload struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callback_url"`
	Description string `json:"description"`
}

type verifyPayload struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type apiResponse struct {
	Data struct {
		Code      int    `json:"code"`
		Authority string `json:"authority"`
		RefID     int64  `json:"ref_id"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// Request opens a transaction and returns the authority handle plus the
// redirect URL for the buyer.
func (c *Client) Request(ctx context.Context, amount decimal.Decimal, callbackURL string) (string, string, error) {
	var resp apiResponse
	err := c.post(ctx, "/payment/request.json", requestPayload{
		MerchantID:  c.merchantID,
		Amount:      amount.IntPart(),
		CallbackURL: callbackURL,
		Description: "order payment",
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.Data.Code != statusOK {
		return "", "", errors.Errorf("gateway refused request: code %d", resp.Data.Code)
	}

	payURL := fmt.Sprintf(payURLFormat, c.payBaseURL, resp.Data.Authority)
	return resp.Data.Authority, payURL, nil
}

// Verify settles an authority. The amount must match the requested one.
func (c *Client) Verify(ctx context.Context, authority string, amount decimal.Decimal) (string, error) {
	var resp apiResponse
	err := c.post(ctx, "/payment/verify.json", verifyPayload{
		MerchantID: c.merchantID,
		Amount:     amount.IntPart(),
		Authority:  authority,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.Code != statusOK && resp.Data.Code != statusAlreadyVerified {
		return "", errors.Errorf("gateway refused verify: code %d", resp.Data.Code)
	}
	return fmt.Sprintf("%d", resp.Data.RefID), nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "gateway call")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("gateway returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
