package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

// Transport failure kinds. The caller decides whether any of them is
// retryable; the adapter never retries.
var (
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	ErrGatewayHTTP        = errors.New("gateway returned non-2xx status")
	ErrGatewayResponse    = errors.New("gateway returned malformed response")
)

// StatusResult is the outcome of a transaction status inquiry.
type StatusResult struct {
	ResponseCode string
	Message      string
	Raw          map[string]string
}

// Settled reports whether the gateway considers the transaction paid.
func (s *StatusResult) Settled() bool {
	return s.ResponseCode == ResponseCodeSuccess
}

// CheckStatus asks the gateway for the current state of an order. Used by
// reconciliation to resolve transactions stuck in processing after a timeout.
func (c *Client) CheckStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	fields := url.Values{
		"pp_Version":    {"2.0"},
		"pp_TxnType":    {"MWALLET"},
		"pp_Language":   {"EN"},
		"pp_MerchantID": {c.cfg.MerchantID},
		"pp_Password":   {c.cfg.Password},
		fieldTxnRefNo:   {orderID},
	}

	raw, err := c.postForm(ctx, "/Payment/Inquiry", fields)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		ResponseCode: raw[fieldResponseCode],
		Message:      raw[fieldResponseMessage],
		Raw:          raw,
	}
	slog.Info("Transaction status inquiry", "order_id", orderID, "response_code", result.ResponseCode)
	return result, nil
}

// PayoutResult is the outcome of a payout or bank withdrawal call that
// reached the gateway. Success=false means the gateway declined it.
type PayoutResult struct {
	Success      bool
	GatewayTxnID string
	Message      string
	Raw          map[string]string
}

// WithdrawToBank pushes accumulated commission to a bank account over the
// gateway's OTC rail.
func (c *Client) WithdrawToBank(ctx context.Context, amount decimal.Decimal, details domain.BankDetails) (*PayoutResult, error) {
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := c.now()
	refNo := "WDR" + now.Format(timestampLayout)

	fields := url.Values{
		"pp_Version":     {"2.0"},
		"pp_TxnType":     {"OTC"},
		"pp_Language":    {"EN"},
		"pp_MerchantID":  {c.cfg.MerchantID},
		"pp_Password":    {c.cfg.Password},
		fieldTxnRefNo:    {refNo},
		fieldAmount:      {strconv.FormatInt(domain.ToMinorUnits(amount), 10)},
		"pp_TxnCurrency": {"PKR"},
		"pp_TxnDateTime": {now.Format(timestampLayout)},
		"pp_BillReference": {"withdraw" + strconv.FormatInt(now.Unix(), 10)},
		"pp_Description": {"Commission Withdrawal"},
		"pp_BankID":      {details.BankID},
		"pp_AccountNo":   {details.AccountNumber},
		"pp_AccountTitle": {details.AccountTitle},
		"pp_CNIC":        {details.CNIC},
		"pp_ContactNo":   {details.Phone},
		"pp_Email":       {details.Email},
	}

	return c.doPayout(ctx, "/Payment/DoOTC", fields, "bank withdrawal")
}

// PayoutToWallet sends a P2P payout to a mobile wallet number.
func (c *Client) PayoutToWallet(ctx context.Context, amount decimal.Decimal, walletNumber, description string) (*PayoutResult, error) {
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := c.now()
	paisas := domain.ToMinorUnits(amount)
	refNo := "P2P" + now.Format(timestampLayout)
	txnTime := now.Format(timestampLayout)

	if description == "" {
		description = "Payout from RouteBase"
	}
	if len(description) > descriptionLimit {
		description = description[:descriptionLimit]
	}

	fields := url.Values{
		"pp_Version":           {"2.0"},
		"pp_TxnType":           {"MWALLET"},
		"pp_Language":          {"EN"},
		"pp_MerchantID":        {c.cfg.MerchantID},
		"pp_Password":          {c.cfg.Password},
		fieldTxnRefNo:          {refNo},
		fieldAmount:            {strconv.FormatInt(paisas, 10)},
		"pp_TxnCurrency":       {"PKR"},
		"pp_TxnDateTime":       {txnTime},
		"pp_BillReference":     {"payout" + strconv.FormatInt(now.Unix(), 10)},
		"pp_Description":       {description},
		"pp_TxnExpiryDateTime": {txnTime},
		"pp_ReturnURL":         {c.cfg.ReturnURL},
		"ppmpf_1":              {walletNumber},
		fieldSecureHash:        {c.requestHash(paisas, refNo, txnTime)},
	}

	return c.doPayout(ctx, "/Payment/DoP2P", fields, "wallet payout")
}

func (c *Client) doPayout(ctx context.Context, path string, fields url.Values, kind string) (*PayoutResult, error) {
	raw, err := c.postForm(ctx, path, fields)
	if err != nil {
		return nil, err
	}

	if raw[fieldResponseCode] == ResponseCodeSuccess {
		slog.Info("Gateway payout approved", "kind", kind, "gateway_txn_id", raw[fieldTxnRefNo])
		return &PayoutResult{
			Success:      true,
			GatewayTxnID: raw[fieldTxnRefNo],
			Message:      raw[fieldResponseMessage],
			Raw:          raw,
		}, nil
	}

	message := raw[fieldResponseMessage]
	if message == "" {
		message = kind + " failed"
	}
	slog.Warn("Gateway payout declined", "kind", kind, "response_code", raw[fieldResponseCode], "message", message)
	return &PayoutResult{
		Success: false,
		Message: message,
		Raw:     raw,
	}, nil
}

// postForm sends a form-encoded POST and decodes the JSON body. The three
// failure kinds stay distinguishable so callers can pick a recovery path.
func (c *Client) postForm(ctx context.Context, path string, fields url.Values) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(fields.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrGatewayHTTP, resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayResponse, err)
	}
	return raw, nil
}
