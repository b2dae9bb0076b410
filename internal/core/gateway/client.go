package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/config"
	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

const (
	sandboxBaseURL    = "https://sandbox.jazzcash.com.pk/ApplicationAPI/API"
	productionBaseURL = "https://payments.jazzcash.com.pk/ApplicationAPI/API"

	// ResponseCodeSuccess is the gateway's approval sentinel.
	ResponseCodeSuccess = "000"

	timestampLayout  = "20060102150405"
	descriptionLimit = 100
	requestTimeout   = 30 * time.Second

	fieldTxnRefNo        = "pp_TxnRefNo"
	fieldAmount          = "pp_Amount"
	fieldResponseCode    = "pp_ResponseCode"
	fieldResponseMessage = "pp_ResponseMessage"
	fieldSecureHash      = "pp_SecureHash"
)

// Client talks to the JazzCash-style payment gateway. It builds signed
// outbound requests and verifies inbound callbacks; it never retries on its
// own — retry and reconciliation policy belong to the caller.
type Client struct {
	cfg     config.GatewayConfig
	baseURL string
	http    *http.Client
	now     func() time.Time
}

func NewClient(cfg config.GatewayConfig) *Client {
	baseURL := productionBaseURL
	if cfg.Sandbox {
		baseURL = sandboxBaseURL
		slog.Info("Using gateway sandbox")
	}
	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		now:     time.Now,
	}
}

// PaymentRequest is the signed field set the caller forwards to the buyer's
// browser as a form POST against RedirectURL.
type PaymentRequest struct {
	OrderID     string
	RedirectURL string
	Method      string
	Fields      map[string]string
}

// CreatePaymentRequest builds the outbound payment fields for an order.
// Amount is converted to paisas; the description is truncated to the
// gateway's limit; the secure hash covers the fixed outbound field order.
func (c *Client) CreatePaymentRequest(amount decimal.Decimal, orderID, customerPhone, customerEmail, description string) (*PaymentRequest, error) {
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	paisas := domain.ToMinorUnits(amount)
	now := c.now()
	txnTime := now.Format(timestampLayout)
	expiryTime := now.Add(24 * time.Hour).Format(timestampLayout)

	if description == "" {
		description = "Payment via RouteBase"
	}
	if len(description) > descriptionLimit {
		description = description[:descriptionLimit]
	}

	secureHash := c.requestHash(paisas, orderID, txnTime)

	fields := map[string]string{
		"pp_Version":           "2.0",
		"pp_TxnType":           "MWALLET",
		"pp_Language":          "EN",
		"pp_MerchantID":        c.cfg.MerchantID,
		"pp_Password":          c.cfg.Password,
		fieldTxnRefNo:          orderID,
		fieldAmount:            strconv.FormatInt(paisas, 10),
		"pp_TxnCurrency":       "PKR",
		"pp_TxnDateTime":       txnTime,
		"pp_BillReference":     "billref" + lastN(orderID, 10),
		"pp_Description":       description,
		"pp_TxnExpiryDateTime": expiryTime,
		"pp_ReturnURL":         c.cfg.ReturnURL,
		fieldSecureHash:        secureHash,
		"ppmpf_1":              customerPhone,
		"ppmpf_2":              customerEmail,
		"ppmpf_3":              "",
		"ppmpf_4":              "",
		"ppmpf_5":              "",
	}

	slog.Info("Created payment request", "order_id", orderID, "amount", amount)

	return &PaymentRequest{
		OrderID:     orderID,
		RedirectURL: c.baseURL + "/Payment/DoTransaction",
		Method:      http.MethodPost,
		Fields:      fields,
	}, nil
}

// requestHash signs the outbound request: uppercase hex SHA-256 over the
// integrity salt followed by the fixed, documented field order. The field
// order and literal values below are the gateway's wire contract — changing
// either breaks verification on their side.
func (c *Client) requestHash(paisas int64, orderID, timestamp string) string {
	var b strings.Builder
	b.WriteString(c.cfg.IntegritySalt)
	b.WriteString("&pp_Amount=" + strconv.FormatInt(paisas, 10))
	b.WriteString("&pp_BillReference=billref" + lastN(orderID, 10))
	b.WriteString("&pp_Description=Payment")
	b.WriteString("&pp_Language=EN")
	b.WriteString("&pp_MerchantID=" + c.cfg.MerchantID)
	b.WriteString("&pp_Password=" + c.cfg.Password)
	b.WriteString("&pp_ReturnURL=" + c.cfg.ReturnURL)
	b.WriteString("&pp_TxnCurrency=PKR")
	b.WriteString("&pp_TxnDateTime=" + timestamp)
	b.WriteString("&pp_TxnExpiryDateTime=" + timestamp)
	b.WriteString("&pp_TxnRefNo=" + orderID)
	b.WriteString("&pp_TxnType=MWALLET")
	b.WriteString("&pp_Version=2.0")
	return hashHex(b.String())
}

// FailureReason classifies why a callback was rejected.
type FailureReason string

const (
	ReasonMissingField FailureReason = "MISSING_FIELD"
	ReasonMalformed    FailureReason = "MALFORMED_FIELD"
	ReasonHashMismatch FailureReason = "HASH_MISMATCH"
	ReasonDeclined     FailureReason = "DECLINED"
)

// VerificationResult is the outcome of callback verification. On success,
// Amount is the authoritative settled amount reported by the gateway.
type VerificationResult struct {
	Success      bool
	OrderID      string
	Amount       decimal.Decimal
	ResponseCode string
	Message      string
	GatewayTxnID string
	Reason       FailureReason
	Raw          map[string]string
}

// VerifyCallback authenticates an inbound gateway callback.
//
// The callback hash differs from the request hash on purpose: inbound fields
// are sorted lexicographically by key and only non-empty values are joined
// (without key= prefixes), while outbound uses the fixed key=value order
// above. Both sides of the wire format are the gateway's, not ours.
func (c *Client) VerifyCallback(fields map[string]string) VerificationResult {
	for _, required := range []string{fieldTxnRefNo, fieldAmount, fieldResponseCode, fieldSecureHash} {
		if _, ok := fields[required]; !ok {
			slog.Warn("Callback missing required field", "field", required)
			return VerificationResult{
				Success: false,
				Reason:  ReasonMissingField,
				Message: "missing field: " + required,
				Raw:     fields,
			}
		}
	}

	orderID := fields[fieldTxnRefNo]
	receivedHash := fields[fieldSecureHash]
	expectedHash := c.callbackHash(fields)

	if !hmac.Equal([]byte(receivedHash), []byte(expectedHash)) {
		// Security failure, not a data error: someone sent us a callback we
		// did not co-sign. Logged distinctly so it can be alerted on.
		slog.Error("Callback hash mismatch", "order_id", orderID, "reason", ReasonHashMismatch)
		return VerificationResult{
			Success: false,
			OrderID: orderID,
			Reason:  ReasonHashMismatch,
			Message: "hash verification failed",
			Raw:     fields,
		}
	}

	paisas, err := strconv.ParseInt(fields[fieldAmount], 10, 64)
	if err != nil {
		return VerificationResult{
			Success: false,
			OrderID: orderID,
			Reason:  ReasonMalformed,
			Message: "unparseable amount: " + fields[fieldAmount],
			Raw:     fields,
		}
	}

	code := fields[fieldResponseCode]
	if code != ResponseCodeSuccess {
		message := fields[fieldResponseMessage]
		if message == "" {
			message = "Payment Failed"
		}
		slog.Warn("Payment declined by gateway", "order_id", orderID, "response_code", code)
		return VerificationResult{
			Success:      false,
			OrderID:      orderID,
			ResponseCode: code,
			Reason:       ReasonDeclined,
			Message:      message,
			Raw:          fields,
		}
	}

	amount := domain.FromMinorUnits(paisas)
	slog.Info("Payment callback verified", "order_id", orderID, "amount", amount)

	message := fields[fieldResponseMessage]
	if message == "" {
		message = "Payment Successful"
	}

	return VerificationResult{
		Success:      true,
		OrderID:      orderID,
		Amount:       amount,
		ResponseCode: code,
		Message:      message,
		GatewayTxnID: orderID,
		Raw:          fields,
	}
}

// callbackHash recomputes the inbound digest: salt, then every non-empty
// value except the hash itself, sorted by field name, joined with '&'.
func (c *Client) callbackHash(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == fieldSecureHash {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(c.cfg.IntegritySalt)
	for _, k := range keys {
		if v := fields[k]; v != "" {
			b.WriteString("&")
			b.WriteString(v)
		}
	}
	return hashHex(b.String())
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// String implements a terse form for logs.
func (r VerificationResult) String() string {
	return fmt.Sprintf("order=%s success=%t code=%s reason=%s", r.OrderID, r.Success, r.ResponseCode, r.Reason)
}
