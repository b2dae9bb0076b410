package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/config"
	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

func testClient() *Client {
	c := NewClient(config.GatewayConfig{
		MerchantID:    "MC12345",
		Password:      "secret-pw",
		IntegritySalt: "salt-xyz",
		ReturnURL:     "https://example.com/return",
		Sandbox:       true,
	})
	c.now = func() time.Time {
		return time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	}
	return c
}

// signFields computes a valid callback hash the way the gateway does, so
// tests can fabricate authentic callbacks.
func signFields(salt string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "pp_SecureHash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := salt
	for _, k := range keys {
		if fields[k] != "" {
			s += "&" + fields[k]
		}
	}
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func validCallback(c *Client, orderID string) map[string]string {
	fields := map[string]string{
		"pp_TxnRefNo":        orderID,
		"pp_Amount":          "1000000", // 10000.00 in paisas
		"pp_ResponseCode":    "000",
		"pp_ResponseMessage": "Payment Successful",
		"pp_TxnCurrency":     "PKR",
	}
	fields["pp_SecureHash"] = signFields(c.cfg.IntegritySalt, fields)
	return fields
}

func TestCreatePaymentRequest(t *testing.T) {
	c := testClient()

	req, err := c.CreatePaymentRequest(
		decimal.RequireFromString("1234.56"), "PF01TESTORDER", "03001234567", "buyer@example.com", "Payment to Ali")
	if err != nil {
		t.Fatalf("CreatePaymentRequest: %v", err)
	}

	if req.RedirectURL != sandboxBaseURL+"/Payment/DoTransaction" {
		t.Errorf("redirect url: got %s", req.RedirectURL)
	}
	if got := req.Fields["pp_Amount"]; got != "123456" {
		t.Errorf("pp_Amount: got %s, want 123456 (paisas)", got)
	}
	if got := req.Fields["pp_TxnRefNo"]; got != "PF01TESTORDER" {
		t.Errorf("pp_TxnRefNo: got %s", got)
	}
	if got := req.Fields["pp_TxnDateTime"]; got != "20260830143000" {
		t.Errorf("pp_TxnDateTime: got %s", got)
	}
	if got := req.Fields["pp_TxnExpiryDateTime"]; got != "20260831143000" {
		t.Errorf("pp_TxnExpiryDateTime: got %s", got)
	}
	if got := req.Fields["pp_BillReference"]; got != "billref1TESTORDER" {
		t.Errorf("pp_BillReference: got %s", got)
	}
	if req.Fields["pp_SecureHash"] == "" {
		t.Error("pp_SecureHash is empty")
	}
	if req.Fields["ppmpf_1"] != "03001234567" {
		t.Errorf("ppmpf_1: got %s", req.Fields["ppmpf_1"])
	}
}

// The request signature must be reproducible bit-for-bit: same fields, same
// hash, every time. Field order is a wire-format contract.
func TestRequestSignatureIsDeterministic(t *testing.T) {
	c := testClient()

	first, err := c.CreatePaymentRequest(decimal.RequireFromString("500.00"), "PF01AAAA", "0300", "", "")
	if err != nil {
		t.Fatalf("CreatePaymentRequest: %v", err)
	}
	second, err := c.CreatePaymentRequest(decimal.RequireFromString("500.00"), "PF01AAAA", "0300", "", "")
	if err != nil {
		t.Fatalf("CreatePaymentRequest: %v", err)
	}

	if first.Fields["pp_SecureHash"] != second.Fields["pp_SecureHash"] {
		t.Errorf("signature not deterministic: %s vs %s",
			first.Fields["pp_SecureHash"], second.Fields["pp_SecureHash"])
	}
	if len(first.Fields["pp_SecureHash"]) != 64 {
		t.Errorf("signature length: got %d, want 64", len(first.Fields["pp_SecureHash"]))
	}
	if first.Fields["pp_SecureHash"] != strings.ToUpper(first.Fields["pp_SecureHash"]) {
		t.Error("signature is not uppercase hex")
	}
}

func TestCreatePaymentRequestTruncatesDescription(t *testing.T) {
	c := testClient()

	long := strings.Repeat("x", 300)
	req, err := c.CreatePaymentRequest(decimal.RequireFromString("100.00"), "PF01BBBB", "0300", "", long)
	if err != nil {
		t.Fatalf("CreatePaymentRequest: %v", err)
	}
	if got := len(req.Fields["pp_Description"]); got != descriptionLimit {
		t.Errorf("description length: got %d, want %d", got, descriptionLimit)
	}
}

func TestCreatePaymentRequestRejectsNonPositive(t *testing.T) {
	c := testClient()
	if _, err := c.CreatePaymentRequest(decimal.Zero, "PF01CCCC", "0300", "", ""); err != domain.ErrInvalidAmount {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestVerifyCallbackSuccess(t *testing.T) {
	c := testClient()
	fields := validCallback(c, "PF01ORDER1")

	result := c.VerifyCallback(fields)
	if !result.Success {
		t.Fatalf("verification failed: %s (%s)", result.Message, result.Reason)
	}
	if result.OrderID != "PF01ORDER1" {
		t.Errorf("order id: got %s", result.OrderID)
	}
	if !result.Amount.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("amount: got %s, want 10000.00", result.Amount)
	}
	if result.GatewayTxnID != "PF01ORDER1" {
		t.Errorf("gateway txn id: got %s", result.GatewayTxnID)
	}
}

func TestVerifyCallbackMissingField(t *testing.T) {
	c := testClient()

	for _, missing := range []string{"pp_TxnRefNo", "pp_Amount", "pp_ResponseCode", "pp_SecureHash"} {
		fields := validCallback(c, "PF01ORDER2")
		delete(fields, missing)

		result := c.VerifyCallback(fields)
		if result.Success {
			t.Errorf("missing %s: verification unexpectedly succeeded", missing)
		}
		if result.Reason != ReasonMissingField {
			t.Errorf("missing %s: reason got %s, want %s", missing, result.Reason, ReasonMissingField)
		}
	}
}

// Flipping any single character of any non-signature field must break the
// hash. A mismatch is a security rejection, not a data error.
func TestVerifyCallbackTamperDetection(t *testing.T) {
	c := testClient()

	for _, field := range []string{"pp_TxnRefNo", "pp_Amount", "pp_ResponseCode", "pp_ResponseMessage", "pp_TxnCurrency"} {
		fields := validCallback(c, "PF01ORDER3")

		v := []byte(fields[field])
		for i := range v {
			tampered := make([]byte, len(v))
			copy(tampered, v)
			if tampered[i] == 'X' {
				tampered[i] = 'Y'
			} else {
				tampered[i] = 'X'
			}
			fields[field] = string(tampered)

			result := c.VerifyCallback(fields)
			if result.Success {
				t.Fatalf("tampered %s[%d]: verification unexpectedly succeeded", field, i)
			}
			if result.Reason != ReasonHashMismatch {
				t.Fatalf("tampered %s[%d]: reason got %s, want %s", field, i, result.Reason, ReasonHashMismatch)
			}
		}
	}
}

func TestVerifyCallbackDecline(t *testing.T) {
	c := testClient()

	fields := map[string]string{
		"pp_TxnRefNo":        "PF01ORDER4",
		"pp_Amount":          "50000",
		"pp_ResponseCode":    "101",
		"pp_ResponseMessage": "Insufficient balance in wallet",
	}
	fields["pp_SecureHash"] = signFields(c.cfg.IntegritySalt, fields)

	result := c.VerifyCallback(fields)
	if result.Success {
		t.Fatal("declined payment verified as success")
	}
	if result.Reason != ReasonDeclined {
		t.Errorf("reason: got %s, want %s", result.Reason, ReasonDeclined)
	}
	if result.Message != "Insufficient balance in wallet" {
		t.Errorf("message: got %q", result.Message)
	}
	if result.ResponseCode != "101" {
		t.Errorf("response code: got %s", result.ResponseCode)
	}
}

func TestVerifyCallbackMalformedAmount(t *testing.T) {
	c := testClient()

	fields := map[string]string{
		"pp_TxnRefNo":     "PF01ORDER5",
		"pp_Amount":       "not-a-number",
		"pp_ResponseCode": "000",
	}
	fields["pp_SecureHash"] = signFields(c.cfg.IntegritySalt, fields)

	result := c.VerifyCallback(fields)
	if result.Success {
		t.Fatal("malformed amount verified as success")
	}
	if result.Reason != ReasonMalformed {
		t.Errorf("reason: got %s, want %s", result.Reason, ReasonMalformed)
	}
}

// Empty values are skipped in the callback hash, matching the gateway's
// construction.
func TestVerifyCallbackIgnoresEmptyFields(t *testing.T) {
	c := testClient()

	fields := validCallback(c, "PF01ORDER6")
	fields["ppmpf_3"] = ""

	result := c.VerifyCallback(fields)
	if !result.Success {
		t.Fatalf("verification failed with empty extra field: %s", result.Message)
	}
}
