package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"
)

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event_type":"checkout.session.paid"}`)

	if !verifyWebhookSignature("s3cret", body, signBody("s3cret", string(body))) {
		t.Error("valid signature rejected")
	}
	if verifyWebhookSignature("s3cret", body, signBody("wrong", string(body))) {
		t.Error("signature from wrong secret accepted")
	}
	if verifyWebhookSignature("s3cret", []byte(`{"tampered":true}`), signBody("s3cret", string(body))) {
		t.Error("tampered body accepted")
	}
	if verifyWebhookSignature("s3cret", body, "") {
		t.Error("missing signature accepted")
	}
	if verifyWebhookSignature("", body, signBody("", string(body))) {
		t.Error("empty secret accepted")
	}
}

func TestProcessorWebhookRejectsUnsignedDelivery(t *testing.T) {
	h := NewOfferHandlers(nil)
	handler := h.ProcessorWebhookHandler("s3cret")

	body := `{"event_type":"checkout.session.paid","data":{"session_id":"sess_1","status":"paid"}}`

	// No signature header.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/processor", strings.NewReader(body))
	handler(rec, req)
	if rec.Code != 401 {
		t.Errorf("expected 401 for unsigned delivery, got %d", rec.Code)
	}

	// Wrong signature.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/webhooks/processor", strings.NewReader(body))
	req.Header.Set("X-Processor-Signature", signBody("other-secret", body))
	handler(rec, req)
	if rec.Code != 401 {
		t.Errorf("expected 401 for wrong signature, got %d", rec.Code)
	}

	// Signed but structurally empty payload.
	rec = httptest.NewRecorder()
	empty := `{}`
	req = httptest.NewRequest("POST", "/webhooks/processor", strings.NewReader(empty))
	req.Header.Set("X-Processor-Signature", signBody("s3cret", empty))
	handler(rec, req)
	if rec.Code != 400 {
		t.Errorf("expected 400 for empty payload, got %d", rec.Code)
	}
}
