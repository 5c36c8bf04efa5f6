package invoice

import (
	"encoding/json"
	"testing"
)

func TestExtractedInvoiceProcessableDefaultsTrue(t *testing.T) {
	var inv ExtractedInvoice
	if err := json.Unmarshal([]byte(`{"payee":{"name":"Acme"}}`), &inv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !inv.Processable {
		t.Fatal("processable must default to true when the key is absent")
	}
}

func TestExtractedInvoiceProcessableExplicitFalse(t *testing.T) {
	var inv ExtractedInvoice
	if err := json.Unmarshal([]byte(`{"processable":false,"reason":"not an invoice"}`), &inv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inv.Processable {
		t.Fatal("explicit false must be respected")
	}
	if inv.Reason != "not an invoice" {
		t.Fatalf("unexpected reason: %q", inv.Reason)
	}
}

func TestExtractedInvoiceRoundTripFields(t *testing.T) {
	payload := `{
		"processable": true,
		"payee": {"name": "Acme Corp", "email": "billing@acme.example"},
		"money": {"amount": 420.5, "currency": "USD"},
		"purpose": "consulting",
		"invoice_number": "INV-42",
		"confidence": {"amount": 0.9},
		"warnings": ["currency inferred from symbol"]
	}`
	var inv ExtractedInvoice
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inv.Payee.Email != "billing@acme.example" {
		t.Fatalf("unexpected payee: %+v", inv.Payee)
	}
	if inv.Money.Amount == nil || *inv.Money.Amount != 420.5 {
		t.Fatalf("unexpected amount: %v", inv.Money.Amount)
	}
	if inv.Confidence["amount"] != 0.9 {
		t.Fatalf("unexpected confidence: %v", inv.Confidence)
	}
}
