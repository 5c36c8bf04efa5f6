package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"VeemFlow-MCP/sdk/go/veemflow"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/v1/tools/payment_prepare", func(w http.ResponseWriter, r *http.Request) {
		amount := 120.0
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"meta": veemflow.Meta{
				Tool:         "payment_prepare",
				RequestID:    "demo-req",
				TimestampUTC: time.Now().UTC().Format(time.RFC3339Nano),
			},
			"data": veemflow.PaymentDraft{
				DraftID:         "draft-demo",
				Amount:          &amount,
				Currency:        "USD",
				Purpose:         "consulting",
				FundingMethodID: "fm_1",
				Payee: veemflow.ResolvedPayee{
					ContactID:       "c_1",
					Name:            "Acme Corp",
					Email:           "billing@acme.example",
					MatchConfidence: 0.95,
				},
			},
		})
	})
	mux.HandleFunc("/mcp/v1/tools/payment_submit", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"meta": veemflow.Meta{Tool: "payment_submit", RequestID: "demo-req"},
			"data": veemflow.SubmitResult{PaymentID: "pay-demo", Status: "Pending"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := veemflow.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	draft, _, err := client.Prepare(ctx, veemflow.PrepareRequest{
		Command: "pay $120 to Acme Corp for consulting",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("prepared draft %s (needs_confirmation=%v)\n", draft.DraftID, draft.NeedsConfirmation)

	result, _, err := client.Submit(ctx, veemflow.SubmitRequest{Draft: draft})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted payment %s (status=%s)\n", result.PaymentID, result.Status)
}
