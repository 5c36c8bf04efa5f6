package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/invoice"
)

type fakeVeem struct {
	accountID      string
	contacts       map[string]any
	fundingMethods map[string]any
	createResponse map[string]any
	createErr      error

	contactCalls int
	fundingCalls int
	createCalls  int
	lastPayload  map[string]any
}

func (f *fakeVeem) AccountID() string { return f.accountID }

func (f *fakeVeem) GetAccount(context.Context) (map[string]any, error) {
	return map[string]any{"id": f.accountID}, nil
}

func (f *fakeVeem) ListContacts(context.Context) (map[string]any, error) {
	f.contactCalls++
	return f.contacts, nil
}

func (f *fakeVeem) ListFundingMethods(context.Context) (map[string]any, error) {
	f.fundingCalls++
	return f.fundingMethods, nil
}

func (f *fakeVeem) CreatePayment(_ context.Context, payload map[string]any) (map[string]any, error) {
	f.createCalls++
	f.lastPayload = payload
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResponse, nil
}

type fakeHistory struct {
	preferred string
	lookupErr error
	recorded  [][2]string
	recordErr error
}

func (f *fakeHistory) LastFundingMethodIDForPayee(context.Context, string) (string, error) {
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.preferred, nil
}

func (f *fakeHistory) RecordPayment(_ context.Context, email, fundingMethodID string) error {
	f.recorded = append(f.recorded, [2]string{email, fundingMethodID})
	return f.recordErr
}

type fakeSchedules struct {
	calls    int
	draft    json.RawMessage
	runAt    time.Time
	runAtRaw string
	result   *PaymentScheduleResult
	err      error
}

func (f *fakeSchedules) Create(_ context.Context, draft json.RawMessage, runAt time.Time, runAtRaw string) (*PaymentScheduleResult, error) {
	f.calls++
	f.draft = draft
	f.runAt = runAt
	f.runAtRaw = runAtRaw
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func defaultVeem() *fakeVeem {
	return &fakeVeem{
		accountID: "acct_1",
		contacts: map[string]any{"contacts": []any{
			map[string]any{"id": "c_1", "name": "Acme Corp", "email": "billing@acme.example"},
			map[string]any{"id": "c_2", "name": "Sam Smith", "email": "sam@example.com"},
		}},
		fundingMethods: map[string]any{"fundingMethods": []any{
			map[string]any{"id": "fm_1", "type": "bank"},
			map[string]any{"id": "fm_2", "type": "card"},
		}},
		createResponse: map[string]any{"id": " pay_1 ", "status": "Pending"},
	}
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestPrepareRequiresCommandOrInvoice(t *testing.T) {
	svc := NewService(defaultVeem(), nil, nil)

	_, err := svc.Prepare(context.Background(), PrepareParams{})
	if xerrors.CodeOf(err) != xerrors.CodeBadRequest {
		t.Fatalf("unexpected error: %v", err)
	}
	typed, _ := xerrors.From(err)
	if typed.Message() != "Provide either 'command' or 'invoice'." {
		t.Fatalf("unexpected message: %q", typed.Message())
	}
}

func TestPrepareFullCommandDraft(t *testing.T) {
	client := defaultVeem()
	history := &fakeHistory{preferred: "fm_2"}
	svc := NewService(client, history, nil)

	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Command: "Pay $420.50 to Acme Corp for consulting services",
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if draft.DraftID == "" || draft.IdempotencyKey == "" {
		t.Fatal("expected identifiers to be generated")
	}
	if draft.Amount == nil || *draft.Amount != 420.50 {
		t.Fatalf("unexpected amount: %v", draft.Amount)
	}
	if draft.Currency != "USD" {
		t.Fatalf("unexpected currency: %q", draft.Currency)
	}
	if draft.Purpose != "consulting services" {
		t.Fatalf("unexpected purpose: %q", draft.Purpose)
	}
	if draft.FundingMethodID != "fm_2" {
		t.Fatalf("expected history preference, got %q", draft.FundingMethodID)
	}
	if draft.Payee.ContactID != "c_1" {
		t.Fatalf("unexpected payee: %+v", draft.Payee)
	}
	if len(draft.MissingFields) != 0 {
		t.Fatalf("unexpected missing fields: %v", draft.MissingFields)
	}
	if !hasString(draft.Assumptions, "Defaulted currency to USD.") {
		t.Fatalf("expected currency assumption, got %v", draft.Assumptions)
	}
	if !hasString(draft.Assumptions, "Inferred funding method from past payments.") {
		t.Fatalf("expected funding assumption, got %v", draft.Assumptions)
	}
	if !draft.NeedsConfirmation {
		t.Fatal("assumptions must force confirmation")
	}

	payload := draft.ProposedPaymentPayload
	if payload["accountId"] != "acct_1" {
		t.Fatalf("unexpected accountId: %v", payload["accountId"])
	}
	if payload["idempotencyKey"] != draft.IdempotencyKey {
		t.Fatal("proposed payload must carry the draft idempotency key")
	}
	recipient := payload["recipient"].(map[string]any)
	if recipient["email"] != "billing@acme.example" {
		t.Fatalf("unexpected recipient: %v", recipient)
	}
}

func TestPrepareRejectsUnprocessableInvoice(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	_, err := svc.Prepare(context.Background(), PrepareParams{
		Invoice: &invoice.ExtractedInvoice{Processable: false, Reason: "Not an invoice."},
	})
	if xerrors.CodeOf(err) != xerrors.CodeUnprocessableDocument {
		t.Fatalf("unexpected error: %v", err)
	}
	typed, _ := xerrors.From(err)
	if typed.Details()["reason"] != "Not an invoice." {
		t.Fatalf("expected reason detail, got %v", typed.Details())
	}
	if client.contactCalls != 0 || client.fundingCalls != 0 {
		t.Fatal("unprocessable invoice must fail before any provider call")
	}
}

func TestPrepareInvoiceFieldsWinOverCommand(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	invoiceAmount := 99.0
	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Command: "pay $10 to Sam Smith for lunch",
		Invoice: &invoice.ExtractedInvoice{
			Processable: true,
			Payee:       invoice.PayeeHint{Name: "Acme Corp", Email: "billing@acme.example"},
			Money:       invoice.Money{Amount: &invoiceAmount, Currency: "EUR"},
			Purpose:     "Invoice #42",
		},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if *draft.Amount != 99.0 {
		t.Fatalf("invoice amount must win, got %v", *draft.Amount)
	}
	if draft.Currency != "EUR" {
		t.Fatalf("invoice currency must win, got %q", draft.Currency)
	}
	if draft.Purpose != "Invoice #42" {
		t.Fatalf("invoice purpose must win, got %q", draft.Purpose)
	}
	if draft.Payee.ContactID != "c_1" {
		t.Fatalf("expected invoice email match, got %+v", draft.Payee)
	}
}

func TestPrepareCurrencyHint(t *testing.T) {
	svc := NewService(defaultVeem(), nil, nil)

	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Command:      "pay $10 to Sam Smith",
		CurrencyHint: "CAD",
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if draft.Currency != "CAD" {
		t.Fatalf("unexpected currency: %q", draft.Currency)
	}
	if !hasString(draft.Assumptions, "Used currency hint 'CAD'.") {
		t.Fatalf("expected hint assumption, got %v", draft.Assumptions)
	}
	if hasString(draft.Assumptions, "Defaulted currency to USD.") {
		t.Fatal("hinted currency must not also be defaulted")
	}
}

func TestPrepareRecordsMissingFields(t *testing.T) {
	client := defaultVeem()
	client.fundingMethods = map[string]any{"fundingMethods": []any{}}
	svc := NewService(client, nil, nil)

	draft, err := svc.Prepare(context.Background(), PrepareParams{Command: "do something"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	want := []string{"amount", "payee", "funding_method_id"}
	if len(draft.MissingFields) != len(want) {
		t.Fatalf("unexpected missing fields: %v", draft.MissingFields)
	}
	for i, field := range want {
		if draft.MissingFields[i] != field {
			t.Fatalf("missing field %d = %q, want %q", i, draft.MissingFields[i], field)
		}
	}
	if !draft.NeedsConfirmation {
		t.Fatal("missing fields must force confirmation")
	}
}

func TestPrepareHistoryLookupFailsOpen(t *testing.T) {
	client := defaultVeem()
	history := &fakeHistory{lookupErr: errors.New("db down")}
	svc := NewService(client, history, nil)

	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Command: "pay $10 to Sam Smith",
	})
	if err != nil {
		t.Fatalf("history failure must not surface: %v", err)
	}
	if draft.FundingMethodID != "fm_1" {
		t.Fatalf("expected first funding method, got %q", draft.FundingMethodID)
	}
	if hasString(draft.Assumptions, "Inferred funding method from past payments.") {
		t.Fatal("failed lookup must not claim a preference")
	}
}

func TestPrepareUncertainMatchAssumption(t *testing.T) {
	svc := NewService(defaultVeem(), nil, nil)

	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Command: "pay $10 to Zebra Inc",
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if draft.Payee.MatchConfidence != 0 {
		t.Fatalf("unexpected confidence: %v", draft.Payee.MatchConfidence)
	}
	if !hasString(draft.Assumptions, "Payee match is uncertain; please confirm.") {
		t.Fatalf("expected uncertain-match assumption, got %v", draft.Assumptions)
	}
}

func TestPrepareCleanDraftSkipsConfirmation(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	amount := 50.0
	draft, err := svc.Prepare(context.Background(), PrepareParams{
		Invoice: &invoice.ExtractedInvoice{
			Processable: true,
			Payee:       invoice.PayeeHint{Email: "sam@example.com"},
			Money:       invoice.Money{Amount: &amount, Currency: "USD"},
			Purpose:     "rent",
		},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(draft.Assumptions) != 0 || len(draft.MissingFields) != 0 {
		t.Fatalf("expected clean draft, got assumptions=%v missing=%v", draft.Assumptions, draft.MissingFields)
	}
	if draft.Payee.MatchConfidence != 1.0 {
		t.Fatalf("unexpected confidence: %v", draft.Payee.MatchConfidence)
	}
	if draft.NeedsConfirmation {
		t.Fatal("clean draft with exact email match must not need confirmation")
	}
}

func TestPrepareGeneratesDistinctIdentifiers(t *testing.T) {
	svc := NewService(defaultVeem(), nil, nil)

	first, err := svc.Prepare(context.Background(), PrepareParams{Command: "pay $10 to Sam Smith"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	second, err := svc.Prepare(context.Background(), PrepareParams{Command: "pay $10 to Sam Smith"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if first.DraftID == second.DraftID {
		t.Fatal("draft ids must be unique per call")
	}
	if first.IdempotencyKey == second.IdempotencyKey {
		t.Fatal("idempotency keys must be unique per call")
	}
}

func TestSubmitRejectsIncompleteDraft(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	_, err := svc.Submit(context.Background(), &PaymentDraft{})
	if xerrors.CodeOf(err) != xerrors.CodeMissingFields {
		t.Fatalf("unexpected error: %v", err)
	}
	typed, _ := xerrors.From(err)
	if typed.Message() != "Draft missing required fields." {
		t.Fatalf("unexpected message: %q", typed.Message())
	}
	missing, ok := typed.Details()["missing"].([]string)
	if !ok {
		t.Fatalf("expected missing detail, got %v", typed.Details())
	}
	want := []string{"amount", "currency", "payee", "funding_method_id"}
	if len(missing) != len(want) {
		t.Fatalf("unexpected missing list: %v", missing)
	}
	for i, field := range want {
		if missing[i] != field {
			t.Fatalf("missing[%d] = %q, want %q", i, missing[i], field)
		}
	}
	if client.createCalls != 0 {
		t.Fatal("incomplete draft must not reach the provider")
	}
}

func TestSubmitNamesOnlyUnsetFields(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	amount := 75.0
	_, err := svc.Submit(context.Background(), &PaymentDraft{
		Amount:   &amount,
		Currency: "USD",
		Payee:    ResolvedPayee{Email: "sam@example.com"},
	})
	typed, _ := xerrors.From(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	missing := typed.Details()["missing"].([]string)
	if len(missing) != 1 || missing[0] != "funding_method_id" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
	if client.createCalls != 0 {
		t.Fatal("incomplete draft must not reach the provider")
	}
}

func TestSubmitTreatsZeroAmountAsMissing(t *testing.T) {
	client := defaultVeem()
	svc := NewService(client, nil, nil)

	zero := 0.0
	_, err := svc.Submit(context.Background(), &PaymentDraft{
		Amount:          &zero,
		Currency:        "USD",
		Payee:           ResolvedPayee{Email: "sam@example.com"},
		FundingMethodID: "fm_1",
	})
	if xerrors.CodeOf(err) != xerrors.CodeMissingFields {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.createCalls != 0 {
		t.Fatal("zero amount must not reach the provider")
	}
}

func TestSubmitRebuildsPayloadFromDraftFields(t *testing.T) {
	client := defaultVeem()
	history := &fakeHistory{}
	svc := NewService(client, history, nil)

	amount := 75.0
	draft := &PaymentDraft{
		DraftID:         "draft-1",
		IdempotencyKey:  "idem-1",
		Payee:           ResolvedPayee{ContactID: "c_2", Name: "Sam Smith", Email: "sam@example.com"},
		Amount:          &amount,
		Currency:        "USD",
		Purpose:         "rent",
		FundingMethodID: "fm_1",
		// Stale preview left over from an earlier Prepare; must be ignored.
		ProposedPaymentPayload: map[string]any{
			"amount": map[string]any{"number": 1.0, "currency": "JPY"},
		},
	}

	result, err := svc.Submit(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.PaymentID != "pay_1" {
		t.Fatalf("expected trimmed payment id, got %q", result.PaymentID)
	}
	if result.Status != "Pending" {
		t.Fatalf("unexpected status: %q", result.Status)
	}

	sent := client.lastPayload
	amountSent := sent["amount"].(map[string]any)
	if amountSent["number"] != 75.0 || amountSent["currency"] != "USD" {
		t.Fatalf("payload must be rebuilt from draft fields, got %v", amountSent)
	}
	if sent["idempotencyKey"] != "idem-1" {
		t.Fatalf("unexpected idempotency key: %v", sent["idempotencyKey"])
	}
	if sent["description"] != paymentDescription {
		t.Fatalf("unexpected description: %v", sent["description"])
	}

	if len(history.recorded) != 1 || history.recorded[0] != [2]string{"sam@example.com", "fm_1"} {
		t.Fatalf("expected history write-back, got %v", history.recorded)
	}
}

func TestSubmitHistoryWriteFailureIsSoft(t *testing.T) {
	client := defaultVeem()
	history := &fakeHistory{recordErr: errors.New("db down")}
	svc := NewService(client, history, nil)

	amount := 75.0
	_, err := svc.Submit(context.Background(), &PaymentDraft{
		Amount:          &amount,
		Currency:        "USD",
		Payee:           ResolvedPayee{Email: "sam@example.com"},
		FundingMethodID: "fm_1",
	})
	if err != nil {
		t.Fatalf("history write failure must not surface: %v", err)
	}
}

func TestSubmitPropagatesProviderError(t *testing.T) {
	client := defaultVeem()
	client.createErr = xerrors.New(xerrors.CodeVeemAPI, "Veem API error 402 for POST payments")
	svc := NewService(client, nil, nil)

	amount := 75.0
	_, err := svc.Submit(context.Background(), &PaymentDraft{
		Amount:          &amount,
		Currency:        "USD",
		Payee:           ResolvedPayee{Email: "sam@example.com"},
		FundingMethodID: "fm_1",
	})
	if xerrors.CodeOf(err) != xerrors.CodeVeemAPI {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScheduleRejectsMalformedTimestamp(t *testing.T) {
	schedules := &fakeSchedules{}
	svc := NewService(defaultVeem(), nil, schedules)

	_, err := svc.Schedule(context.Background(), &PaymentDraft{DraftID: "draft-1"}, "next tuesday")
	if xerrors.CodeOf(err) != xerrors.CodeMalformedTimestamp {
		t.Fatalf("unexpected error: %v", err)
	}
	typed, _ := xerrors.From(err)
	if typed.Details()["run_at_utc"] != "next tuesday" {
		t.Fatalf("expected offending value in details, got %v", typed.Details())
	}
	if schedules.calls != 0 {
		t.Fatal("malformed timestamp must fail before the store is touched")
	}
}

func TestScheduleSnapshotsDraft(t *testing.T) {
	schedules := &fakeSchedules{result: &PaymentScheduleResult{
		ScheduleID: "sched-1",
		Status:     "scheduled",
		RunAtUTC:   "2026-09-01T09:00:00Z",
	}}
	svc := NewService(defaultVeem(), nil, schedules)

	amount := 75.0
	draft := &PaymentDraft{
		DraftID:         "draft-1",
		Amount:          &amount,
		Currency:        "USD",
		FundingMethodID: "fm_1",
	}
	result, err := svc.Schedule(context.Background(), draft, "2026-09-01T09:00:00Z")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if result.ScheduleID != "sched-1" {
		t.Fatalf("unexpected schedule id: %q", result.ScheduleID)
	}

	var snapshot PaymentDraft
	if err := json.Unmarshal(schedules.draft, &snapshot); err != nil {
		t.Fatalf("snapshot is not a draft: %v", err)
	}
	if snapshot.DraftID != "draft-1" || *snapshot.Amount != 75.0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if !schedules.runAt.Equal(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected run time: %v", schedules.runAt)
	}
}

func TestParseRunAtAcceptsISO8601Variants(t *testing.T) {
	valid := []string{
		"2026-09-01T09:00:00Z",
		"2026-09-01T09:00:00.123456Z",
		"2026-09-01T09:00:00+02:00",
		"2026-09-01T09:00:00",
		"2026-09-01 09:00:00",
		"2026-09-01",
	}
	for _, raw := range valid {
		if _, err := ParseRunAt(raw); err != nil {
			t.Fatalf("ParseRunAt(%q) failed: %v", raw, err)
		}
	}

	invalid := []string{"", "tomorrow", "01/09/2026"}
	for _, raw := range invalid {
		if _, err := ParseRunAt(raw); err == nil {
			t.Fatalf("ParseRunAt(%q) should fail", raw)
		}
	}
}
