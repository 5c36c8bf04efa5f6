package payment

import "testing"

func contactsPayload(contacts ...map[string]any) map[string]any {
	items := make([]any, 0, len(contacts))
	for _, c := range contacts {
		items = append(items, c)
	}
	return map[string]any{"contacts": items}
}

func TestResolvePayeeEmailBeatsName(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": "c_1", "name": "Acme Corp", "email": "billing@acme.example"},
		map[string]any{"id": "c_2", "name": "Sam Smith", "email": "sam@example.com"},
	)

	resolved := resolvePayee(payload, "Acme Corp", "sam@example.com")
	if resolved.ContactID != "c_2" {
		t.Fatalf("expected email match to win, got %q", resolved.ContactID)
	}
	if resolved.MatchConfidence != 1.0 {
		t.Fatalf("unexpected confidence: %v", resolved.MatchConfidence)
	}
	if len(resolved.Candidates) != 1 {
		t.Fatalf("expected single candidate, got %d", len(resolved.Candidates))
	}
}

func TestResolvePayeeExactName(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": "c_1", "name": "Acme Corp"},
		map[string]any{"id": "c_2", "name": "Acme Corporation"},
	)

	resolved := resolvePayee(payload, "acme corp", "")
	if resolved.ContactID != "c_1" {
		t.Fatalf("unexpected match: %q", resolved.ContactID)
	}
	if resolved.MatchConfidence != 0.95 {
		t.Fatalf("unexpected confidence: %v", resolved.MatchConfidence)
	}
}

func TestResolvePayeeSubstringAndTokenScores(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": "c_1", "name": "Acme Corporation Ltd"},
		map[string]any{"id": "c_2", "name": "Corp Holdings"},
	)

	resolved := resolvePayee(payload, "Acme Corporation", "")
	if resolved.ContactID != "c_1" {
		t.Fatalf("unexpected match: %q", resolved.ContactID)
	}
	if resolved.MatchConfidence != 0.8 {
		t.Fatalf("unexpected confidence: %v", resolved.MatchConfidence)
	}
}

func TestResolvePayeeTieKeepsInputOrder(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": "c_1", "name": "Sam North"},
		map[string]any{"id": "c_2", "name": "Sam South"},
	)

	resolved := resolvePayee(payload, "Sam", "")
	if resolved.ContactID != "c_1" {
		t.Fatalf("expected earlier contact to win a tie, got %q", resolved.ContactID)
	}
	if len(resolved.Candidates) != 2 {
		t.Fatalf("expected both tied contacts as candidates, got %d", len(resolved.Candidates))
	}
}

func TestResolvePayeeNoMatchEchoesHints(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": "c_1", "name": "Alpha"},
		map[string]any{"id": "c_2", "name": "Beta"},
	)

	resolved := resolvePayee(payload, "Zebra", "zebra@example.com")
	if resolved.ContactID != "" {
		t.Fatalf("expected no match, got %q", resolved.ContactID)
	}
	if resolved.Name != "Zebra" || resolved.Email != "zebra@example.com" {
		t.Fatalf("expected hints echoed back, got %+v", resolved)
	}
	if resolved.MatchConfidence != 0 {
		t.Fatalf("unexpected confidence: %v", resolved.MatchConfidence)
	}
	if len(resolved.Candidates) != 2 {
		t.Fatalf("expected directory head as candidates, got %d", len(resolved.Candidates))
	}
}

func TestResolvePayeeCandidatesAreCapped(t *testing.T) {
	items := make([]any, 0, 8)
	for _, name := range []string{"Sam A", "Sam B", "Sam C", "Sam D", "Sam E", "Sam F", "Sam G", "Sam H"} {
		items = append(items, map[string]any{"id": name, "name": name})
	}
	payload := map[string]any{"contacts": items}

	resolved := resolvePayee(payload, "Sam", "")
	if len(resolved.Candidates) != maxCandidates {
		t.Fatalf("expected %d candidates, got %d", maxCandidates, len(resolved.Candidates))
	}
}

func TestResolvePayeeAlternateWrapKeys(t *testing.T) {
	for _, key := range []string{"contacts", "data", "items", "results"} {
		payload := map[string]any{key: []any{
			map[string]any{"id": "c_1", "name": "Acme Corp"},
		}}
		resolved := resolvePayee(payload, "Acme Corp", "")
		if resolved.ContactID != "c_1" {
			t.Fatalf("wrap key %q: unexpected match %q", key, resolved.ContactID)
		}
	}

	// A bare array works too.
	bare := []any{map[string]any{"id": "c_1", "name": "Acme Corp"}}
	if resolved := resolvePayee(bare, "Acme Corp", ""); resolved.ContactID != "c_1" {
		t.Fatalf("bare array: unexpected match %q", resolved.ContactID)
	}
}

func TestResolvePayeeNumericIDs(t *testing.T) {
	payload := contactsPayload(
		map[string]any{"id": float64(42), "name": "Acme Corp", "email": "billing@acme.example"},
	)
	resolved := resolvePayee(payload, "", "Billing@Acme.example")
	if resolved.ContactID != "42" {
		t.Fatalf("expected numeric id rendered without decimal point, got %q", resolved.ContactID)
	}
}
