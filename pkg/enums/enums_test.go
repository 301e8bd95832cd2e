package enums

import "testing"

func TestParseOperationKind(t *testing.T) {
	for _, raw := range []string{"generate", "edit", "virtual_model", "retouch"} {
		if _, err := ParseOperationKind(raw); err != nil {
			t.Fatalf("expected %q to parse: %v", raw, err)
		}
	}
	if _, err := ParseOperationKind("upscale"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestTransactionTypeIsGrant(t *testing.T) {
	grants := map[TransactionType]bool{
		TransactionSignupGrant:       true,
		TransactionPurchase:          true,
		TransactionSubscriptionGrant: true,
		TransactionDeduction:         false,
		TransactionRefund:            false,
	}
	for typ, want := range grants {
		if got := typ.IsGrant(); got != want {
			t.Fatalf("%s.IsGrant() = %v, want %v", typ, got, want)
		}
	}
}

func TestParsePlanIsCaseInsensitive(t *testing.T) {
	plan, err := ParsePlan(" Starter ")
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	if plan != PlanStarter {
		t.Fatalf("expected starter, got %s", plan)
	}
	if _, err := ParsePlan("enterprise"); err == nil {
		t.Fatal("expected unknown plan to fail")
	}
}

func TestOutcomeStatus(t *testing.T) {
	if OutcomeCompleted.Status() != OperationStatusCompleted {
		t.Fatal("completed outcome should map to completed status")
	}
	if OutcomeFailed.Status() != OperationStatusFailed {
		t.Fatal("failed outcome should map to failed status")
	}
	if _, err := ParseOperationOutcome("cancelled"); err == nil {
		t.Fatal("expected unknown outcome to fail")
	}
	if !OperationStatusFailed.IsTerminal() || OperationStatusPending.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestSubscriptionStatusPlanFor(t *testing.T) {
	cases := []struct {
		status SubscriptionStatus
		want   Plan
	}{
		{SubscriptionStatusActive, PlanPro},
		{SubscriptionStatusTrialing, PlanPro},
		{SubscriptionStatusPastDue, PlanStarter},
		{SubscriptionStatusUnpaid, PlanFree},
		{SubscriptionStatusCanceled, PlanFree},
		{SubscriptionStatusPaused, PlanFree},
	}
	for _, tc := range cases {
		if got := tc.status.PlanFor(PlanStarter, PlanPro); got != tc.want {
			t.Fatalf("%s.PlanFor() = %s, want %s", tc.status, got, tc.want)
		}
	}
	if SubscriptionStatusPastDue.Entitled() {
		t.Fatal("past_due must not earn grants")
	}
	if _, err := ParseSubscriptionStatus("paused"); err != nil {
		t.Fatalf("parse paused: %v", err)
	}
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	for _, raw := range []string{"unresolvable", "non_retryable", "max_attempts"} {
		reason, err := ParseOutboxDLQErrorReason(raw)
		if err != nil || !reason.IsValid() || reason.String() != raw {
			t.Fatalf("expected %q to round trip, got %q err=%v", raw, reason, err)
		}
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected unknown reason to fail")
	}
}
