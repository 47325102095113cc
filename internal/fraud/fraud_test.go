package fraud

import (
	"testing"

	"IVA-Bank/internal/bank"
)

func TestCheckThresholdIsExclusive(t *testing.T) {
	checker := NewChecker(0)
	cases := []struct {
		amount  bank.Cents
		flagged bool
	}{
		{bank.FromDollars(100), false},
		{bank.FromDollars(5000), false},
		{bank.FromDollars(5000) + 1, true},
		{bank.FromDollars(12000), true},
	}
	for _, tc := range cases {
		verdict := checker.Check("ACC-1", tc.amount)
		if verdict.Flagged() != tc.flagged {
			t.Fatalf("amount %s: expected flagged=%v, got %+v", tc.amount, tc.flagged, verdict)
		}
	}
}

func TestVerdictMessages(t *testing.T) {
	checker := NewChecker(100)
	flagged := checker.Check("ACC-1", bank.FromDollars(150))
	if flagged.Reason != "High value transaction" || flagged.ActionRequired != "Email confirmation sent to customer as per policy." {
		t.Fatalf("unexpected flagged verdict: %+v", flagged)
	}
	clean := checker.Check("ACC-1", bank.FromDollars(50))
	if clean.Status != StatusClean || clean.Reason != "Normal transaction pattern" || clean.ActionRequired != "" {
		t.Fatalf("unexpected clean verdict: %+v", clean)
	}
}

func TestNilCheckerUsesDefault(t *testing.T) {
	var checker *Checker
	if checker.Requires(bank.FromDollars(4999)) || !checker.Requires(bank.FromDollars(5001)) {
		t.Fatalf("nil checker should use default threshold")
	}
}
