package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveClaim_IncrementsByLabels(t *testing.T) {
	before := testutil.ToFloat64(claimsTotal.WithLabelValues("message", OutcomeClaimed))
	ObserveClaim("message", OutcomeClaimed)
	ObserveClaim("message", OutcomeClaimed)
	ObserveClaim("message", OutcomeObserved)

	if got := testutil.ToFloat64(claimsTotal.WithLabelValues("message", OutcomeClaimed)); got != before+2 {
		t.Fatalf("claimed = %v, want %v", got, before+2)
	}
}

func TestObserveLinkAndMigration(t *testing.T) {
	b1 := testutil.ToFloat64(linkConfirmations.WithLabelValues("ok"))
	b2 := testutil.ToFloat64(migrations.WithLabelValues("error"))

	ObserveLinkConfirmation("ok")
	ObserveMigration("error")

	if got := testutil.ToFloat64(linkConfirmations.WithLabelValues("ok")); got != b1+1 {
		t.Fatalf("link ok = %v", got)
	}
	if got := testutil.ToFloat64(migrations.WithLabelValues("error")); got != b2+1 {
		t.Fatalf("migration error = %v", got)
	}
}
