package metrics

import (
    "errors"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "sitewarden/internal/database"
)

func TestCollector_RecordCheckResult(t *testing.T) {
    c := NewCollector(nil)

    c.RecordCheckResult("metrics-test", database.StatusChanged, 2*time.Second, 3)

    if got := testutil.ToFloat64(TargetStatus.WithLabelValues("metrics-test")); got != 1 {
        t.Errorf("expected alterado gauge value 1, got %v", got)
    }
    if got := testutil.ToFloat64(MalwareFindings.WithLabelValues("metrics-test")); got != 3 {
        t.Errorf("expected 3 findings, got %v", got)
    }
    if got := testutil.ToFloat64(CheckTotal.WithLabelValues("metrics-test", "alterado")); got != 1 {
        t.Errorf("expected one counted check, got %v", got)
    }
}

func TestCollector_Counters(t *testing.T) {
    c := NewCollector(nil)

    before := testutil.ToFloat64(SweepsTotal.WithLabelValues("skipped"))
    c.RecordSweepSkipped()
    if got := testutil.ToFloat64(SweepsTotal.WithLabelValues("skipped")); got != before+1 {
        t.Errorf("skipped sweeps not counted: %v -> %v", before, got)
    }

    beforeErr := testutil.ToFloat64(DatabaseOperations.WithLabelValues("metrics_test", "error"))
    c.RecordDatabaseOperation("metrics_test", errors.New("boom"))
    if got := testutil.ToFloat64(DatabaseOperations.WithLabelValues("metrics_test", "error")); got != beforeErr+1 {
        t.Errorf("database error not counted")
    }

    c.RecordAlert(database.AlertError, true)
    if got := testutil.ToFloat64(AlertsTotal.WithLabelValues("erro", "suppressed")); got < 1 {
        t.Errorf("suppressed alert not counted")
    }
}
