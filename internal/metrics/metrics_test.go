package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
)

func TestObserveReport(t *testing.T) {
	r := NewRecorder()

	r.ObserveReport(&reconcile.Report{
		Mode:                reconcile.ModeRebuildBalances,
		Processed:           5,
		Restored:            2,
		Flagged:             1,
		NoChange:            1,
		Errored:             1,
		TotalPointsRestored: 40,
		Errors:              []reconcile.ErrorEntry{{UserID: "u1", Message: "boom"}},
	}, 150*time.Millisecond)
	r.ObserveReport(&reconcile.Report{
		Mode:     reconcile.ModeRestoreEarnings,
		Restored: 3,
	}, time.Second)
	r.ObserveReport(&reconcile.Report{
		Mode:     reconcile.ModeRestoreEarnings,
		DryRun:   true,
		Restored: 7,
	}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.entities.WithLabelValues("rebuild_balances", "restored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entities.WithLabelValues("rebuild_balances", "flagged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("rebuild_balances")))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.pointsRestored.WithLabelValues("rebuild_balances")))
	// dry-run не считается вставкой
	assert.Equal(t, 3.0, testutil.ToFloat64(r.earnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.passes.WithLabelValues("restore_earnings", "true")))
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveReport(&reconcile.Report{Mode: reconcile.ModeAudit, NoChange: 3}, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `arx_reconciler_entities_total{action="no_change",mode="audit"} 3`), body)
	assert.Contains(t, body, "arx_reconciler_pass_duration_seconds")
}
