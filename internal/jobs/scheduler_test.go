package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/config"
	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
)

// pagedReconciler отдаёт пачки по 2 сущности из total.
type pagedReconciler struct {
	total   int
	calls   []int
	failAt  int
	failErr error
}

func (p *pagedReconciler) Reconcile(_ context.Context, req reconcile.Request) (*reconcile.Report, error) {
	p.calls = append(p.calls, req.Offset)
	if p.failErr != nil && req.Offset == p.failAt {
		return &reconcile.Report{Mode: req.Mode}, p.failErr
	}
	n := p.total - req.Offset
	if n > 2 {
		n = 2
	}
	rep := &reconcile.Report{Mode: req.Mode, Processed: n, NoChange: n}
	if n == 2 {
		next := req.Offset + 2
		rep.NextOffset = &next
	}
	return rep, nil
}

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func TestRunPassFollowsCursor(t *testing.T) {
	svc := &pagedReconciler{total: 5}

	rep, err := RunPass(context.Background(), svc, reconcile.Request{Mode: reconcile.ModeRebuildBalances})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, svc.calls)
	assert.Equal(t, 5, rep.Processed)
	assert.Nil(t, rep.NextOffset)
}

func TestRunPassStopsOnError(t *testing.T) {
	svc := &pagedReconciler{total: 10, failAt: 4, failErr: common.ErrStoreUnavailable}

	rep, err := RunPass(context.Background(), svc, reconcile.Request{Mode: reconcile.ModeAudit})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStoreUnavailable))
	assert.Equal(t, 4, rep.Processed)
	assert.Equal(t, []int{0, 2, 4}, svc.calls)
}

func TestRunJobNotifiesOnlyWhenNeeded(t *testing.T) {
	n := &recordingNotifier{}
	s := NewScheduler(&pagedReconciler{total: 3}, n, &config.Config{AppTimezone: "UTC"})

	s.runJob(context.Background(), reconcile.ModeAudit)
	assert.Empty(t, n.texts)

	s.svc = &pagedReconciler{total: 3, failAt: 0, failErr: common.ErrStoreUnavailable}
	s.runJob(context.Background(), reconcile.ModeAudit)
	assert.Len(t, n.texts, 1)
}

func TestStartRejectsBadSpec(t *testing.T) {
	cfg := &config.Config{AppTimezone: "Mars/Olympus", CronBalancesSpec: "not a spec"}
	s := NewScheduler(&pagedReconciler{}, &recordingNotifier{}, cfg)

	assert.Error(t, s.Start(context.Background()))
}

func TestRunPassStartsAtOffset(t *testing.T) {
	svc := &pagedReconciler{total: 6}

	rep, err := RunPass(context.Background(), svc, reconcile.Request{Mode: reconcile.ModeAudit, DryRun: true, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, svc.calls)
	assert.Equal(t, 4, rep.Processed)
}
