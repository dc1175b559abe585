package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/arx-reconciler/internal/features/balance"
)

func bal(mining, task, social, referral int64) balance.Balance {
	b := balance.Balance{Mining: mining, Task: task, Social: social, Referral: referral}
	b.Total = b.Sum()
	return b
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		stored   balance.Balance
		computed balance.Balance
		policy   Policy
		want     Action
	}{
		{"equal", bal(1, 2, 3, 4), bal(1, 2, 3, 4), DefaultPolicy, ActionNoChange},
		{"same total other split", bal(10, 0, 0, 0), bal(0, 10, 0, 0), DefaultPolicy, ActionNoChange},
		{"same total other split, strict policy", bal(3, 4, 0, 0), bal(0, 0, 7, 0), Policy{MaxAutoRestore: 1}, ActionNoChange},
		{"missing row, zero computed", balance.Balance{}, balance.Balance{}, DefaultPolicy, ActionNoChange},
		{"missing row, positive computed", balance.Balance{}, bal(5, 0, 0, 0), DefaultPolicy, ActionRestored},
		{"stored too low", bal(1, 0, 0, 0), bal(9, 0, 0, 0), DefaultPolicy, ActionRestored},
		{"stored too high", bal(9, 0, 0, 0), bal(1, 0, 0, 0), DefaultPolicy, ActionRestored},
		{"decrease forbidden", bal(9, 0, 0, 0), bal(1, 0, 0, 0), Policy{}, ActionFlagged},
		{"increase with decrease forbidden", bal(1, 0, 0, 0), bal(9, 0, 0, 0), Policy{}, ActionRestored},
		{"over threshold", bal(0, 0, 0, 0), bal(500, 0, 0, 0), Policy{MaxAutoRestore: 100, AllowDecrease: true}, ActionFlagged},
		{"at threshold", bal(0, 0, 0, 0), bal(100, 0, 0, 0), Policy{MaxAutoRestore: 100, AllowDecrease: true}, ActionRestored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Detect(tt.stored, tt.computed, tt.policy)
			assert.Equal(t, tt.want, d.Action)
			assert.Equal(t, tt.computed.Total-tt.stored.Total, d.Diff.Total)
			if tt.want == ActionFlagged {
				assert.NotEmpty(t, d.Reason)
			} else {
				assert.Empty(t, d.Reason)
			}
		})
	}
}

func TestDetectDiffPerCategory(t *testing.T) {
	d := Detect(bal(5, 5, 5, 5), bal(7, 3, 5, 6), DefaultPolicy)

	assert.Equal(t, balance.Balance{Mining: 2, Task: -2, Social: 0, Referral: 1, Total: 1}, d.Diff)
	assert.Equal(t, ActionRestored, d.Action)
}
