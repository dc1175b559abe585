package balance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyAdjustmentDeficitCascade(t *testing.T) {
	b := Balance{Mining: 5, Task: 3, Social: 2, Referral: 10}

	got := ApplyAdjustment(b, -7)

	assert.Equal(t, Balance{Mining: 0, Task: 0, Social: 3, Referral: 10, Total: 13}, got)
}

func TestApplyAdjustment(t *testing.T) {
	tests := []struct {
		name  string
		in    Balance
		extra int64
		want  Balance
	}{
		{"positive goes to social", Balance{Mining: 1, Task: 1, Social: 1, Referral: 1}, 6, Balance{1, 1, 7, 1, 10}},
		{"zero", Balance{Mining: 1, Task: 2, Social: 3, Referral: 4}, 0, Balance{1, 2, 3, 4, 10}},
		{"mining covers exactly", Balance{Mining: 5, Task: 3, Social: 2, Referral: 10}, -5, Balance{0, 3, 2, 10, 15}},
		{"mining surplus rolls to task", Balance{Mining: 5, Task: 3, Social: 2, Referral: 10}, -2, Balance{0, 6, 2, 10, 18}},
		{"reaches referral", Balance{Mining: 1, Task: 1, Social: 1, Referral: 10}, -5, Balance{0, 0, 0, 8, 8}},
		{"deficit larger than everything", Balance{Mining: 1, Task: 1, Social: 1, Referral: 1}, -100, Balance{}},
		{"empty categories skipped", Balance{Mining: 0, Task: 0, Social: 4, Referral: 0}, -1, Balance{0, 0, 0, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyAdjustment(tt.in, tt.extra)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Consistent())
		})
	}
}

func TestProjectConservation(t *testing.T) {
	tests := []struct {
		name string
		sums Sums
	}{
		{"no adjustments", Sums{MiningArx: d("12.9"), TaskPoints: d("3.5"), CheckinPoints: d("0.5"), SocialPoints: d("7"), ReferralPoints: d("100")}},
		{"arena win", Sums{MiningArx: d("10"), ArenaEarned: d("500.7"), ArenaSpent: d("100")}},
		{"arena loss", Sums{MiningArx: d("50"), TaskPoints: d("30"), SocialPoints: d("20"), ReferralPoints: d("5"), ArenaSpent: d("60")}},
		{"transfers offset loss", Sums{MiningArx: d("10"), ArenaSpent: d("30"), TransfersReceived: d("25")}},
		{"empty", Sums{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.sums)

			assert.Equal(t, got.Mining+got.Task+got.Social+got.Referral, got.Total)
			for _, v := range []int64{got.Mining, got.Task, got.Social, got.Referral} {
				assert.GreaterOrEqual(t, v, int64(0))
			}

			base := tt.sums.MiningArx.Floor().IntPart() +
				tt.sums.TaskPoints.Add(tt.sums.CheckinPoints).Floor().IntPart() +
				tt.sums.SocialPoints.Floor().IntPart() +
				tt.sums.ReferralPoints.Floor().IntPart()
			extra := tt.sums.ArenaEarned.Floor().IntPart() - tt.sums.ArenaSpent.Floor().IntPart() +
				tt.sums.TransfersReceived.Floor().IntPart()
			want := base + extra
			if want < 0 {
				want = 0
			}
			assert.Equal(t, want, got.Total)
		})
	}
}

func TestProjectFloorsCombinedTaskSum(t *testing.T) {
	got := Project(Sums{TaskPoints: d("2.6"), CheckinPoints: d("0.6")})

	// floor(2.6 + 0.6) = 3, а не floor(2.6) + floor(0.6) = 2
	assert.Equal(t, int64(3), got.Task)
}

func TestProjectPositiveExtraToSocial(t *testing.T) {
	got := Project(Sums{
		MiningArx:         d("10"),
		SocialPoints:      d("1"),
		ArenaEarned:       d("40.9"),
		ArenaSpent:        d("10.2"),
		TransfersReceived: d("5"),
	})

	// social = 1 + (40 - 10) + 5
	assert.Equal(t, Balance{Mining: 10, Task: 0, Social: 36, Referral: 0, Total: 46}, got)
}
