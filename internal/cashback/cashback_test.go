package cashback

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kodix/kodix/internal/model"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sale(id int64, cbs ...model.Cashback) model.SaleWithCashbacks {
	return model.SaleWithCashbacks{Sale: model.Sale{ID: id, Total: 100}, Cashbacks: cbs}
}

func TestBreakdownActive(t *testing.T) {
	exp := now.Add(24 * time.Hour)
	got := Breakdown(sale(1, model.Cashback{Amount: 20, UsedAmount: 5, ExpiresAt: exp}), now)

	want := SaleCashback{
		Sale:      model.Sale{ID: 1, Total: 100},
		Original:  20,
		Used:      5,
		Available: 15,
		ExpiresAt: &exp,
		Display:   DisplayActive,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("breakdown mismatch (-want +got):\n%s", diff)
	}
}

func TestExpiredSaleExcludedFromTotal(t *testing.T) {
	exp := now.Add(-time.Hour)
	sum := Compute([]model.SaleWithCashbacks{
		sale(1, model.Cashback{Amount: 20, UsedAmount: 5, ExpiresAt: exp}),
	}, now)

	if sum.TotalAvailable != 0 {
		t.Errorf("total = %v, want 0", sum.TotalAvailable)
	}
	s := sum.Sales[0]
	if s.Available != 15 {
		t.Errorf("available = %v, want 15", s.Available)
	}
	if !s.Expired || s.Display != DisplayExpired {
		t.Errorf("expired = %v display = %q, want expired", s.Expired, s.Display)
	}
}

func TestExpiresExactlyNowIsExpired(t *testing.T) {
	sum := Compute([]model.SaleWithCashbacks{
		sale(1, model.Cashback{Amount: 10, ExpiresAt: now}),
	}, now)
	if sum.TotalAvailable != 0 {
		t.Errorf("total = %v, want 0", sum.TotalAvailable)
	}
	if !sum.Sales[0].Expired {
		t.Error("expected expired at boundary")
	}
}

func TestSaleWithoutCashbacks(t *testing.T) {
	s := Breakdown(sale(1), now)
	if s.ExpiresAt != nil {
		t.Errorf("expires_at = %v, want nil", s.ExpiresAt)
	}
	if s.Available != 0 {
		t.Errorf("available = %v, want 0", s.Available)
	}
	if s.Display != DisplayNone {
		t.Errorf("display = %q, want %q", s.Display, DisplayNone)
	}
}

func TestTotalCountsFragmentsIndividually(t *testing.T) {
	future := now.Add(48 * time.Hour)
	past := now.Add(-48 * time.Hour)

	sum := Compute([]model.SaleWithCashbacks{
		// first fragment expired: sale displays expired, second fragment still counts
		sale(1,
			model.Cashback{Amount: 10, UsedAmount: 0, ExpiresAt: past},
			model.Cashback{Amount: 30, UsedAmount: 10, ExpiresAt: future},
		),
		sale(2, model.Cashback{Amount: 5, UsedAmount: 1, ExpiresAt: future}),
	}, now)

	if sum.TotalAvailable != 24 {
		t.Errorf("total = %v, want 24", sum.TotalAvailable)
	}
	if sum.Sales[0].Available != 30 {
		t.Errorf("sale 1 available = %v, want 30", sum.Sales[0].Available)
	}
	if sum.Sales[0].Display != DisplayExpired {
		t.Errorf("sale 1 display = %q, want expired", sum.Sales[0].Display)
	}
}

func TestAvailableEqualsOriginalMinusUsed(t *testing.T) {
	future := now.Add(time.Hour)
	cases := [][]model.Cashback{
		{{Amount: 1, UsedAmount: 1, ExpiresAt: future}},
		{{Amount: 12.5, UsedAmount: 2.5, ExpiresAt: future}, {Amount: 3, ExpiresAt: future}},
		{{Amount: 0, ExpiresAt: future}},
	}
	for i, cbs := range cases {
		s := Breakdown(sale(int64(i), cbs...), now)
		if s.Available != s.Original-s.Used {
			t.Errorf("case %d: available %v != %v - %v", i, s.Available, s.Original, s.Used)
		}
		if s.Available < 0 {
			t.Errorf("case %d: negative available %v", i, s.Available)
		}
	}
}

func TestFullyUsedDisplay(t *testing.T) {
	s := Breakdown(sale(1, model.Cashback{Amount: 10, UsedAmount: 10, ExpiresAt: now.Add(time.Hour)}), now)
	if s.Display != DisplayUsed {
		t.Errorf("display = %q, want %q", s.Display, DisplayUsed)
	}
}

func TestAvailableFragmentsOrder(t *testing.T) {
	cbs := []model.Cashback{
		{ID: 1, Amount: 10, ExpiresAt: now.Add(72 * time.Hour)},
		{ID: 2, Amount: 10, UsedAmount: 10, ExpiresAt: now.Add(time.Hour)},
		{ID: 3, Amount: 10, ExpiresAt: now.Add(-time.Hour)},
		{ID: 4, Amount: 10, UsedAmount: 2, ExpiresAt: now.Add(24 * time.Hour)},
	}
	got := AvailableFragments(cbs, now)

	var ids []int64
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]int64{4, 1}, ids); diff != "" {
		t.Errorf("fragment order (-want +got):\n%s", diff)
	}
	if TotalRemaining(got) != 18 {
		t.Errorf("remaining = %v, want 18", TotalRemaining(got))
	}
}

func TestTotalsRoundToCents(t *testing.T) {
	exp := now.Add(24 * time.Hour)
	sum := Compute([]model.SaleWithCashbacks{
		sale(1, model.Cashback{Amount: 0.1, ExpiresAt: exp}, model.Cashback{Amount: 0.2, ExpiresAt: exp}),
	}, now)

	if sum.TotalAvailable != 0.3 {
		t.Errorf("total = %v, want 0.3", sum.TotalAvailable)
	}
	if sc := sum.Sales[0]; sc.Original != 0.3 || sc.Available != 0.3 {
		t.Errorf("breakdown = %+v, want original and available 0.3", sc)
	}
}
