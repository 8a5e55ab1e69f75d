package escrow

import (
	"math/big"
	"testing"
)

func sampleOrder() *Order {
	return &Order{
		ID:             [32]byte{0x01},
		Seller:         sellerAddr,
		Operator:       operatorAddr,
		ProductID:      "widget",
		UnitPrice:      big.NewInt(100),
		UnitsNeeded:    10,
		UnitsFunded:    3,
		CustodyBalance: big.NewInt(300),
		DueTimestamp:   testDue,
		CreatedAt:      testNow,
		Status:         OrderOpen,
		Contributions: []Contribution{
			{Buyer: buyerA, Amount: big.NewInt(200)},
			{Buyer: buyerB, Amount: big.NewInt(100)},
		},
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	original := sampleOrder()
	clone := original.Clone()

	clone.UnitPrice.SetInt64(999)
	clone.CustodyBalance.SetInt64(999)
	clone.Contributions[0].Amount.SetInt64(999)
	clone.Contributions = append(clone.Contributions, Contribution{Buyer: stranger, Amount: big.NewInt(1)})
	clone.Status = OrderDisputed

	if original.UnitPrice.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unit price mutated through clone")
	}
	if original.CustodyBalance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("custody mutated through clone")
	}
	if original.Contributions[0].Amount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("contribution mutated through clone")
	}
	if len(original.Contributions) != 2 {
		t.Fatalf("contribution slice shared with clone")
	}
	if original.Status != OrderOpen {
		t.Fatalf("status mutated through clone")
	}
}

func TestContributionAccounting(t *testing.T) {
	order := sampleOrder()

	if got := order.ContributionOf(buyerA); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("buyerA contribution = %s, want 200", got)
	}
	if got := order.ContributionOf(stranger); got.Sign() != 0 {
		t.Fatalf("stranger contribution = %s, want 0", got)
	}
	if !order.IsFunder(buyerB) {
		t.Fatalf("buyerB must count as funder")
	}
	if order.IsFunder(stranger) {
		t.Fatalf("stranger must not count as funder")
	}

	order.credit(buyerA, big.NewInt(50))
	if got := order.ContributionOf(buyerA); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("buyerA after credit = %s, want 250", got)
	}
	if len(order.Contributions) != 2 {
		t.Fatalf("credit to existing funder must not append a new entry")
	}

	order.credit(stranger, big.NewInt(10))
	if len(order.Contributions) != 3 {
		t.Fatalf("credit to new funder must append")
	}
	if order.Contributions[2].Buyer != stranger {
		t.Fatalf("new funder must append at the tail")
	}
}

func TestSanitizeOrder(t *testing.T) {
	valid := sampleOrder()
	valid.ProductID = "  widget  "
	cleaned, err := SanitizeOrder(valid)
	if err != nil {
		t.Fatalf("SanitizeOrder: %v", err)
	}
	if cleaned.ProductID != "widget" {
		t.Fatalf("product id not trimmed: %q", cleaned.ProductID)
	}
	if valid.ProductID != "  widget  " {
		t.Fatalf("SanitizeOrder mutated its input")
	}

	cases := []struct {
		name   string
		mutate func(*Order)
	}{
		{"zero price", func(o *Order) { o.UnitPrice = big.NewInt(0) }},
		{"zero units", func(o *Order) { o.UnitsNeeded = 0 }},
		{"funded past target", func(o *Order) { o.UnitsFunded = o.UnitsNeeded + 1 }},
		{"negative custody", func(o *Order) { o.CustodyBalance = big.NewInt(-1) }},
		{"bad status", func(o *Order) { o.Status = OrderStatus(42) }},
		{"negative contribution", func(o *Order) { o.Contributions[0].Amount = big.NewInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := sampleOrder()
			tc.mutate(order)
			if _, err := SanitizeOrder(order); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}

	if _, err := SanitizeOrder(nil); err == nil {
		t.Fatalf("nil order must be rejected")
	}
}

func TestOrderStatusStrings(t *testing.T) {
	pairs := map[OrderStatus]string{
		OrderOpen:        "open",
		OrderFullyFunded: "fully_funded",
		OrderReleased:    "released",
		OrderRefunded:    "refunded",
		OrderDisputed:    "disputed",
	}
	for status, want := range pairs {
		if status.String() != want {
			t.Fatalf("%d.String() = %s, want %s", status, status.String(), want)
		}
	}
	if !OrderReleased.Terminal() || !OrderRefunded.Terminal() {
		t.Fatalf("released and refunded must be terminal")
	}
	if OrderOpen.Terminal() || OrderFullyFunded.Terminal() || OrderDisputed.Terminal() {
		t.Fatalf("non-terminal status reported terminal")
	}
}
