package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestNewEngineConfiguration(t *testing.T) {
	if _, err := NewEngine(nil, operatorAddr); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("nil asset: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewEngine(&hookAsset{}, [20]byte{}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("zero operator: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewRegistry(nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("nil engine: err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name      string
		seller    [20]byte
		productID string
		unitPrice *big.Int
		units     uint64
		due       int64
	}{
		{"zero seller", [20]byte{}, "widget", big.NewInt(1), 1, testDue},
		{"seller is operator", operatorAddr, "widget", big.NewInt(1), 1, testDue},
		{"empty product", sellerAddr, "   ", big.NewInt(1), 1, testDue},
		{"zero price", sellerAddr, "widget", big.NewInt(0), 1, testDue},
		{"negative price", sellerAddr, "widget", big.NewInt(-5), 1, testDue},
		{"nil price", sellerAddr, "widget", nil, 1, testDue},
		{"zero units", sellerAddr, "widget", big.NewInt(1), 0, testDue},
		{"due in past", sellerAddr, "widget", big.NewInt(1), 1, testNow - 1},
		{"due at now", sellerAddr, "widget", big.NewInt(1), 1, testNow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.registry.CreateOrder(tc.seller, tc.productID, tc.unitPrice, tc.units, tc.due)
			if !errors.Is(err, ErrInvalidOrderParameters) {
				t.Fatalf("err = %v, want ErrInvalidOrderParameters", err)
			}
		})
	}

	if count, err := f.registry.OrderCount(); err != nil || count != 0 {
		t.Fatalf("count after rejected creates = %d (%v), want 0", count, err)
	}
}

func TestCreateOrderInitialState(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 100, 5)

	if order.Status != OrderOpen {
		t.Fatalf("status = %s, want open", order.Status)
	}
	if order.UnitsFunded != 0 {
		t.Fatalf("units funded = %d, want 0", order.UnitsFunded)
	}
	if order.CustodyBalance.Sign() != 0 {
		t.Fatalf("custody = %s, want 0", order.CustodyBalance)
	}
	if order.Operator != operatorAddr {
		t.Fatalf("operator not pinned on order")
	}
	if order.CreatedAt != testNow {
		t.Fatalf("created at = %d, want %d", order.CreatedAt, testNow)
	}

	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType() != EventTypeOrderCreated {
		t.Fatalf("events after create = %v", f.emitter.typesSeen())
	}
}

func TestOrderDirectory(t *testing.T) {
	f := newFixture(t)

	first, err := f.registry.CreateOrder(sellerAddr, "widget", big.NewInt(10), 1, testDue)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := f.registry.CreateOrder(sellerAddr, "widget", big.NewInt(10), 1, testDue)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("identical parameters must still mint distinct ids")
	}

	count, err := f.registry.OrderCount()
	if err != nil {
		t.Fatalf("OrderCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	id0, err := f.registry.OrderAt(0)
	if err != nil {
		t.Fatalf("OrderAt(0): %v", err)
	}
	if id0 != first.ID {
		t.Fatalf("OrderAt(0) returned wrong id")
	}
	id1, err := f.registry.OrderAt(1)
	if err != nil {
		t.Fatalf("OrderAt(1): %v", err)
	}
	if id1 != second.ID {
		t.Fatalf("OrderAt(1) returned wrong id")
	}

	if _, err := f.registry.OrderAt(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("OrderAt(2): err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestCreateOrderPause(t *testing.T) {
	f := newFixture(t)
	pauses := pauseOnly{module: "escrow.registry"}
	f.registry.SetPauses(pauses)

	if _, err := f.registry.CreateOrder(sellerAddr, "widget", big.NewInt(10), 1, testDue); err == nil {
		t.Fatalf("create while registry paused must fail")
	}
}

type pauseOnly struct {
	module string
}

func (p pauseOnly) IsPaused(module string) bool { return module == p.module }
