package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// OrderStatus represents the lifecycle states of a single escrow order.
type OrderStatus uint8

const (
	OrderOpen OrderStatus = iota
	OrderFullyFunded
	OrderReleased
	OrderRefunded
	OrderDisputed
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderReleased || s == OrderRefunded
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderFullyFunded, OrderReleased, OrderRefunded, OrderDisputed:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFullyFunded:
		return "fully_funded"
	case OrderReleased:
		return "released"
	case OrderRefunded:
		return "refunded"
	case OrderDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Contribution records a single buyer's cumulative payment into an order.
// Contributions keep insertion order so refunds walk funders in the order
// they first paid.
type Contribution struct {
	Buyer  [20]byte `json:"buyer"`
	Amount *big.Int `json:"amount"`
}

// Order captures the immutable listing metadata and runtime funding state of
// one escrow created by the registry. Orders are never destroyed; terminal
// transitions zero the custody balance and freeze every other field.
type Order struct {
	ID             [32]byte       `json:"id"`
	Seller         [20]byte       `json:"seller"`
	Operator       [20]byte       `json:"operator"`
	ProductID      string         `json:"productId"`
	UnitPrice      *big.Int       `json:"unitPrice"`
	UnitsNeeded    uint64         `json:"unitsNeeded"`
	UnitsFunded    uint64         `json:"unitsFunded"`
	CustodyBalance *big.Int       `json:"custodyBalance"`
	DueTimestamp   int64          `json:"dueTimestamp"`
	CreatedAt      int64          `json:"createdAt"`
	Status         OrderStatus    `json:"status"`
	Contributions  []Contribution `json:"contributions,omitempty"`
}

// Clone returns a deep copy of the order so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(o.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	if o.CustodyBalance != nil {
		clone.CustodyBalance = new(big.Int).Set(o.CustodyBalance)
	} else {
		clone.CustodyBalance = big.NewInt(0)
	}
	if len(o.Contributions) > 0 {
		clone.Contributions = make([]Contribution, len(o.Contributions))
		for i, c := range o.Contributions {
			clone.Contributions[i] = Contribution{Buyer: c.Buyer, Amount: cloneBigInt(c.Amount)}
		}
	} else {
		clone.Contributions = nil
	}
	return &clone
}

// ContributionOf returns the cumulative amount the buyer has paid into the
// order, zero when the buyer never funded it.
func (o *Order) ContributionOf(buyer [20]byte) *big.Int {
	if o == nil {
		return big.NewInt(0)
	}
	for _, c := range o.Contributions {
		if c.Buyer == buyer {
			return cloneBigInt(c.Amount)
		}
	}
	return big.NewInt(0)
}

// IsFunder reports whether the identity holds a nonzero contribution.
func (o *Order) IsFunder(addr [20]byte) bool {
	return o.ContributionOf(addr).Sign() > 0
}

func (o *Order) credit(buyer [20]byte, amount *big.Int) {
	for i := range o.Contributions {
		if o.Contributions[i].Buyer == buyer {
			o.Contributions[i].Amount = new(big.Int).Add(cloneBigInt(o.Contributions[i].Amount), amount)
			return
		}
	}
	o.Contributions = append(o.Contributions, Contribution{Buyer: buyer, Amount: cloneBigInt(amount)})
}

// SanitizeOrder validates and normalises the supplied order, returning a
// cloned instance with trimmed product id and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("nil order")
	}
	clone := o.Clone()
	clone.ProductID = strings.TrimSpace(clone.ProductID)
	if clone.UnitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("order unit price must be positive")
	}
	if clone.UnitsNeeded == 0 {
		return nil, fmt.Errorf("order units needed must be positive")
	}
	if clone.UnitsFunded > clone.UnitsNeeded {
		return nil, fmt.Errorf("order units funded %d exceed target %d", clone.UnitsFunded, clone.UnitsNeeded)
	}
	if clone.CustodyBalance.Sign() < 0 {
		return nil, fmt.Errorf("order custody balance must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid order status: %d", clone.Status)
	}
	for _, c := range clone.Contributions {
		if c.Amount == nil || c.Amount.Sign() < 0 {
			return nil, fmt.Errorf("order contribution must be non-negative")
		}
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
