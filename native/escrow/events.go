package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"escrowd/core/types"
	"escrowd/crypto"
)

const (
	EventTypeOrderCreated  = "escrow.order.created"
	EventTypeOrderFunded   = "escrow.order.funded"
	EventTypeOrderReleased = "escrow.order.released"
	EventTypeOrderDisputed = "escrow.order.disputed"
	EventTypeOrderRefunded = "escrow.order.refunded"
)

// OrderCreatedEvent is emitted once per successful registry CreateOrder call.
type OrderCreatedEvent struct {
	OrderID   [32]byte
	Seller    [20]byte
	ProductID string
}

func (OrderCreatedEvent) EventType() string { return EventTypeOrderCreated }

func (e OrderCreatedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOrderCreated,
		Attributes: map[string]string{
			"orderId":   hex.EncodeToString(e.OrderID[:]),
			"seller":    crypto.MustAddress(e.Seller).String(),
			"productId": e.ProductID,
		},
	}
}

// OrderFundedEvent is emitted for every accepted buyer contribution.
type OrderFundedEvent struct {
	OrderID     [32]byte
	Buyer       [20]byte
	Units       uint64
	Amount      *big.Int
	UnitsFunded uint64
	Status      OrderStatus
}

func (OrderFundedEvent) EventType() string { return EventTypeOrderFunded }

func (e OrderFundedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOrderFunded,
		Attributes: map[string]string{
			"orderId":     hex.EncodeToString(e.OrderID[:]),
			"buyer":       crypto.MustAddress(e.Buyer).String(),
			"units":       strconv.FormatUint(e.Units, 10),
			"amount":      formatAmount(e.Amount),
			"unitsFunded": strconv.FormatUint(e.UnitsFunded, 10),
			"status":      e.Status.String(),
		},
	}
}

// OrderReleasedEvent is emitted when custody pays out to the seller.
type OrderReleasedEvent struct {
	OrderID [32]byte
	Seller  [20]byte
	Amount  *big.Int
}

func (OrderReleasedEvent) EventType() string { return EventTypeOrderReleased }

func (e OrderReleasedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOrderReleased,
		Attributes: map[string]string{
			"orderId": hex.EncodeToString(e.OrderID[:]),
			"seller":  crypto.MustAddress(e.Seller).String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// OrderDisputedEvent is emitted when a party freezes the order for
// arbitration.
type OrderDisputedEvent struct {
	OrderID   [32]byte
	Initiator [20]byte
}

func (OrderDisputedEvent) EventType() string { return EventTypeOrderDisputed }

func (e OrderDisputedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOrderDisputed,
		Attributes: map[string]string{
			"orderId":   hex.EncodeToString(e.OrderID[:]),
			"initiator": crypto.MustAddress(e.Initiator).String(),
		},
	}
}

// OrderRefundedEvent is emitted once per funder repaid by a refund or a
// refund-side dispute resolution.
type OrderRefundedEvent struct {
	OrderID [32]byte
	Buyer   [20]byte
	Amount  *big.Int
}

func (OrderRefundedEvent) EventType() string { return EventTypeOrderRefunded }

func (e OrderRefundedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeOrderRefunded,
		Attributes: map[string]string{
			"orderId": hex.EncodeToString(e.OrderID[:]),
			"buyer":   crypto.MustAddress(e.Buyer).String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
