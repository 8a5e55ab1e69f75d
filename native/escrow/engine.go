package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"escrowd/core/events"
	nativecommon "escrowd/native/common"
)

const orderModuleName = "escrow.order"

var (
	errNilState = errors.New("escrow engine: state not configured")
	errNilAsset = errors.New("escrow engine: asset not configured")
)

type engineState interface {
	OrderPut(*Order) error
	OrderGet(id [32]byte) (*Order, bool)
}

// Engine executes order state transitions against external state, the shared
// asset and the configured event emitter. Every transition runs as one
// serialized unit of work per order: a per-order in-flight guard rejects any
// call into an order whose prior transition has not finished, including a
// reentrant call issued from inside the asset's own transfer path. State is
// persisted before the asset interaction and restored in full if the asset
// rejects the transfer, so no partial mutation ever survives a failed call.
type Engine struct {
	state    engineState
	asset    FungibleAsset
	operator [20]byte
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView

	mu       sync.Mutex
	inflight map[[32]byte]struct{}
}

// NewEngine creates an engine bound to the asset and operator shared by all
// orders. Both identities are immutable for the engine's lifetime.
func NewEngine(asset FungibleAsset, operator [20]byte) (*Engine, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: asset must not be nil", ErrInvalidConfiguration)
	}
	if operator == ([20]byte{}) {
		return nil, fmt.Errorf("%w: operator must not be the zero identity", ErrInvalidConfiguration)
	}
	return &Engine{
		asset:    asset,
		operator: operator,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		inflight: make(map[[32]byte]struct{}),
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the administrative pause switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// Operator reports the arbitration identity shared by all orders.
func (e *Engine) Operator() [20]byte { return e.operator }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// begin marks the order as having a transition in flight. A second entry for
// the same order, whether from another goroutine or a reentrant call out of
// the asset's transfer hook, is rejected rather than queued.
func (e *Engine) begin(id [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return fmt.Errorf("%w: order busy", ErrInvalidStateTransition)
	}
	e.inflight[id] = struct{}{}
	return nil
}

func (e *Engine) end(id [32]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

func (e *Engine) loadOrder(id [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetOrder returns a snapshot of the order, including after terminal
// transitions; orders remain queryable indefinitely.
func (e *Engine) GetOrder(id [32]byte) (*Order, error) {
	return e.loadOrder(id)
}

// Fund pulls unitPrice*units from the buyer into the order's custody vault
// and credits the buyer's contribution. The order moves to FullyFunded once
// the target quantity is met.
func (e *Engine) Fund(id [32]byte, buyer [20]byte, units uint64) error {
	if err := nativecommon.Guard(e.pauses, orderModuleName); err != nil {
		return err
	}
	if e.asset == nil {
		return errNilAsset
	}
	if err := e.begin(id); err != nil {
		return err
	}
	defer e.end(id)

	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: cannot fund in status %s", ErrInvalidStateTransition, order.Status)
	}
	if buyer == ([20]byte{}) {
		return fmt.Errorf("%w: buyer must not be the zero identity", ErrInvalidOrderParameters)
	}
	if units == 0 {
		return fmt.Errorf("%w: units must be positive", ErrInvalidOrderParameters)
	}
	if e.now() >= order.DueTimestamp {
		return fmt.Errorf("%w: due timestamp reached", ErrTooLate)
	}
	// Compare against the remaining headroom; summing funded and requested
	// units could wrap uint64.
	if units > order.UnitsNeeded-order.UnitsFunded {
		return fmt.Errorf("%w: %d funded + %d requested > %d needed", ErrFundingExceedsTarget, order.UnitsFunded, units, order.UnitsNeeded)
	}

	amount := new(big.Int).Mul(order.UnitPrice, new(big.Int).SetUint64(units))
	prior := order.Clone()
	updated := order.Clone()
	updated.credit(buyer, amount)
	updated.UnitsFunded += units
	updated.CustodyBalance = new(big.Int).Add(updated.CustodyBalance, amount)
	if updated.UnitsFunded == updated.UnitsNeeded {
		updated.Status = OrderFullyFunded
	}
	if err := e.state.OrderPut(updated); err != nil {
		return err
	}
	if err := e.asset.TransferFrom(buyer, OrderVaultAddress(id), amount); err != nil {
		if restoreErr := e.state.OrderPut(prior); restoreErr != nil {
			return fmt.Errorf("%w: %v (restore failed: %v)", ErrTransferFailed, err, restoreErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(OrderFundedEvent{
		OrderID:     id,
		Buyer:       buyer,
		Units:       units,
		Amount:      amount,
		UnitsFunded: updated.UnitsFunded,
		Status:      updated.Status,
	})
	return nil
}

// Release pays the full custody balance to the seller. Only reachable from
// FullyFunded, and only by the seller or the operator.
func (e *Engine) Release(id [32]byte, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, orderModuleName); err != nil {
		return err
	}
	if e.asset == nil {
		return errNilAsset
	}
	if err := e.begin(id); err != nil {
		return err
	}
	defer e.end(id)

	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if order.Status != OrderFullyFunded {
		return fmt.Errorf("%w: cannot release in status %s", ErrInvalidStateTransition, order.Status)
	}
	if caller != order.Seller && caller != e.operator {
		return fmt.Errorf("%w: release requires seller or operator", ErrUnauthorized)
	}
	return e.payToSeller(order)
}

// Dispute freezes the order for arbitration. The seller, the operator and
// any funder with a nonzero contribution may initiate it.
func (e *Engine) Dispute(id [32]byte, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, orderModuleName); err != nil {
		return err
	}
	if err := e.begin(id); err != nil {
		return err
	}
	defer e.end(id)

	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if order.Status != OrderOpen && order.Status != OrderFullyFunded {
		return fmt.Errorf("%w: cannot dispute in status %s", ErrInvalidStateTransition, order.Status)
	}
	if caller != order.Seller && caller != e.operator && !order.IsFunder(caller) {
		return fmt.Errorf("%w: dispute requires seller, operator or funder", ErrUnauthorized)
	}
	updated := order.Clone()
	updated.Status = OrderDisputed
	if err := e.state.OrderPut(updated); err != nil {
		return err
	}
	e.emit(OrderDisputedEvent{OrderID: id, Initiator: caller})
	return nil
}

// Resolve settles a disputed order by operator decision: pay the seller the
// full custody balance, or return every funder exactly their recorded
// contribution.
func (e *Engine) Resolve(id [32]byte, caller [20]byte, releaseToSeller bool) error {
	if err := nativecommon.Guard(e.pauses, orderModuleName); err != nil {
		return err
	}
	if e.asset == nil {
		return errNilAsset
	}
	if err := e.begin(id); err != nil {
		return err
	}
	defer e.end(id)

	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if order.Status != OrderDisputed {
		return fmt.Errorf("%w: cannot resolve in status %s", ErrInvalidStateTransition, order.Status)
	}
	if caller != e.operator {
		return fmt.Errorf("%w: resolve requires operator", ErrUnauthorized)
	}
	if releaseToSeller {
		return e.payToSeller(order)
	}
	return e.refundContributions(order)
}

// Refund returns every contribution after the due timestamp has passed
// without the order ever reaching its funding target. Any funder, the seller
// or the operator may trigger it.
func (e *Engine) Refund(id [32]byte, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, orderModuleName); err != nil {
		return err
	}
	if e.asset == nil {
		return errNilAsset
	}
	if err := e.begin(id); err != nil {
		return err
	}
	defer e.end(id)

	order, err := e.loadOrder(id)
	if err != nil {
		return err
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: cannot refund in status %s", ErrInvalidStateTransition, order.Status)
	}
	if e.now() < order.DueTimestamp {
		return fmt.Errorf("%w: due timestamp not reached", ErrTooEarly)
	}
	if caller != order.Seller && caller != e.operator && !order.IsFunder(caller) {
		return fmt.Errorf("%w: refund requires seller, operator or funder", ErrUnauthorized)
	}
	return e.refundContributions(order)
}

// payToSeller commits the terminal Released state, then pays the prior
// custody balance out of the order vault.
func (e *Engine) payToSeller(order *Order) error {
	prior := order.Clone()
	amount := cloneBigInt(order.CustodyBalance)
	updated := order.Clone()
	updated.CustodyBalance = big.NewInt(0)
	updated.Status = OrderReleased
	if err := e.state.OrderPut(updated); err != nil {
		return err
	}
	if amount.Sign() > 0 {
		if err := e.asset.Transfer(OrderVaultAddress(order.ID), order.Seller, amount); err != nil {
			if restoreErr := e.state.OrderPut(prior); restoreErr != nil {
				return fmt.Errorf("%w: %v (restore failed: %v)", ErrTransferFailed, err, restoreErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	e.emit(OrderReleasedEvent{OrderID: order.ID, Seller: order.Seller, Amount: amount})
	return nil
}

// refundContributions commits the terminal Refunded state, then repays each
// funder their recorded contribution in insertion order. The vault balance is
// checked up front so a conforming asset cannot fail mid-loop; if it still
// does, the prior order state is restored and the caller may retry.
func (e *Engine) refundContributions(order *Order) error {
	prior := order.Clone()
	vault := OrderVaultAddress(order.ID)
	if held := e.asset.BalanceOf(vault); held == nil || held.Cmp(order.CustodyBalance) < 0 {
		return fmt.Errorf("%w: vault holds less than custody balance", ErrTransferFailed)
	}
	updated := order.Clone()
	updated.CustodyBalance = big.NewInt(0)
	updated.Status = OrderRefunded
	if err := e.state.OrderPut(updated); err != nil {
		return err
	}
	for _, c := range prior.Contributions {
		if c.Amount == nil || c.Amount.Sign() == 0 {
			continue
		}
		if err := e.asset.Transfer(vault, c.Buyer, c.Amount); err != nil {
			if restoreErr := e.state.OrderPut(prior); restoreErr != nil {
				return fmt.Errorf("%w: %v (restore failed: %v)", ErrTransferFailed, err, restoreErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	for _, c := range prior.Contributions {
		if c.Amount == nil || c.Amount.Sign() == 0 {
			continue
		}
		e.emit(OrderRefundedEvent{OrderID: order.ID, Buyer: c.Buyer, Amount: cloneBigInt(c.Amount)})
	}
	return nil
}
