package escrow

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	nativecommon "escrowd/native/common"
)

const registryModuleName = "escrow.registry"

type registryState interface {
	engineState
	OrderIndexAppend(id [32]byte) error
	OrderIndexCount() (uint64, error)
	OrderIndexAt(index uint64) ([32]byte, bool, error)
}

// Registry is the factory for escrow orders. It binds every order it creates
// to the shared asset and operator carried by the engine and maintains an
// append-only, insertion-ordered directory of order identifiers. After
// creation all activity happens against the order through the engine; the
// registry is only consulted again for enumeration.
type Registry struct {
	engine *Engine
	state  registryState
	pauses nativecommon.PauseView
}

// NewRegistry constructs a registry over a configured engine.
func NewRegistry(engine *Engine) (*Registry, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidConfiguration)
	}
	return &Registry{engine: engine}, nil
}

// SetState configures the state backend used for orders and the directory.
// The same backend is handed to the wrapped engine so both observe one
// consistent order book.
func (r *Registry) SetState(state registryState) {
	r.state = state
	if r.engine != nil {
		r.engine.SetState(state)
	}
}

// SetPauses wires the administrative pause switch.
func (r *Registry) SetPauses(p nativecommon.PauseView) {
	r.pauses = p
	if r.engine != nil {
		r.engine.SetPauses(p)
	}
}

// Engine exposes the transition engine shared by every order.
func (r *Registry) Engine() *Engine { return r.engine }

// Asset reports the fungible asset accepted by all orders.
func (r *Registry) Asset() FungibleAsset {
	if r == nil || r.engine == nil {
		return nil
	}
	return r.engine.asset
}

// Operator reports the identity authorized to arbitrate disputes.
func (r *Registry) Operator() [20]byte {
	if r == nil || r.engine == nil {
		return [20]byte{}
	}
	return r.engine.operator
}

// CreateOrder validates the listing parameters, mints a new order in the
// Open state with nothing funded, appends its identifier to the directory
// and emits the creation event. The identifier is the keccak256 hash of the
// operator, seller, product id and the directory sequence, so identifiers
// are deterministic and distinct across the registry's lifetime.
func (r *Registry) CreateOrder(seller [20]byte, productID string, unitPrice *big.Int, unitsNeeded uint64, dueTimestamp int64) (*Order, error) {
	if r == nil || r.state == nil || r.engine == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(r.pauses, registryModuleName); err != nil {
		return nil, err
	}
	if seller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: seller must not be the zero identity", ErrInvalidOrderParameters)
	}
	if seller == r.engine.operator {
		return nil, fmt.Errorf("%w: seller must not be the operator", ErrInvalidOrderParameters)
	}
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: product id required", ErrInvalidOrderParameters)
	}
	price := cloneBigInt(unitPrice)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: unit price must be positive", ErrInvalidOrderParameters)
	}
	if unitsNeeded == 0 {
		return nil, fmt.Errorf("%w: units needed must be positive", ErrInvalidOrderParameters)
	}
	now := r.engine.now()
	if dueTimestamp <= now {
		return nil, fmt.Errorf("%w: due timestamp must be in the future", ErrInvalidOrderParameters)
	}

	seq, err := r.state.OrderIndexCount()
	if err != nil {
		return nil, err
	}
	id := mintOrderID(r.engine.operator, seller, trimmed, seq)
	if _, exists := r.state.OrderGet(id); exists {
		return nil, fmt.Errorf("%w: identifier collision for sequence %d", ErrInvalidOrderParameters, seq)
	}
	order := &Order{
		ID:             id,
		Seller:         seller,
		Operator:       r.engine.operator,
		ProductID:      trimmed,
		UnitPrice:      price,
		UnitsNeeded:    unitsNeeded,
		UnitsFunded:    0,
		CustodyBalance: big.NewInt(0),
		DueTimestamp:   dueTimestamp,
		CreatedAt:      now,
		Status:         OrderOpen,
	}
	if err := r.state.OrderPut(order); err != nil {
		return nil, err
	}
	if err := r.state.OrderIndexAppend(id); err != nil {
		return nil, err
	}
	r.engine.emit(OrderCreatedEvent{OrderID: id, Seller: seller, ProductID: trimmed})
	return order.Clone(), nil
}

// OrderCount returns the number of orders ever created by the registry.
func (r *Registry) OrderCount() (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	return r.state.OrderIndexCount()
}

// OrderAt returns the identifier at the given position in creation order.
func (r *Registry) OrderAt(index uint64) ([32]byte, error) {
	if r == nil || r.state == nil {
		return [32]byte{}, errNilState
	}
	id, ok, err := r.state.OrderIndexAt(index)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, index)
	}
	return id, nil
}

func mintOrderID(operator, seller [20]byte, productID string, seq uint64) [32]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return ethcrypto.Keccak256Hash(operator[:], seller[:], []byte(productID), seqBytes[:])
}
