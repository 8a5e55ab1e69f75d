// Package token provides the in-process fungible ledger the escrow daemon
// holds in custody by default. The escrow engine only depends on the
// FungibleAsset capability surface, so any conforming asset can replace this
// ledger without engine changes.
package token

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
)

// Ledger is a concurrency-safe fungible asset with approvals, modelled on a
// 6-decimal stablecoin. Balances live at 20-byte identities; pull transfers
// require the owner to have approved the recipient for the amount.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	decimals   uint8
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]*big.Int
}

// NewLedger creates an empty ledger for the given symbol and precision.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		decimals:   decimals,
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

// Symbol reports the asset ticker.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals reports the asset's display precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// Mint credits freshly issued units to the account.
func (l *Ledger) Mint(account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, amount)
	return nil
}

// Approve sets the spender's allowance over the owner's balance. A zero
// amount clears the allowance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.Sign() == 0 {
		if grants, ok := l.allowances[owner]; ok {
			delete(grants, spender)
		}
		return nil
	}
	grants, ok := l.allowances[owner]
	if !ok {
		grants = make(map[[20]byte]*big.Int)
		l.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance reports how much the spender may still pull from the owner.
func (l *Ledger) Allowance(owner, spender [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if grants, ok := l.allowances[owner]; ok {
		if granted, ok := grants[spender]; ok && granted != nil {
			return new(big.Int).Set(granted)
		}
	}
	return big.NewInt(0)
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(sender, recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(sender, recipient, amount)
}

// TransferFrom pulls amount from owner into recipient, consuming the owner's
// allowance for the recipient.
func (l *Ledger) TransferFrom(owner, recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	grants, ok := l.allowances[owner]
	if !ok {
		return ErrInsufficientAllowance
	}
	granted, ok := grants[recipient]
	if !ok || granted == nil || granted.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(owner, recipient, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(granted, amount)
	if remaining.Sign() == 0 {
		delete(grants, recipient)
	} else {
		grants[recipient] = remaining
	}
	return nil
}

// BalanceOf reports the amount held by the account.
func (l *Ledger) BalanceOf(account [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[account]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply reports the sum of all balances.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := big.NewInt(0)
	for _, bal := range l.balances {
		if bal != nil {
			total.Add(total, bal)
		}
	}
	return total
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	bal, ok := l.balances[from]
	if !ok || bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[from] = new(big.Int).Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(account [20]byte, amount *big.Int) {
	current := big.NewInt(0)
	if existing, ok := l.balances[account]; ok && existing != nil {
		current = existing
	}
	l.balances[account] = new(big.Int).Add(current, amount)
}

type snapshot struct {
	Symbol     string                       `json:"symbol"`
	Decimals   uint8                        `json:"decimals"`
	Balances   map[string]string            `json:"balances"`
	Allowances map[string]map[string]string `json:"allowances,omitempty"`
}

// Snapshot serialises the full ledger so the daemon can persist it across
// restarts.
func (l *Ledger) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := snapshot{
		Symbol:     l.symbol,
		Decimals:   l.decimals,
		Balances:   make(map[string]string, len(l.balances)),
		Allowances: make(map[string]map[string]string, len(l.allowances)),
	}
	for account, bal := range l.balances {
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		snap.Balances[hex.EncodeToString(account[:])] = bal.String()
	}
	for owner, grants := range l.allowances {
		if len(grants) == 0 {
			continue
		}
		out := make(map[string]string, len(grants))
		for spender, granted := range grants {
			if granted == nil || granted.Sign() == 0 {
				continue
			}
			out[hex.EncodeToString(spender[:])] = granted.String()
		}
		if len(out) > 0 {
			snap.Allowances[hex.EncodeToString(owner[:])] = out
		}
	}
	return json.Marshal(snap)
}

// Restore replaces the ledger contents with a previously taken snapshot.
func (l *Ledger) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	balances := make(map[[20]byte]*big.Int, len(snap.Balances))
	for account, raw := range snap.Balances {
		addr, err := decodeAccount(account)
		if err != nil {
			return err
		}
		amount, err := decodeAmount(raw)
		if err != nil {
			return err
		}
		balances[addr] = amount
	}
	allowances := make(map[[20]byte]map[[20]byte]*big.Int, len(snap.Allowances))
	for owner, grants := range snap.Allowances {
		ownerAddr, err := decodeAccount(owner)
		if err != nil {
			return err
		}
		out := make(map[[20]byte]*big.Int, len(grants))
		for spender, raw := range grants {
			spenderAddr, err := decodeAccount(spender)
			if err != nil {
				return err
			}
			amount, err := decodeAmount(raw)
			if err != nil {
				return err
			}
			out[spenderAddr] = amount
		}
		allowances[ownerAddr] = out
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Symbol != "" {
		l.symbol = snap.Symbol
	}
	l.decimals = snap.Decimals
	l.balances = balances
	l.allowances = allowances
	return nil
}

func decodeAccount(raw string) ([20]byte, error) {
	var addr [20]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("token: invalid account %q: %w", raw, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("token: account %q must be 20 bytes", raw)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func decodeAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("token: invalid amount %q", raw)
	}
	return amount, nil
}
