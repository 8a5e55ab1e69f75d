package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"escrowd/core/state"
	"escrowd/crypto"
	"escrowd/native/escrow"
	"escrowd/observability"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type createOrderParams struct {
	Seller       string `json:"seller"`
	ProductID    string `json:"productId"`
	UnitPrice    string `json:"unitPrice"`
	UnitsNeeded  uint64 `json:"unitsNeeded"`
	DueTimestamp int64  `json:"dueTimestamp"`
}

type orderIDParams struct {
	ID string `json:"id"`
}

type orderActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type orderFundParams struct {
	ID    string `json:"id"`
	Buyer string `json:"buyer"`
	Units uint64 `json:"units"`
}

type orderResolveParams struct {
	ID              string `json:"id"`
	Caller          string `json:"caller"`
	ReleaseToSeller bool   `json:"releaseToSeller"`
}

type orderAtParams struct {
	Index uint64 `json:"index"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type createOrderResult struct {
	ID string `json:"id"`
}

type orderCountResult struct {
	Count uint64 `json:"count"`
}

type contributionJSON struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

type orderJSON struct {
	ID             string             `json:"id"`
	Seller         string             `json:"seller"`
	Operator       string             `json:"operator"`
	ProductID      string             `json:"productId"`
	UnitPrice      string             `json:"unitPrice"`
	UnitsNeeded    uint64             `json:"unitsNeeded"`
	UnitsFunded    uint64             `json:"unitsFunded"`
	CustodyBalance string             `json:"custodyBalance"`
	CustodyVault   string             `json:"custodyVault"`
	DueTimestamp   int64              `json:"dueTimestamp"`
	CreatedAt      int64              `json:"createdAt"`
	Status         string             `json:"status"`
	Contributions  []contributionJSON `json:"contributions,omitempty"`
}

func (s *Server) handleEscrowCreateOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createOrderParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	seller, err := parseBech32Address(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	unitPrice, err := parsePositiveBigInt(params.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.registry.CreateOrder(seller, params.ProductID, unitPrice, params.UnitsNeeded, params.DueTimestamp)
	if err != nil {
		observability.Escrow().RecordGuardFailure("createOrder")
		writeEscrowError(w, req.ID, err)
		return
	}
	observability.Escrow().RecordOrderCreated()
	writeResult(w, req.ID, createOrderResult{ID: formatOrderID(order.ID)})
}

func (s *Server) handleEscrowGetOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params orderIDParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := state.OrderIDFromHex(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.registry.Engine().GetOrder(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatOrderJSON(order))
}

func (s *Server) handleEscrowOrderCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.registry.OrderCount()
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderCountResult{Count: count})
}

func (s *Server) handleEscrowOrderAt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params orderAtParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := s.registry.OrderAt(params.Index)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createOrderResult{ID: formatOrderID(id)})
}

func (s *Server) handleEscrowListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if !decodeSingleParam(w, req, &params) {
			return
		}
	}
	events, err := s.manager.EventList(params.Prefix, params.Limit)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, events)
}

func (s *Server) handleEscrowFund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params orderFundParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := state.OrderIDFromHex(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.registry.Engine().Fund(id, buyer, params.Units); err != nil {
		observability.Escrow().RecordGuardFailure("fund")
		writeEscrowError(w, req.ID, err)
		return
	}
	observability.Escrow().RecordTransition("fund")
	s.writeOrderSnapshot(w, req, id)
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleOrderActorCall(w, req, "release", func(id [32]byte, caller [20]byte) error {
		return s.registry.Engine().Release(id, caller)
	})
}

func (s *Server) handleEscrowDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleOrderActorCall(w, req, "dispute", func(id [32]byte, caller [20]byte) error {
		return s.registry.Engine().Dispute(id, caller)
	})
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleOrderActorCall(w, req, "refund", func(id [32]byte, caller [20]byte) error {
		return s.registry.Engine().Refund(id, caller)
	})
}

func (s *Server) handleEscrowResolve(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params orderResolveParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := state.OrderIDFromHex(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.registry.Engine().Resolve(id, caller, params.ReleaseToSeller); err != nil {
		observability.Escrow().RecordGuardFailure("resolve")
		writeEscrowError(w, req.ID, err)
		return
	}
	observability.Escrow().RecordTransition("resolve")
	s.writeOrderSnapshot(w, req, id)
}

func (s *Server) handleOrderActorCall(w http.ResponseWriter, req *RPCRequest, op string, call func([32]byte, [20]byte) error) {
	var params orderActorParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := state.OrderIDFromHex(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := call(id, caller); err != nil {
		observability.Escrow().RecordGuardFailure(op)
		writeEscrowError(w, req.ID, err)
		return
	}
	observability.Escrow().RecordTransition(op)
	s.writeOrderSnapshot(w, req, id)
}

func (s *Server) writeOrderSnapshot(w http.ResponseWriter, req *RPCRequest, id [32]byte) {
	order, err := s.registry.Engine().GetOrder(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatOrderJSON(order))
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func parseBech32Address(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func formatOrderID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatOrderJSON(order *escrow.Order) orderJSON {
	contributions := make([]contributionJSON, 0, len(order.Contributions))
	for _, c := range order.Contributions {
		amount := "0"
		if c.Amount != nil {
			amount = c.Amount.String()
		}
		contributions = append(contributions, contributionJSON{
			Buyer:  crypto.MustAddress(c.Buyer).String(),
			Amount: amount,
		})
	}
	custody := "0"
	if order.CustodyBalance != nil {
		custody = order.CustodyBalance.String()
	}
	unitPrice := "0"
	if order.UnitPrice != nil {
		unitPrice = order.UnitPrice.String()
	}
	vault := escrow.OrderVaultAddress(order.ID)
	return orderJSON{
		ID:             formatOrderID(order.ID),
		Seller:         crypto.MustAddress(order.Seller).String(),
		Operator:       crypto.MustAddress(order.Operator).String(),
		ProductID:      order.ProductID,
		UnitPrice:      unitPrice,
		UnitsNeeded:    order.UnitsNeeded,
		UnitsFunded:    order.UnitsFunded,
		CustodyBalance: custody,
		CustodyVault:   crypto.MustAddress(vault).String(),
		DueTimestamp:   order.DueTimestamp,
		CreatedAt:      order.CreatedAt,
		Status:         order.Status.String(),
		Contributions:  contributions,
	}
}

func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrOrderNotFound):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrInvalidStateTransition),
		errors.Is(err, escrow.ErrFundingExceedsTarget),
		errors.Is(err, escrow.ErrTooLate),
		errors.Is(err, escrow.ErrTooEarly),
		errors.Is(err, escrow.ErrTransferFailed):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	case errors.Is(err, escrow.ErrInvalidOrderParameters),
		errors.Is(err, escrow.ErrIndexOutOfRange),
		errors.Is(err, escrow.ErrInvalidConfiguration):
		status = http.StatusBadRequest
		code = codeEscrowInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, err.Error())
}
