package rpc

import (
	"net/http"

	"escrowd/crypto"
)

type tokenMintParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type tokenApproveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type tokenAccountParams struct {
	Account string `json:"account"`
}

type tokenBalanceResult struct {
	Account  string `json:"account"`
	Balance  string `json:"balance"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type tokenAckResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleTokenMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenMintParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.ledger.Mint(account, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, tokenAckResult{OK: true})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenApproveParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	spender, err := parseBech32Address(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.ledger.Approve(owner, spender, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, tokenAckResult{OK: true})
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenAccountParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance := s.ledger.BalanceOf(account)
	writeResult(w, req.ID, tokenBalanceResult{
		Account:  crypto.MustAddress(account).String(),
		Balance:  balance.String(),
		Symbol:   s.ledger.Symbol(),
		Decimals: s.ledger.Decimals(),
	})
}
