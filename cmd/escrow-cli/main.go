package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"escrowd/crypto"
)

const defaultRPCURL = "http://127.0.0.1:8545"

var (
	cliNow  = time.Now
	rpcCall = callRPC
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "create":
		return runCreate(args[1:], stdout, stderr)
	case "get":
		return runGet(args[1:], stdout, stderr)
	case "fund":
		return runFund(args[1:], stdout, stderr)
	case "release":
		return runActorCall("escrow_release", "escrow release", args[1:], stdout, stderr)
	case "dispute":
		return runActorCall("escrow_dispute", "escrow dispute", args[1:], stdout, stderr)
	case "refund":
		return runActorCall("escrow_refund", "escrow refund", args[1:], stdout, stderr)
	case "resolve":
		return runResolve(args[1:], stdout, stderr)
	case "list":
		return runList(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "mint":
		return runMint(args[1:], stdout, stderr)
	case "approve":
		return runApprove(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "gen-address":
		return runGenAddress(stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	var (
		seller    string
		productID string
		unitPrice string
		units     uint64
		due       string
	)
	fs.StringVar(&seller, "seller", "", "seller bech32 address")
	fs.StringVar(&productID, "product", "", "product identifier")
	fs.StringVar(&unitPrice, "unit-price", "", "price per unit in base units")
	fs.Uint64Var(&units, "units", 0, "number of units required to fully fund")
	fs.StringVar(&due, "due", "", "funding deadline as +duration (e.g. +72h) or RFC3339 timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if seller == "" {
		return printError(stderr, "--seller is required")
	}
	if productID == "" {
		return printError(stderr, "--product is required")
	}
	if unitPrice == "" {
		return printError(stderr, "--unit-price is required")
	}
	if units == 0 {
		return printError(stderr, "--units must be positive")
	}
	dueUnix, err := parseDeadline(due, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"seller":       seller,
		"productId":    productID,
		"unitPrice":    unitPrice,
		"unitsNeeded":  units,
		"dueTimestamp": dueUnix,
	}
	return dispatch(stdout, stderr, "escrow_createOrder", params, true)
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get", stderr)
	var id string
	fs.StringVar(&id, "id", "", "order id (0x-prefixed hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printError(stderr, "--id is required")
	}
	return dispatch(stdout, stderr, "escrow_getOrder", map[string]interface{}{"id": id}, false)
}

func runFund(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("fund", stderr)
	var (
		id    string
		buyer string
		units uint64
	)
	fs.StringVar(&id, "id", "", "order id (0x-prefixed hex)")
	fs.StringVar(&buyer, "buyer", "", "buyer bech32 address")
	fs.Uint64Var(&units, "units", 0, "units to fund")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printError(stderr, "--id is required")
	}
	if buyer == "" {
		return printError(stderr, "--buyer is required")
	}
	if units == 0 {
		return printError(stderr, "--units must be positive")
	}
	params := map[string]interface{}{"id": id, "buyer": buyer, "units": units}
	return dispatch(stdout, stderr, "escrow_fund", params, true)
}

func runActorCall(method, name string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var (
		id     string
		caller string
	)
	fs.StringVar(&id, "id", "", "order id (0x-prefixed hex)")
	fs.StringVar(&caller, "caller", "", "caller bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printError(stderr, "--id is required")
	}
	if caller == "" {
		return printError(stderr, "--caller is required")
	}
	params := map[string]interface{}{"id": id, "caller": caller}
	return dispatch(stdout, stderr, method, params, true)
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("resolve", stderr)
	var (
		id      string
		caller  string
		outcome string
	)
	fs.StringVar(&id, "id", "", "order id (0x-prefixed hex)")
	fs.StringVar(&caller, "caller", "", "caller bech32 address (must be the operator)")
	fs.StringVar(&outcome, "outcome", "", "resolution outcome: release or refund")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == "" {
		return printError(stderr, "--id is required")
	}
	if caller == "" {
		return printError(stderr, "--caller is required")
	}
	var releaseToSeller bool
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "release":
		releaseToSeller = true
	case "refund":
		releaseToSeller = false
	default:
		return printError(stderr, "--outcome must be release or refund")
	}
	params := map[string]interface{}{"id": id, "caller": caller, "releaseToSeller": releaseToSeller}
	return dispatch(stdout, stderr, "escrow_resolve", params, true)
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, rpcErr, err := rpcCall("escrow_orderCount", nil, false)
	if code := handleCallError(stderr, rpcErr, err); code != 0 {
		return code
	}
	var count struct {
		Count uint64 `json:"count"`
	}
	if err := json.Unmarshal(result, &count); err != nil {
		return printError(stderr, fmt.Sprintf("decode order count: %v", err))
	}
	for i := uint64(0); i < count.Count; i++ {
		entry, rpcErr, err := rpcCall("escrow_orderAt", map[string]interface{}{"index": i}, false)
		if code := handleCallError(stderr, rpcErr, err); code != 0 {
			return code
		}
		var at struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(entry, &at); err != nil {
			return printError(stderr, fmt.Sprintf("decode order id: %v", err))
		}
		fmt.Fprintf(stdout, "%d\t%s\n", i, at.ID)
	}
	return 0
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	var (
		prefix string
		limit  int
	)
	fs.StringVar(&prefix, "prefix", "", "optional event type prefix filter")
	fs.IntVar(&limit, "limit", 0, "maximum events to return (0 for all)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{}
	if prefix != "" {
		params["prefix"] = prefix
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return dispatch(stdout, stderr, "escrow_listEvents", params, false)
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var (
		account string
		amount  string
	)
	fs.StringVar(&account, "account", "", "recipient bech32 address")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if account == "" {
		return printError(stderr, "--account is required")
	}
	if amount == "" {
		return printError(stderr, "--amount is required")
	}
	params := map[string]interface{}{"account": account, "amount": amount}
	return dispatch(stdout, stderr, "token_mint", params, true)
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve", stderr)
	var (
		owner   string
		spender string
		amount  string
	)
	fs.StringVar(&owner, "owner", "", "owner bech32 address")
	fs.StringVar(&spender, "spender", "", "spender bech32 address (typically the order's custody vault)")
	fs.StringVar(&amount, "amount", "", "allowance in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if owner == "" {
		return printError(stderr, "--owner is required")
	}
	if spender == "" {
		return printError(stderr, "--spender is required")
	}
	if amount == "" {
		return printError(stderr, "--amount is required")
	}
	params := map[string]interface{}{"owner": owner, "spender": spender, "amount": amount}
	return dispatch(stdout, stderr, "token_approve", params, false)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var account string
	fs.StringVar(&account, "account", "", "bech32 address to query")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if account == "" {
		return printError(stderr, "--account is required")
	}
	return dispatch(stdout, stderr, "token_balanceOf", map[string]interface{}{"account": account}, false)
}

func runGenAddress(stdout, stderr io.Writer) int {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Sprintf("generate key: %v", err))
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func dispatch(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if code := handleCallError(stderr, rpcErr, err); code != 0 {
		return code
	}
	writeResult(stdout, result)
	return 0
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	url := os.Getenv("ESCROW_RPC_URL")
	if url == "" {
		url = defaultRPCURL
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		token := strings.TrimSpace(os.Getenv("ESCROW_RPC_TOKEN"))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func handleCallError(w io.Writer, rpcErr *rpcError, err error) int {
	if err != nil {
		fmt.Fprintf(w, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(w, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		if len(rpcErr.Data) > 0 {
			fmt.Fprintf(w, "  %s\n", string(rpcErr.Data))
		}
		return 1
	}
	return 0
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func parseDeadline(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("--due is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		dur, err := time.ParseDuration(strings.TrimSpace(trimmed[1:]))
		if err != nil {
			return 0, fmt.Errorf("invalid deadline duration")
		}
		if dur <= 0 {
			return 0, fmt.Errorf("deadline duration must be positive")
		}
		return now.Add(dur).Unix(), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid RFC3339 deadline")
	}
	return ts.Unix(), nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli <command> [flags]

Commands:
  create       Create a new escrow order
  get          Fetch order details by id
  fund         Fund units of an order from a buyer account
  release      Release custody to the seller
  dispute      Flag an order for operator arbitration
  resolve      Resolve a disputed order (release or refund)
  refund       Refund contributions after the deadline
  list         Enumerate order ids in creation order
  events       List persisted engine events
  mint         Mint test-asset balance to an account
  approve      Approve a spender for a test-asset allowance
  balance      Query a test-asset balance
  gen-address  Generate a fresh bech32 address

Environment:
  ESCROW_RPC_URL    JSON-RPC endpoint (default http://127.0.0.1:8545)
  ESCROW_RPC_TOKEN  bearer token for authenticated methods
`)
}
