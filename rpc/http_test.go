package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/state"
	"escrowd/crypto"
	"escrowd/native/escrow"
	"escrowd/storage"
	"escrowd/token"
)

const testAuthToken = "secret-token"

type testEnv struct {
	server   *Server
	ledger   *token.Ledger
	manager  *state.Manager
	registry *escrow.Registry
	now      int64

	operator string
	seller   string
	buyer    string
}

func rawAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: 1_700_000_000}

	env.operator = crypto.MustAddress(rawAddr(0x0f)).String()
	env.seller = crypto.MustAddress(rawAddr(0x01)).String()
	env.buyer = crypto.MustAddress(rawAddr(0xaa)).String()

	ledger := token.NewLedger("USDC", 6)
	engine, err := escrow.NewEngine(ledger, rawAddr(0x0f))
	require.NoError(t, err)
	registry, err := escrow.NewRegistry(engine)
	require.NoError(t, err)
	manager := state.NewManager(storage.NewMemDB())
	registry.SetState(manager)
	engine.SetEmitter(state.NewLogEmitter(manager, nil, nil))
	engine.SetNowFunc(func() int64 { return env.now })

	env.ledger = ledger
	env.manager = manager
	env.registry = registry
	env.server = NewServer(registry, manager, ledger, nil, testAuthToken)
	return env
}

func (env *testEnv) call(t *testing.T, method string, params interface{}, authed bool) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
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
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (env *testEnv) result(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (env *testEnv) createOrder(t *testing.T, units uint64) string {
	t.Helper()
	_, resp := env.call(t, "escrow_createOrder", map[string]interface{}{
		"seller":       env.seller,
		"productId":    "widget-9000",
		"unitPrice":    "1000000",
		"unitsNeeded":  units,
		"dueTimestamp": env.now + 3600,
	}, true)
	var created createOrderResult
	env.result(t, resp, &created)
	require.True(t, strings.HasPrefix(created.ID, "0x"))
	return created.ID
}

func (env *testEnv) fundBuyer(t *testing.T, orderID string, units uint64) RPCResponse {
	t.Helper()
	id, err := state.OrderIDFromHex(orderID)
	require.NoError(t, err)
	vault := crypto.MustAddress(escrow.OrderVaultAddress(id)).String()

	_, resp := env.call(t, "token_mint", map[string]interface{}{
		"account": env.buyer,
		"amount":  "100000000",
	}, true)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "token_approve", map[string]interface{}{
		"owner":   env.buyer,
		"spender": vault,
		"amount":  "100000000",
	}, false)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "escrow_fund", map[string]interface{}{
		"id":    orderID,
		"buyer": env.buyer,
		"units": units,
	}, true)
	return resp
}

func TestCreateAndGetOrder(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t, 3)

	_, resp := env.call(t, "escrow_getOrder", map[string]interface{}{"id": orderID}, false)
	var order orderJSON
	env.result(t, resp, &order)

	require.Equal(t, orderID, order.ID)
	require.Equal(t, env.seller, order.Seller)
	require.Equal(t, env.operator, order.Operator)
	require.Equal(t, "widget-9000", order.ProductID)
	require.Equal(t, "open", order.Status)
	require.Equal(t, uint64(3), order.UnitsNeeded)
	require.Equal(t, "0", order.CustodyBalance)
	require.NotEmpty(t, order.CustodyVault)
}

func TestFullOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t, 2)

	resp := env.fundBuyer(t, orderID, 2)
	var order orderJSON
	env.result(t, resp, &order)
	require.Equal(t, "fully_funded", order.Status)
	require.Equal(t, "2000000", order.CustodyBalance)
	require.Len(t, order.Contributions, 1)
	require.Equal(t, env.buyer, order.Contributions[0].Buyer)

	_, resp = env.call(t, "escrow_release", map[string]interface{}{
		"id":     orderID,
		"caller": env.seller,
	}, true)
	env.result(t, resp, &order)
	require.Equal(t, "released", order.Status)
	require.Equal(t, "0", order.CustodyBalance)

	_, resp = env.call(t, "token_balanceOf", map[string]interface{}{"account": env.seller}, false)
	var balance tokenBalanceResult
	env.result(t, resp, &balance)
	require.Equal(t, "2000000", balance.Balance)

	var evts []state.StoredEvent
	_, resp = env.call(t, "escrow_listEvents", map[string]interface{}{}, false)
	env.result(t, resp, &evts)
	types := make([]string, 0, len(evts))
	for _, evt := range evts {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		escrow.EventTypeOrderCreated,
		escrow.EventTypeOrderFunded,
		escrow.EventTypeOrderReleased,
	}, types)
}

func TestOrderEnumeration(t *testing.T) {
	env := newTestEnv(t)
	first := env.createOrder(t, 1)
	second := env.createOrder(t, 1)

	_, resp := env.call(t, "escrow_orderCount", nil, false)
	var count orderCountResult
	env.result(t, resp, &count)
	require.Equal(t, uint64(2), count.Count)

	_, resp = env.call(t, "escrow_orderAt", map[string]interface{}{"index": 0}, false)
	var at createOrderResult
	env.result(t, resp, &at)
	require.Equal(t, first, at.ID)

	_, resp = env.call(t, "escrow_orderAt", map[string]interface{}{"index": 1}, false)
	env.result(t, resp, &at)
	require.Equal(t, second, at.ID)

	rec, resp := env.call(t, "escrow_orderAt", map[string]interface{}{"index": 5}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeEscrowInvalidParams, resp.Error.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	missing := "0x" + strings.Repeat("ff", 32)
	rec, resp := env.call(t, "escrow_getOrder", map[string]interface{}{"id": missing}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, method := range []string{
		"escrow_createOrder", "escrow_fund", "escrow_release",
		"escrow_dispute", "escrow_resolve", "escrow_refund", "token_mint",
	} {
		rec, resp := env.call(t, method, map[string]interface{}{}, false)
		require.NotNil(t, resp.Error, "method %s", method)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "method %s", method)
		require.Equal(t, codeUnauthorized, resp.Error.Code, "method %s", method)
	}
}

func TestAuthRejectsWrongToken(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"escrow_createOrder","params":[{}]}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnauthorizedCallerMapsToForbidden(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t, 1)
	resp := env.fundBuyer(t, orderID, 1)
	require.Nil(t, resp.Error)

	rec, resp := env.call(t, "escrow_release", map[string]interface{}{
		"id":     orderID,
		"caller": env.buyer,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)
}

func TestConflictMapping(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t, 1)

	// Refund before the due timestamp conflicts with the order's lifecycle.
	rec, resp := env.call(t, "escrow_refund", map[string]interface{}{
		"id":     orderID,
		"caller": env.seller,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)

	// Funding without any allowance fails the asset transfer.
	rec, resp = env.call(t, "escrow_fund", map[string]interface{}{
		"id":    orderID,
		"buyer": env.buyer,
		"units": 1,
	}, true)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)
}

func TestDisputeAndResolve(t *testing.T) {
	env := newTestEnv(t)
	orderID := env.createOrder(t, 2)
	resp := env.fundBuyer(t, orderID, 1)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "escrow_dispute", map[string]interface{}{
		"id":     orderID,
		"caller": env.buyer,
	}, true)
	var order orderJSON
	env.result(t, resp, &order)
	require.Equal(t, "disputed", order.Status)

	_, resp = env.call(t, "escrow_resolve", map[string]interface{}{
		"id":              orderID,
		"caller":          env.operator,
		"releaseToSeller": false,
	}, true)
	env.result(t, resp, &order)
	require.Equal(t, "refunded", order.Status)

	_, resp = env.call(t, "token_balanceOf", map[string]interface{}{"account": env.buyer}, false)
	var balance tokenBalanceResult
	env.result(t, resp, &balance)
	require.Equal(t, "100000000", balance.Balance)
}

func TestInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.call(t, "no_such_method", nil, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	req.RemoteAddr = "192.0.2.11:4242"
	rec2 := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusBadRequest, rec2.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.RemoteAddr = "192.0.2.11:4242"
	rec3 := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec3, req)
	require.Equal(t, http.StatusBadRequest, rec3.Code)

	rec4, resp := env.call(t, "escrow_getOrder", map[string]interface{}{"id": "0x1234"}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusBadRequest, rec4.Code)
	require.Equal(t, codeEscrowInvalidParams, resp.Error.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	var limited bool
	for i := 0; i < sourceRateBurst+10; i++ {
		body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"escrow_orderCount","params":[]}`, i))
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.7:9999"
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited, "burst traffic from one source must eventually be limited")
}
