package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gigledger/core"
	"gigledger/crypto"
	"gigledger/storage"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, *core.Node) {
	t.Helper()
	node := core.NewNode(storage.NewMemDB())
	server := NewServer(node, Options{
		AuthToken:       testToken,
		RateLimitPerMin: 100000,
		RateLimitBurst:  100000,
	})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, node
}

func testBech32(t *testing.T, fill byte) (string, [20]byte) {
	t.Helper()
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.MustNewAddress(crypto.GigPrefix, raw[:]).String(), raw
}

func call(t *testing.T, ts *httptest.Server, method string, params interface{}, token string) (*http.Response, RPCResponse) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected RPC error: %+v", resp.Error)
	out, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %T", resp.Result)
	return out
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	contractor, _ := testBech32(t, 0x11)

	httpResp, resp := call(t, ts, "registry_register", map[string]interface{}{
		"address": contractor,
		"role":    "contractor",
	}, "")
	require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	httpResp, resp = call(t, ts, "registry_register", map[string]interface{}{
		"address": contractor,
		"role":    "contractor",
	}, "wrong-token")
	require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
}

func TestReadMethodsNeedNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	addr, _ := testBech32(t, 0x11)

	httpResp, resp := call(t, ts, "ledger_getBalance", map[string]interface{}{"address": addr}, "")
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	result := resultMap(t, resp)
	require.Equal(t, "0", result["balance"])
}

func TestUnknownMethod(t *testing.T) {
	ts, _ := newTestServer(t)
	httpResp, resp := call(t, ts, "gig_fly", map[string]interface{}{}, "")
	require.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRegisterRejectsForeignPrefix(t *testing.T) {
	ts, _ := newTestServer(t)
	var raw [20]byte
	foreign := crypto.MustNewAddress(crypto.AddressPrefix("eth"), raw[:]).String()

	httpResp, resp := call(t, ts, "registry_register", map[string]interface{}{
		"address": foreign,
		"role":    "worker",
	}, testToken)
	require.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestDoubleRegisterConflicts(t *testing.T) {
	ts, _ := newTestServer(t)
	addr, _ := testBech32(t, 0x12)

	_, resp := call(t, ts, "registry_register", map[string]interface{}{
		"address": addr,
		"role":    "worker",
	}, testToken)
	require.Nil(t, resp.Error)

	httpResp, resp := call(t, ts, "registry_register", map[string]interface{}{
		"address": addr,
		"role":    "contractor",
	}, testToken)
	require.Equal(t, http.StatusConflict, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)
}

func TestMissingGigIsNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	httpResp, resp := call(t, ts, "gig_get", map[string]interface{}{"id": 42}, "")
	require.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestFullLifecycleOverRPC(t *testing.T) {
	ts, node := newTestServer(t)
	contractor, contractorRaw := testBech32(t, 0x21)
	worker, _ := testBech32(t, 0x22)

	require.NoError(t, node.Mint(contractorRaw, big.NewInt(500)))

	_, resp := call(t, ts, "registry_register", map[string]interface{}{"address": contractor, "role": "contractor"}, testToken)
	require.Nil(t, resp.Error)
	_, resp = call(t, ts, "registry_register", map[string]interface{}{"address": worker, "role": "worker"}, testToken)
	require.Nil(t, resp.Error)

	_, resp = call(t, ts, "gig_create", map[string]interface{}{
		"caller":      contractor,
		"description": "translate a document",
		"fee":         "100",
		"attached":    "100",
	}, testToken)
	created := resultMap(t, resp)
	require.Equal(t, float64(1), created["id"])
	require.Equal(t, "open", created["status"])
	require.Equal(t, "100", created["fee"])

	_, resp = call(t, ts, "gig_accept", map[string]interface{}{"id": 1, "caller": worker}, testToken)
	accepted := resultMap(t, resp)
	require.Equal(t, "accepted", accepted["status"])
	require.Equal(t, worker, accepted["worker"])
	require.Equal(t, false, accepted["terminal"])

	_, resp = call(t, ts, "gig_complete", map[string]interface{}{"id": 1, "caller": worker}, testToken)
	completed := resultMap(t, resp)
	require.Equal(t, "completed_by_worker", completed["status"])

	_, resp = call(t, ts, "gig_confirmAndPay", map[string]interface{}{"id": 1, "caller": contractor}, testToken)
	paid := resultMap(t, resp)
	require.Equal(t, "paid", paid["status"])
	require.Equal(t, "100", paid["paid"])

	_, resp = call(t, ts, "gig_get", map[string]interface{}{"id": 1}, "")
	settled := resultMap(t, resp)
	require.Equal(t, true, settled["terminal"])
	require.Equal(t, "0", settled["fee"])

	_, resp = call(t, ts, "ledger_getBalance", map[string]interface{}{"address": worker}, "")
	balance := resultMap(t, resp)
	require.Equal(t, "100", balance["balance"])

	_, resp = call(t, ts, "gig_rate", map[string]interface{}{
		"id":     1,
		"caller": contractor,
		"target": worker,
		"rating": 5,
	}, testToken)
	rated := resultMap(t, resp)
	require.Equal(t, float64(5), rated["newScore"])

	_, resp = call(t, ts, "registry_reputation", map[string]interface{}{"address": worker}, "")
	reputation := resultMap(t, resp)
	require.Equal(t, float64(5), reputation["score"])

	// The notification log replays the whole lifecycle in commit order.
	_, resp = call(t, ts, "gig_listEvents", map[string]interface{}{"after": 0}, "")
	require.Nil(t, resp.Error)
	entries, ok := resp.Result.([]interface{})
	require.True(t, ok, "events result is not an array: %T", resp.Result)
	require.Len(t, entries, 7)
}

func TestConfirmBeforeCompleteConflicts(t *testing.T) {
	ts, node := newTestServer(t)
	contractor, contractorRaw := testBech32(t, 0x31)

	require.NoError(t, node.Mint(contractorRaw, big.NewInt(100)))
	_, resp := call(t, ts, "registry_register", map[string]interface{}{"address": contractor, "role": "contractor"}, testToken)
	require.Nil(t, resp.Error)
	_, resp = call(t, ts, "gig_create", map[string]interface{}{
		"caller":      contractor,
		"description": "mow the lawn",
		"fee":         "100",
		"attached":    "100",
	}, testToken)
	require.Nil(t, resp.Error)

	httpResp, resp := call(t, ts, "gig_confirmAndPay", map[string]interface{}{"id": 1, "caller": contractor}, testToken)
	require.Equal(t, http.StatusConflict, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)
}

func TestCancelRefundsOverRPC(t *testing.T) {
	ts, node := newTestServer(t)
	contractor, contractorRaw := testBech32(t, 0x41)

	require.NoError(t, node.Mint(contractorRaw, big.NewInt(75)))
	_, resp := call(t, ts, "registry_register", map[string]interface{}{"address": contractor, "role": "contractor"}, testToken)
	require.Nil(t, resp.Error)
	_, resp = call(t, ts, "gig_create", map[string]interface{}{
		"caller":      contractor,
		"description": "walk the dog",
		"fee":         "75",
		"attached":    "75",
	}, testToken)
	require.Nil(t, resp.Error)

	_, resp = call(t, ts, "gig_cancel", map[string]interface{}{"id": 1, "caller": contractor}, testToken)
	cancelled := resultMap(t, resp)
	require.Equal(t, "cancelled", cancelled["status"])
	require.Equal(t, "75", cancelled["refunded"])

	_, resp = call(t, ts, "ledger_getBalance", map[string]interface{}{"address": contractor}, "")
	balance := resultMap(t, resp)
	require.Equal(t, "75", balance["balance"])
}

func TestEscrowMismatchIsInvalidParams(t *testing.T) {
	ts, node := newTestServer(t)
	contractor, contractorRaw := testBech32(t, 0x51)

	require.NoError(t, node.Mint(contractorRaw, big.NewInt(100)))
	_, resp := call(t, ts, "registry_register", map[string]interface{}{"address": contractor, "role": "contractor"}, testToken)
	require.Nil(t, resp.Error)

	httpResp, resp := call(t, ts, "gig_create", map[string]interface{}{
		"caller":      contractor,
		"description": "fix the roof",
		"fee":         "100",
		"attached":    "90",
	}, testToken)
	require.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRateLimiterThrottlesMutations(t *testing.T) {
	node := core.NewNode(storage.NewMemDB())
	server := NewServer(node, Options{
		AuthToken:       testToken,
		RateLimitPerMin: 60,
		RateLimitBurst:  2,
	})
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	addr, _ := testBech32(t, 0x61)
	var throttled bool
	for i := 0; i < 5; i++ {
		httpResp, _ := call(t, ts, "registry_register", map[string]interface{}{
			"address": addr,
			"role":    "worker",
		}, testToken)
		if httpResp.StatusCode == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	require.True(t, throttled, "burst of mutating calls was never throttled")
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeParseError, decoded.Error.Code)
}
