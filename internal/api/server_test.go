package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drealestate/internal/api"
	"drealestate/internal/contract"
	"drealestate/internal/devchain/devchaintest"
	"drealestate/internal/market"
)

type staticAccounts []common.Address

func (a staticAccounts) Accounts() []common.Address { return a }

type harness struct {
	t      *testing.T
	server *api.Server
	chain  *devchaintest.Chain
}

func newHarness(t *testing.T) *harness {
	chain := devchaintest.Start(t, devchaintest.Options{})
	client := contract.NewClient(chain.Dial(t), contract.Config{
		Address:      devchaintest.ContractAddress,
		PollInterval: 5 * time.Millisecond,
	}, nil)
	svc := market.NewService(client, staticAccounts(chain.Accounts))
	srv := api.NewServer(api.Config{
		Secret: "test-secret",
		Status: func() api.Status { return api.Status{Provider: "connected", Endpoint: "devchain"} },
	}, svc)
	return &harness{t: t, server: srv, chain: chain}
}

func (h *harness) do(method, path, token, body string) (int, map[string]interface{}, []byte) {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	var obj map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &obj)
	return rec.Code, obj, rec.Body.Bytes()
}

func (h *harness) session(index int) string {
	h.t.Helper()
	code, obj, raw := h.do(http.MethodPost, "/session", "", `{"account":`+strconv.Itoa(index)+`}`)
	require.Equal(h.t, http.StatusCreated, code, string(raw))
	token, _ := obj["token"].(string)
	require.NotEmpty(h.t, token)
	return token
}

const villa = `{"name":"Villa","location":"Nice","description":"Sea view","imageUrl":"","price":"2.5","size":"300","bedrooms":"5","bathrooms":"3"}`

func TestServer_PublicEndpoints(t *testing.T) {
	h := newHarness(t)

	code, obj, _ := h.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", obj["status"])
	conn, _ := obj["connection"].(map[string]interface{})
	assert.Equal(t, "devchain", conn["endpoint"])

	code, obj, _ = h.do(http.MethodGet, "/accounts", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, obj["accounts"], len(h.chain.Accounts))

	code, _, _ = h.do(http.MethodGet, "/properties/7", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = h.do(http.MethodGet, "/properties/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = h.do(http.MethodPost, "/session", "", `{"account":42}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServer_RequiresToken(t *testing.T) {
	h := newHarness(t)

	code, obj, _ := h.do(http.MethodGet, "/properties", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authorization header is required", obj["error"])

	code, _, _ = h.do(http.MethodPost, "/properties", "garbage", villa)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServer_ListBuyFlow(t *testing.T) {
	h := newHarness(t)
	seller := h.session(0)

	code, obj, raw := h.do(http.MethodPost, "/properties", seller, villa)
	require.Equal(t, http.StatusCreated, code, string(raw))
	assert.Equal(t, float64(0), obj["id"])
	assert.Equal(t, "2.5", obj["price"])
	assert.Equal(t, true, obj["isCurrentUserOwner"])

	code, obj, _ = h.do(http.MethodPost, "/properties", seller, `{"name":"","location":"x","description":"y","price":"1","size":"1","bedrooms":"1","bathrooms":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Please fill in all required fields (name)", obj["error"])

	// The seller may not buy their own listing.
	code, _, _ = h.do(http.MethodPost, "/properties/0/buy", seller, "")
	assert.Equal(t, http.StatusForbidden, code)

	buyer := h.session(1)

	_, _, raw = h.do(http.MethodGet, "/properties", buyer, "")
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Villa", listed[0]["name"])

	code, _, _ = h.do(http.MethodPost, "/properties/0/toggle", buyer, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, obj, raw = h.do(http.MethodPost, "/properties/0/buy", buyer, "")
	require.Equal(t, http.StatusOK, code, string(raw))
	assert.Equal(t, false, obj["isForSale"])
	assert.Equal(t, h.chain.Accounts[1].Hex(), common.HexToAddress(obj["owner"].(string)).Hex())

	_, _, raw = h.do(http.MethodGet, "/me/properties", buyer, "")
	var owned []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &owned))
	require.Len(t, owned, 1)

	// Buying again from a third account hits the contract revert.
	third := h.session(2)
	code, obj, _ = h.do(http.MethodPost, "/properties/0/buy", third, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "execution reverted: Property is not for sale", obj["error"])

	code, obj, _ = h.do(http.MethodGet, "/transactions/pending", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, obj["pending"])
	assert.NotEmpty(t, obj["recent"])
}

func TestServer_OwnerUpdates(t *testing.T) {
	h := newHarness(t)
	owner := h.session(0)

	code, _, raw := h.do(http.MethodPost, "/properties", owner, villa)
	require.Equal(t, http.StatusCreated, code, string(raw))

	code, obj, _ := h.do(http.MethodPut, "/properties/0/price", owner, `{"price":"3.75"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3.75", obj["price"])

	code, _, _ = h.do(http.MethodPut, "/properties/0/price", owner, `{"price":"0"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = h.do(http.MethodPut, "/properties/0/price", owner, `{"price":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, obj, _ = h.do(http.MethodPost, "/properties/0/toggle", owner, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, obj["isForSale"])

	_, _, raw = h.do(http.MethodGet, "/properties/all", "", "")
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &all))
	require.Len(t, all, 1)
	assert.Equal(t, "3.75", all[0]["price"])
}

func TestIssuer(t *testing.T) {
	account := common.HexToAddress("0x1234")
	iss := api.NewIssuer("secret", time.Minute)

	token, expires, err := iss.Issue(account, 2)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, account, claims.Account)
	assert.Equal(t, 2, claims.AccountIndex)

	_, err = api.NewIssuer("other", time.Minute).Validate(token)
	assert.Error(t, err)

	expired, _, err := api.NewIssuer("secret", -time.Minute).Issue(account, 0)
	require.NoError(t, err)
	_, err = iss.Validate(expired)
	assert.Error(t, err)

	_, _, err = api.NewIssuer("", time.Minute).Issue(account, 0)
	assert.Error(t, err)
}
