package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tournament-ledger/middleware"
	"tournament-ledger/models"
	"tournament-ledger/services"
	"tournament-ledger/testutil"
)

type testApp struct {
	app     *fiber.App
	db      *gorm.DB
	gateway *services.HTTPGateway
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := testutil.NewDB(t)
	registry := prometheus.NewRegistry()
	store := services.NewLedgerStore(db, services.NewMetrics(registry), "INR")
	gw := services.NewHTTPGateway("", "key", "secret")
	wallet := services.NewWalletService(store, gw, nil)
	matches := services.NewMatchService(store, nil)
	joins := services.NewJoinCoordinator(store, nil)
	activity := services.NewActivityService(store)

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware("svc-token", "/healthz", "/metrics", "/webhooks/"))
	SetupSystemRoutes(app, db, registry, wallet)
	SetupWalletRoutes(app, wallet, activity)
	SetupMatchRoutes(app, matches, joins)
	SetupAdminRoutes(app, AdminServices{Wallet: wallet, Matches: matches, Activity: activity})
	return &testApp{app: app, db: db, gateway: gw}
}

func (a *testApp) do(t *testing.T, method, path, user, roles, body string) (int, Response) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer svc-token")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out Response
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestGatewayTokenRequired(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("X-User-ID", "u-1")
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("without gateway token: %d", resp.StatusCode)
	}

	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err = a.app.Test(health, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should be public, got %d", resp.StatusCode)
	}
}

func TestUserContextAndRoles(t *testing.T) {
	a := newTestApp(t)

	if code, _ := a.do(t, http.MethodGet, "/wallet", "", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing user id: %d", code)
	}
	if code, _ := a.do(t, http.MethodGet, "/admin/withdrawals", "u-1", "player", ""); code != http.StatusForbidden {
		t.Fatalf("non-admin on admin route: %d", code)
	}
	if code, _ := a.do(t, http.MethodGet, "/admin/withdrawals", "a-1", "player, admin", ""); code != http.StatusOK {
		t.Fatalf("admin route: %d", code)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	a := newTestApp(t)
	testutil.SeedAccount(t, a.db, "u-1", "10.00")
	full := testutil.SeedMatch(t, a.db, models.Match{Slots: 1, EntryFee: testutil.Money("1")})
	pricey := testutil.SeedMatch(t, a.db, models.Match{Slots: 5, EntryFee: testutil.Money("50")})
	locked := testutil.SeedMatch(t, a.db, models.Match{Slots: 5, IsLocked: true})
	testutil.SeedAccount(t, a.db, "u-2", "10.00")

	if code, _ := a.do(t, http.MethodPost, "/matches/"+full.ID+"/join", "u-2", "", ""); code != http.StatusCreated {
		t.Fatalf("first join: %d", code)
	}

	cases := []struct {
		name       string
		path, body string
		wantStatus int
		wantKind   services.ErrorKind
	}{
		{"match full", "/matches/" + full.ID + "/join", "", http.StatusConflict, services.KindMatchFull},
		{"already joined", "/matches/" + full.ID + "/join", "", http.StatusConflict, services.KindAlreadyJoined},
		{"insufficient funds", "/matches/" + pricey.ID + "/join", "", http.StatusPaymentRequired, services.KindInsufficientFunds},
		{"locked", "/matches/" + locked.ID + "/join", "", http.StatusLocked, services.KindMatchLocked},
		{"not found", "/matches/nope/join", "", http.StatusNotFound, services.KindNotFound},
		{"invalid amount", "/wallet/withdrawals", `{"amount":"0.001","payout":{"upi":"x"}}`, http.StatusBadRequest, services.KindInvalidAmount},
		{"invalid input", "/wallet/withdrawals", `{"amount":"5"}`, http.StatusBadRequest, services.KindInvalidInput},
	}
	for _, tc := range cases {
		user := "u-1"
		if tc.name == "already joined" {
			user = "u-2"
		}
		code, body := a.do(t, http.MethodPost, tc.path, user, "", tc.body)
		if code != tc.wantStatus || body.Kind != string(tc.wantKind) || body.Success {
			t.Fatalf("%s: status=%d kind=%s", tc.name, code, body.Kind)
		}
	}
}

func TestTopupFlowOverHTTP(t *testing.T) {
	a := newTestApp(t)
	testutil.SeedAccount(t, a.db, "u-1", "0.00")

	code, body := a.do(t, http.MethodPost, "/wallet/topups", "u-1", "", `{"amount":"120.50"}`)
	if code != http.StatusCreated {
		t.Fatalf("create order: %d %s", code, body.Error)
	}
	orderID := body.Data.(map[string]any)["order_id"].(string)

	bad := `{"order_id":"` + orderID + `","payment_id":"pay_1","signature":"00"}`
	if code, body := a.do(t, http.MethodPost, "/webhooks/payments", "", "", bad); code != http.StatusBadRequest || body.Kind != string(services.KindSignatureInvalid) {
		t.Fatalf("bad signature: %d %s", code, body.Kind)
	}

	code, body = a.do(t, http.MethodPost, "/wallet/topups", "u-1", "", `{"amount":"20"}`)
	if code != http.StatusCreated {
		t.Fatalf("second order: %d", code)
	}
	orderID2 := body.Data.(map[string]any)["order_id"].(string)
	good := `{"order_id":"` + orderID2 + `","payment_id":"pay_2","signature":"` + a.gateway.Sign(orderID2, "pay_2") + `"}`
	if code, body := a.do(t, http.MethodPost, "/webhooks/payments", "", "", good); code != http.StatusOK {
		t.Fatalf("webhook: %d %s", code, body.Error)
	}
	if code, body := a.do(t, http.MethodPost, "/wallet/topups/confirm", "u-1", "", good); code != http.StatusOK || body.Data.(map[string]any)["replayed"] != true {
		t.Fatalf("client confirm after webhook should replay: %d %+v", code, body.Data)
	}

	code, body = a.do(t, http.MethodGet, "/wallet", "u-1", "", "")
	if code != http.StatusOK {
		t.Fatalf("wallet: %d", code)
	}
	balance := decimal.RequireFromString(body.Data.(map[string]any)["balance"].(string))
	if !balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("balance: %s", balance)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return writeError(c, errors.New("pq: relation \"accounts\" does not exist"))
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusInternalServerError || strings.Contains(string(raw), "relation") {
		t.Fatalf("internal error leaked: %d %s", resp.StatusCode, raw)
	}
}

func TestOnlyOwnerCanCancelOrderWithBadSignature(t *testing.T) {
	a := newTestApp(t)
	testutil.SeedAccount(t, a.db, "victim", "0.00")
	testutil.SeedAccount(t, a.db, "mallory", "0.00")

	code, body := a.do(t, http.MethodPost, "/wallet/topups", "victim", "", `{"amount":"50"}`)
	if code != http.StatusCreated {
		t.Fatalf("create order: %d %s", code, body.Error)
	}
	orderID := body.Data.(map[string]any)["order_id"].(string)
	forged := `{"order_id":"` + orderID + `","payment_id":"pay_real","signature":"bogus"}`

	if code, body := a.do(t, http.MethodPost, "/webhooks/payments", "", "", forged); code != http.StatusBadRequest || body.Kind != string(services.KindSignatureInvalid) {
		t.Fatalf("anonymous forged webhook: %d %s", code, body.Kind)
	}
	if code, body := a.do(t, http.MethodPost, "/wallet/topups/confirm", "mallory", "", forged); code != http.StatusBadRequest || body.Kind != string(services.KindSignatureInvalid) {
		t.Fatalf("forged confirm by another user: %d %s", code, body.Kind)
	}

	genuine := `{"order_id":"` + orderID + `","payment_id":"pay_real","signature":"` + a.gateway.Sign(orderID, "pay_real") + `"}`
	if code, body := a.do(t, http.MethodPost, "/wallet/topups/confirm", "mallory", "", genuine); code != http.StatusNotFound {
		t.Fatalf("confirming someone else's order: want 404, got %d %s", code, body.Kind)
	}
	if code, body := a.do(t, http.MethodPost, "/wallet/topups/confirm", "victim", "", genuine); code != http.StatusOK {
		t.Fatalf("genuine confirm after forgeries: %d %s %s", code, body.Kind, body.Error)
	}
	if got := testutil.Balance(t, a.db, "victim"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("victim balance: %s", got)
	}
	if got := testutil.Balance(t, a.db, "mallory"); !got.IsZero() {
		t.Fatalf("mallory balance: %s", got)
	}
}

func TestOwnerBadSignatureRejectsOrder(t *testing.T) {
	a := newTestApp(t)
	testutil.SeedAccount(t, a.db, "u-1", "0.00")

	_, body := a.do(t, http.MethodPost, "/wallet/topups", "u-1", "", `{"amount":"10"}`)
	orderID := body.Data.(map[string]any)["order_id"].(string)

	bad := `{"order_id":"` + orderID + `","payment_id":"pay_1","signature":"00"}`
	if code, _ := a.do(t, http.MethodPost, "/wallet/topups/confirm", "u-1", "", bad); code != http.StatusBadRequest {
		t.Fatalf("owner bad signature: %d", code)
	}
	good := `{"order_id":"` + orderID + `","payment_id":"pay_1","signature":"` + a.gateway.Sign(orderID, "pay_1") + `"}`
	if code, body := a.do(t, http.MethodPost, "/webhooks/payments", "", "", good); code != http.StatusConflict || body.Kind != string(services.KindNotPending) {
		t.Fatalf("order rejected by its owner should stay rejected: %d %s", code, body.Kind)
	}
}

func TestHistoryMetaReportsEffectiveSize(t *testing.T) {
	a := newTestApp(t)
	testutil.SeedAccount(t, a.db, "u-1", "0.00")

	cases := []struct {
		path  string
		user  string
		roles string
		want  int
	}{
		{"/wallet/history?size=1000", "u-1", "", 20},
		{"/wallet/history?size=5", "u-1", "", 5},
		{"/admin/wallets/u-1/history?size=0", "a-1", "admin", 20},
		{"/admin/wallets/u-1/history?size=100", "a-1", "admin", 100},
	}
	for _, tc := range cases {
		code, body := a.do(t, http.MethodGet, tc.path, tc.user, tc.roles, "")
		if code != http.StatusOK || body.Meta == nil {
			t.Fatalf("%s: %d %+v", tc.path, code, body)
		}
		if body.Meta.Limit != tc.want {
			t.Fatalf("%s: meta limit %d, want %d", tc.path, body.Meta.Limit, tc.want)
		}
	}
}
