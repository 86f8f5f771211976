package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tournament-ledger/testutil"
)

func TestGatewaySignature(t *testing.T) {
	gw := NewHTTPGateway("", "key", "secret")
	sig := gw.Sign("order_1", "pay_1")
	if !gw.VerifySignature("order_1", "pay_1", sig) {
		t.Fatal("own signature rejected")
	}
	if !gw.VerifySignature("order_1", "pay_1", strings.ToUpper(sig)) {
		t.Fatal("signature check should ignore hex case")
	}
	if gw.VerifySignature("order_1", "pay_2", sig) {
		t.Fatal("signature accepted for another payment")
	}
	if NewHTTPGateway("", "key", "").VerifySignature("order_1", "pay_1", sig) {
		t.Fatal("gateway without a secret must reject everything")
	}
}

func TestGatewaySandboxOrder(t *testing.T) {
	gw := NewHTTPGateway("", "key", "secret")
	order, err := gw.CreateOrder(context.Background(), testutil.Money("10"), "INR", "rcpt_1")
	if err != nil {
		t.Fatalf("sandbox order: %v", err)
	}
	if !strings.HasPrefix(order.ID, "order_") {
		t.Fatalf("order id: %s", order.ID)
	}
	payments, err := gw.CapturedSince(context.Background(), time.Now())
	if err != nil || len(payments) != 0 {
		t.Fatalf("sandbox payments: %v %v", payments, err)
	}
}

func TestGatewayHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/orders":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":       "order_remote",
				"amount":   body["amount"],
				"currency": body["currency"],
				"receipt":  body["receipt"],
			})
		case "/v1/payments":
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
				{"id": "pay_1", "order_id": "order_remote", "amount": 2550, "status": "captured", "created_at": 1700000000},
				{"id": "pay_2", "order_id": "order_other", "amount": 100, "status": "failed", "created_at": 1700000001},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL+"/", "key", "secret")
	order, err := gw.CreateOrder(context.Background(), testutil.Money("25.50"), "INR", "rcpt_1")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_remote" {
		t.Fatalf("order: %+v", order)
	}
	assertMoney(t, "order amount", "25.50", order.Amount)

	payments, err := gw.CapturedSince(context.Background(), time.Unix(1690000000, 0))
	if err != nil {
		t.Fatalf("captured: %v", err)
	}
	if len(payments) != 1 || payments[0].PaymentID != "pay_1" {
		t.Fatalf("payments: %+v", payments)
	}
	assertMoney(t, "captured amount", "25.50", payments[0].Amount)

	bad := NewHTTPGateway(srv.URL, "key", "wrong")
	if _, err := bad.CreateOrder(context.Background(), testutil.Money("1"), "INR", "r"); err == nil {
		t.Fatal("want error on 401")
	}
}
