package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"

	"stickerhunter/config"
	"stickerhunter/metrics"
)

func testClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.APIBaseURL = "http://shop.test"
	cfg.APIToken = "test-token"
	cfg.MaxRetries = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond

	transport := httpmock.NewMockTransport()
	client := NewClient(cfg, metrics.New())
	client.SetHTTPClient(&http.Client{Transport: transport})
	return client, transport
}

const collectionBody = `{
	"ok": true,
	"data": {
		"collection": {"id": 15, "title": "Summer Drop", "status": "active", "total_count": 5000, "sold_count": 1200},
		"characters": [
			{"id": 2, "name": "Capy", "left": 340, "price": 2.5},
			{"id": 3, "name": "Duck", "left": 0, "price": 1.75}
		]
	}
}`

func TestGetCollection(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("GET", "http://shop.test/api/v1/collection/15",
		httpmock.NewStringResponder(200, collectionBody))

	collection, err := client.GetCollection(context.Background(), 15)
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if collection.ID != 15 || collection.Name != "Summer Drop" {
		t.Fatalf("collection = %+v", collection)
	}
	if !collection.IsActive() {
		t.Fatalf("collection should be active")
	}
	if collection.TotalCount != 5000 || collection.SoldCount != 1200 {
		t.Fatalf("counts = %d/%d, want 5000/1200", collection.TotalCount, collection.SoldCount)
	}
	if len(collection.Characters) != 2 {
		t.Fatalf("characters = %d, want 2", len(collection.Characters))
	}

	capy := collection.Character(2)
	if capy == nil || capy.Name != "Capy" || capy.Left != 340 {
		t.Fatalf("character 2 = %+v", capy)
	}
	if !capy.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("price = %s, want 2.5", capy.Price)
	}
	if collection.Character(3).IsAvailable() {
		t.Fatalf("sold-out character should not be available")
	}
	if collection.Character(99) != nil {
		t.Fatalf("unknown character should be nil")
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("GET", "http://shop.test/api/v1/collection/15",
		httpmock.NewStringResponder(404, ""))

	collection, err := client.GetCollection(context.Background(), 15)
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if collection != nil {
		t.Fatalf("collection = %+v, want nil", collection)
	}
}

func TestGetCollectionRetriesTransientFailures(t *testing.T) {
	client, transport := testClient(t)

	calls := 0
	transport.RegisterResponder("GET", "http://shop.test/api/v1/collection/15",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls <= 2 {
				return httpmock.NewStringResponse(500, ""), nil
			}
			return httpmock.NewStringResponse(200, collectionBody), nil
		})

	collection, err := client.GetCollection(context.Background(), 15)
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if collection == nil {
		t.Fatalf("expected collection after retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestGetCollectionMalformedBodyNotRetried(t *testing.T) {
	client, transport := testClient(t)

	calls := 0
	transport.RegisterResponder("GET", "http://shop.test/api/v1/collection/15",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(200, "not json"), nil
		})

	_, err := client.GetCollection(context.Background(), 15)
	var bad ErrBadResponse
	if !errors.As(err, &bad) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (malformed bodies do not heal)", calls)
	}
}

func TestGetCharacterPrice(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("GET", "http://shop.test/api/v1/shop/price/crypto",
		httpmock.NewStringResponder(200, `{
			"ok": true,
			"data": [
				{"token_symbol": "USDT", "price": 12.4},
				{"token_symbol": "TON", "price": 2.05}
			]
		}`))

	price, err := client.GetCharacterPrice(context.Background(), 15, 2, "TON")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("2.05")) {
		t.Fatalf("price = %s, want 2.05", price)
	}

	_, err = client.GetCharacterPrice(context.Background(), 15, 2, "BTC")
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestInitiatePurchase(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("POST", "http://shop.test/api/v1/shop/buy/crypto",
		httpmock.NewStringResponder(200, `{
			"ok": true,
			"data": {"order_id": "ord-123", "wallet": "EQDestination", "total_amount": 10250000000}
		}`))

	order, err := client.InitiatePurchase(context.Background(), 15, 2, 5)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	if order.OrderID != "ord-123" || order.WalletAddress != "EQDestination" {
		t.Fatalf("order = %+v", order)
	}
	if order.TotalAmountNano != 10_250_000_000 {
		t.Fatalf("amount = %d, want 10250000000", order.TotalAmountNano)
	}
}

func TestInitiatePurchaseNeverRetries(t *testing.T) {
	client, transport := testClient(t)

	calls := 0
	transport.RegisterResponder("POST", "http://shop.test/api/v1/shop/buy/crypto",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(500, ""), nil
		})

	_, err := client.InitiatePurchase(context.Background(), 15, 2, 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (order creation is not idempotent)", calls)
	}
}

func TestInitiatePurchaseIncompleteOrder(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("POST", "http://shop.test/api/v1/shop/buy/crypto",
		httpmock.NewStringResponder(200, `{"ok": true, "data": {"order_id": "", "wallet": "", "total_amount": 0}}`))

	_, err := client.InitiatePurchase(context.Background(), 15, 2, 5)
	var bad ErrBadResponse
	if !errors.As(err, &bad) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	client, transport := testClient(t)
	transport.RegisterResponder("GET", "http://shop.test/api/v1/shop/settings",
		httpmock.NewStringResponder(200, `{"ok": true, "data": {}}`))
	if !client.TestConnection(context.Background()) {
		t.Fatalf("expected connection test to pass")
	}

	client2, transport2 := testClient(t)
	transport2.RegisterResponder("GET", "http://shop.test/api/v1/shop/settings",
		httpmock.NewStringResponder(503, ""))
	if client2.TestConnection(context.Background()) {
		t.Fatalf("expected connection test to fail")
	}
}

func TestUnauthorizedNotRetried(t *testing.T) {
	client, transport := testClient(t)

	calls := 0
	transport.RegisterResponder("GET", "http://shop.test/api/v1/collection/15",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(401, ""), nil
		})

	_, err := client.GetCollection(context.Background(), 15)
	var unauthorized ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (a rejected token does not heal)", calls)
	}
}

func TestRequestCarriesAuthHeaders(t *testing.T) {
	client, transport := testClient(t)

	var captured *http.Request
	transport.RegisterResponder("GET", "http://shop.test/api/v1/shop/settings",
		func(req *http.Request) (*http.Response, error) {
			captured = req
			return httpmock.NewStringResponse(200, `{"ok": true, "data": {}}`), nil
		})

	client.TestConnection(context.Background())
	if captured == nil {
		t.Fatalf("request was not issued")
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Fatalf("authorization = %q", got)
	}
	if captured.Header.Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: classifyError(context.DeadlineExceeded), expected: "timeout"},
		{name: "net timeout", err: classifyError(&net.DNSError{IsTimeout: true}), expected: "timeout"},
		{name: "connection", err: classifyError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), expected: "connection"},
		{name: "unauthorized", err: ErrUnauthorized{Err: errors.New("http status 401")}, expected: "unauthorized"},
		{name: "rate limited", err: ErrRateLimited{Err: errors.New("http status 429")}, expected: "rate_limited"},
		{name: "status", err: ErrStatus{Code: 502, Err: errors.New("http status 502")}, expected: "status"},
		{name: "bad response", err: ErrBadResponse{Err: errors.New("decode")}, expected: "bad_response"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if retryable(ErrBadResponse{Err: errors.New("x")}) {
		t.Fatalf("bad responses must not be retried")
	}
	if retryable(ErrUnauthorized{Err: errors.New("x")}) {
		t.Fatalf("auth failures must not be retried")
	}
	if !retryable(ErrTimeout{Err: errors.New("x")}) {
		t.Fatalf("timeouts should be retried")
	}
	if !retryable(ErrRateLimited{Err: errors.New("x")}) {
		t.Fatalf("rate limits should be retried")
	}
}
