// Package api implements the sticker shop REST client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stickerhunter/config"
	"stickerhunter/metrics"
	"stickerhunter/models"
)

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// Client talks to the sticker shop API with bearer-token auth and bounded
// retries for transient failures.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config, m *metrics.Metrics) *Client {
	return &Client{
		cfg:     cfg,
		metrics: m,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.RequestTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// SetHTTPClient swaps the underlying HTTP client. Used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// TestConnection reports whether the shop API answers at all. Used once at
// startup.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.get(ctx, "/api/v1/shop/settings", nil)
	if err != nil {
		slog.Error("API connection test failed", slog.Any("error", err))
		return false
	}
	return true
}

// GetCollection fetches a collection snapshot with its characters. Returns
// (nil, nil) when the collection does not exist yet, which the watcher
// treats differently from a failed poll.
func (c *Client) GetCollection(ctx context.Context, collectionID int) (*models.Collection, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/v1/collection/%d", collectionID), nil)
	if err != nil {
		var notFound ErrNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}

	var payload struct {
		Collection struct {
			ID         int    `json:"id"`
			Title      string `json:"title"`
			Status     string `json:"status"`
			TotalCount int    `json:"total_count"`
			SoldCount  int    `json:"sold_count"`
		} `json:"collection"`
		Characters []struct {
			ID    int             `json:"id"`
			Name  string          `json:"name"`
			Left  int             `json:"left"`
			Price decimal.Decimal `json:"price"`
		} `json:"characters"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrBadResponse{Err: fmt.Errorf("decode collection: %w", err)}
	}

	collection := &models.Collection{
		ID:         payload.Collection.ID,
		Name:       payload.Collection.Title,
		Status:     payload.Collection.Status,
		TotalCount: payload.Collection.TotalCount,
		SoldCount:  payload.Collection.SoldCount,
		Characters: make([]models.Character, 0, len(payload.Characters)),
	}
	for _, ch := range payload.Characters {
		collection.Characters = append(collection.Characters, models.Character{
			ID:    ch.ID,
			Name:  ch.Name,
			Left:  ch.Left,
			Price: ch.Price,
		})
	}
	return collection, nil
}

// GetCharacterPrice resolves the per-sticker price in the given currency.
func (c *Client) GetCharacterPrice(ctx context.Context, collectionID, characterID int, currency string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("collection", strconv.Itoa(collectionID))
	query.Set("character", strconv.Itoa(characterID))

	data, err := c.get(ctx, "/api/v1/shop/price/crypto", query)
	if err != nil {
		return decimal.Zero, err
	}

	var prices []struct {
		TokenSymbol string          `json:"token_symbol"`
		Price       decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(data, &prices); err != nil {
		return decimal.Zero, ErrBadResponse{Err: fmt.Errorf("decode prices: %w", err)}
	}
	for _, p := range prices {
		if p.TokenSymbol == currency {
			return p.Price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, currency)
}

// InitiatePurchase asks the shop to create an order for count stickers.
// Never retried: order creation is not idempotent.
func (c *Client) InitiatePurchase(ctx context.Context, collectionID, characterID, count int) (*models.OrderInfo, error) {
	query := url.Values{}
	query.Set("collection", strconv.Itoa(collectionID))
	query.Set("character", strconv.Itoa(characterID))
	query.Set("currency", "TON")
	query.Set("count", strconv.Itoa(count))

	data, err := c.doOnce(ctx, http.MethodPost, "/api/v1/shop/buy/crypto", query)
	if err != nil {
		c.metrics.IncError(errorTypeLabel(err))
		return nil, err
	}

	var payload struct {
		OrderID     string `json:"order_id"`
		Wallet      string `json:"wallet"`
		TotalAmount int64  `json:"total_amount"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrBadResponse{Err: fmt.Errorf("decode order: %w", err)}
	}
	if payload.OrderID == "" || payload.Wallet == "" || payload.TotalAmount <= 0 {
		return nil, ErrBadResponse{Err: fmt.Errorf("incomplete order data: %+v", payload)}
	}

	slog.Info("purchase initiated",
		slog.String("order_id", payload.OrderID),
		slog.String("amount_ton", decimal.New(payload.TotalAmount, -9).String()),
	)

	return &models.OrderInfo{
		OrderID:         payload.OrderID,
		WalletAddress:   payload.Wallet,
		TotalAmountNano: payload.TotalAmount,
	}, nil
}

// get issues a GET with bounded retries for transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		data, err := c.doOnce(ctx, http.MethodGet, path, query)
		if err == nil {
			return data, nil
		}

		if !retryable(err) || attempt >= c.cfg.MaxRetries {
			c.metrics.IncError(errorTypeLabel(err))
			return nil, err
		}

		c.metrics.IncRetries()
		slog.Debug("retrying request",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt + 1)):
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values) (json.RawMessage, error) {
	endpoint := c.cfg.APIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "ru,en;q=0.9")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Origin", "https://stickerdom.store")
	req.Header.Set("Referer", "https://stickerdom.store/")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	default:
		return nil, ErrStatus{Code: resp.StatusCode, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrConnection{Err: fmt.Errorf("read body: %w", err)}
	}

	var env struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrBadResponse{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.OK {
		return nil, ErrBadResponse{Err: fmt.Errorf("api answered ok=false")}
	}
	return env.Data, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrConnection{Err: err}
	}
	return err
}
