// Package binance provides a read-only client for the public Binance
// USDT-margined futures REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/models"
)

// KlineInterval is the bar duration consumed by the range tracker.
const KlineInterval = "15m"

// Client accesses the Binance futures public endpoints.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Binance futures client.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

type ticker24hr struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// TopSymbols returns up to limit USDT-quoted futures symbols ranked by 24h
// quote volume, descending. Fewer symbols than limit is not an error.
func (c *Client) TopSymbols(ctx context.Context, limit int) ([]string, error) {
	resp, err := c.doRequest(ctx, c.baseURL+"/fapi/v1/ticker/24hr")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 24hr tickers: %w", err)
	}
	defer resp.Body.Close()

	var tickers []ticker24hr
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}

	type ranked struct {
		symbol string
		volume float64
	}
	pairs := make([]ranked, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		volume, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil {
			continue
		}
		pairs = append(pairs, ranked{symbol: t.Symbol, volume: volume})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].volume > pairs[j].volume })

	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.symbol
	}
	return symbols, nil
}

// FetchKlines returns the most recent limit 15m bars for symbol. Binance
// encodes each kline as a mixed-type JSON array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (c *Client) FetchKlines(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	u, err := url.Parse(c.baseURL + "/fapi/v1/klines")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", KlineInterval)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}
	defer resp.Body.Close()

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode klines: %w", err)
	}

	bars := make([]models.PriceBar, 0, len(raw))
	for _, k := range raw {
		bar, err := parseKline(k)
		if err != nil {
			continue // a malformed row does not spoil the rest
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKline(k []json.RawMessage) (models.PriceBar, error) {
	if len(k) < 4 {
		return models.PriceBar{}, fmt.Errorf("kline has %d fields, want at least 4", len(k))
	}
	var openMillis int64
	if err := json.Unmarshal(k[0], &openMillis); err != nil {
		return models.PriceBar{}, fmt.Errorf("bad open time: %w", err)
	}
	high, err := parsePriceField(k[2])
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("bad high: %w", err)
	}
	low, err := parsePriceField(k[3])
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("bad low: %w", err)
	}
	return models.PriceBar{
		OpenTime: time.UnixMilli(openMillis).UTC(),
		High:     high,
		Low:      low,
	}, nil
}

// parsePriceField handles Binance's stringified decimals ("12345.67").
func parsePriceField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchPrice returns the last traded price for symbol. ok is false when the
// API answered without a usable price.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (float64, bool, error) {
	u, err := url.Parse(c.baseURL + "/fapi/v1/ticker/price")
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	var t tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return 0, false, fmt.Errorf("failed to decode price: %w", err)
	}
	if t.Price == "" {
		return 0, false, nil
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse price %q: %w", t.Price, err)
	}
	return price, true, nil
}

// doRequest performs a GET with linear-backoff retry on transport errors
// and 5xx responses.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
