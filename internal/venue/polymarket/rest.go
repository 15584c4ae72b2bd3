package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClientConfig holds REST client configuration.
type ClientConfig struct {
	CLOBURL        string
	DataAPIURL     string
	Credentials    Credentials
	RequestTimeout time.Duration
	Breakers       *circuitbreaker.Registry
	Logger         *zap.Logger
}

// Client is the CLOB + data-api REST client. Reads fall back to the last
// good value while an endpoint's breaker is cooling down.
type Client struct {
	http         *resty.Client
	dataAPI      *resty.Client
	creds        Credentials
	breakers     *circuitbreaker.Registry
	logger       *zap.Logger
	mu           sync.RWMutex
	lastBooks    map[string]*types.NormalizedOrderBook
	lastOrders   []types.OpenOrder
	lastOrdersAt time.Time
}

// NewClient creates a Polymarket REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.CLOBURL == "" {
		return nil, fmt.Errorf("clob url required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry required")
	}

	c := &Client{
		creds:     cfg.Credentials,
		breakers:  cfg.Breakers,
		logger:    cfg.Logger,
		lastBooks: make(map[string]*types.NormalizedOrderBook),
	}

	c.http = resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.CLOBURL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	c.dataAPI = resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.DataAPIURL, "/")).
		SetTimeout(cfg.RequestTimeout)

	return c, nil
}

type rawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type rawBook struct {
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Timestamp string     `json:"timestamp"`
	Bids      []rawLevel `json:"bids"`
	Asks      []rawLevel `json:"asks"`
}

// GetOrderBook fetches the book for one token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.NormalizedOrderBook, error) {
	endpoint := "/book"
	breaker := c.breakers.For(endpoint)

	if !breaker.Allow() {
		if book := c.cachedBook(tokenID); book != nil {
			return book, nil
		}
		return nil, fmt.Errorf("breaker cooling down and no cached book for %s", tokenID)
	}

	var raw rawBook
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&raw).
		Get(endpoint)
	if err = restError(resp, err); err != nil {
		breaker.RecordFailure()
		if book := c.cachedBook(tokenID); book != nil {
			c.logger.Warn("orderbook-fetch-failed-serving-cache",
				zap.String("token-id", tokenID), zap.Error(err))
			return book, nil
		}
		return nil, err
	}
	breaker.RecordSuccess()

	book, err := normalizeBook(&raw)
	if err != nil {
		return nil, fmt.Errorf("normalize book: %w", err)
	}

	c.mu.Lock()
	c.lastBooks[tokenID] = book
	c.mu.Unlock()

	return book.Clone(), nil
}

// GetOrderBooks fetches books for multiple tokens in one batch request.
func (c *Client) GetOrderBooks(ctx context.Context, tokenIDs []string) ([]*types.NormalizedOrderBook, error) {
	endpoint := "/books"
	breaker := c.breakers.For(endpoint)

	params := make([]map[string]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		params = append(params, map[string]string{"token_id": id})
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	if !breaker.Allow() {
		return c.cachedBooks(tokenIDs), nil
	}

	var raws []rawBook
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&raws).
		Post(endpoint)
	if err = restError(resp, err); err != nil {
		breaker.RecordFailure()
		return nil, err
	}
	breaker.RecordSuccess()

	books := make([]*types.NormalizedOrderBook, 0, len(raws))
	c.mu.Lock()
	for i := range raws {
		book, normErr := normalizeBook(&raws[i])
		if normErr != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("normalize book %s: %w", raws[i].AssetID, normErr)
		}
		c.lastBooks[book.AssetID] = book
		books = append(books, book.Clone())
	}
	c.mu.Unlock()

	return books, nil
}

// GetPrice returns the current best price for a token side ("BUY"/"SELL").
func (c *Client) GetPrice(ctx context.Context, tokenID string, side types.Side) (decimal.Decimal, error) {
	var out struct {
		Price string `json:"price"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"token_id": tokenID, "side": string(side)}).
		SetResult(&out).
		Get("/price")
	if err = restError(resp, err); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(out.Price)
}

// GetSpreads returns the bid/ask spread per token.
func (c *Client) GetSpreads(ctx context.Context, tokenIDs []string) (map[string]decimal.Decimal, error) {
	params := make([]map[string]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		params = append(params, map[string]string{"token_id": id})
	}

	var out map[string]string
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		SetResult(&out).
		Post("/spreads")
	if err = restError(resp, err); err != nil {
		return nil, err
	}

	spreads := make(map[string]decimal.Decimal, len(out))
	for id, s := range out {
		d, parseErr := decimal.NewFromString(s)
		if parseErr != nil {
			return nil, fmt.Errorf("parse spread for %s: %w", id, parseErr)
		}
		spreads[id] = d
	}
	return spreads, nil
}

// MarketInfo is the CLOB market metadata used to warm the book cache.
type MarketInfo struct {
	ConditionID  string          `json:"condition_id"`
	Question     string          `json:"question"`
	NegRisk      bool            `json:"neg_risk"`
	MinOrderSize decimal.Decimal `json:"-"`
	TickSize     decimal.Decimal `json:"-"`
	Tokens       []MarketToken   `json:"tokens"`
}

// MarketToken is one outcome token of a CLOB market.
type MarketToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// GetMarket fetches CLOB metadata for one condition id.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*MarketInfo, error) {
	var raw struct {
		MarketInfo
		MinimumOrderSize json.RawMessage `json:"minimum_order_size"`
		MinimumTickSize  json.RawMessage `json:"minimum_tick_size"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/markets/" + conditionID)
	if err = restError(resp, err); err != nil {
		return nil, err
	}

	info := raw.MarketInfo
	info.MinOrderSize = parseLooseDecimal(raw.MinimumOrderSize)
	info.TickSize = parseLooseDecimal(raw.MinimumTickSize)
	return &info, nil
}

// GetOrderStatus reads one order's live status. REST is the source of truth
// for filled quantity.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	path := "/data/order/" + orderID
	headers, err := c.creds.AuthHeaders(http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}

	var raw rawOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&raw).
		Get(path)
	if err = restError(resp, err); err != nil {
		return nil, err
	}

	return raw.toOpenOrder()
}

// GetOpenOrders lists the account's open CLOB orders.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	path := "/data/orders"
	breaker := c.breakers.For(path)

	if !breaker.Allow() {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return append([]types.OpenOrder(nil), c.lastOrders...), nil
	}

	headers, err := c.creds.AuthHeaders(http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}

	var raws []rawOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&raws).
		Get(path)
	if err = restError(resp, err); err != nil {
		breaker.RecordFailure()
		return nil, err
	}
	breaker.RecordSuccess()

	orders := make([]types.OpenOrder, 0, len(raws))
	for i := range raws {
		order, convErr := raws[i].toOpenOrder()
		if convErr != nil {
			return nil, fmt.Errorf("convert order %s: %w", raws[i].ID, convErr)
		}
		orders = append(orders, *order)
	}

	c.mu.Lock()
	c.lastOrders = orders
	c.lastOrdersAt = time.Now()
	c.mu.Unlock()

	return orders, nil
}

// RawPosition is a data-api position row.
type RawPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
}

// GetPositions reads the proxy wallet's positions from the data-api.
func (c *Client) GetPositions(ctx context.Context, user string) ([]types.Position, error) {
	var raws []RawPosition
	resp, err := c.dataAPI.R().
		SetContext(ctx).
		SetQueryParam("user", user).
		SetResult(&raws).
		Get("/positions")
	if err = restError(resp, err); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(raws))
	for _, raw := range raws {
		outcome := types.OutcomeUnknown
		switch strings.ToUpper(raw.Outcome) {
		case "YES":
			outcome = types.OutcomeYes
		case "NO":
			outcome = types.OutcomeNo
		}
		positions = append(positions, types.Position{
			Venue:         types.VenuePolymarket,
			MarketID:      raw.ConditionID,
			TokenID:       raw.Asset,
			EventTitle:    raw.Title,
			Outcome:       outcome,
			Shares:        decimal.NewFromFloat(raw.Size).Round(2),
			AvgEntryPrice: decimal.NewFromFloat(raw.AvgPrice).Round(4),
			MarkValue:     decimal.NewFromFloat(raw.CurrentValue).Round(4),
		})
	}
	return positions, nil
}

type rawOrder struct {
	ID           string `json:"id"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome"`
	CreatedAt    int64  `json:"created_at"`
}

func (r *rawOrder) toOpenOrder() (*types.OpenOrder, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	original, err := decimal.NewFromString(r.OriginalSize)
	if err != nil {
		return nil, fmt.Errorf("parse original size: %w", err)
	}
	matched := decimal.Zero
	if r.SizeMatched != "" {
		matched, err = decimal.NewFromString(r.SizeMatched)
		if err != nil {
			return nil, fmt.Errorf("parse size matched: %w", err)
		}
	}

	outcome := types.OutcomeUnknown
	switch strings.ToUpper(r.Outcome) {
	case "YES":
		outcome = types.OutcomeYes
	case "NO":
		outcome = types.OutcomeNo
	}

	return &types.OpenOrder{
		Venue:     types.VenuePolymarket,
		OrderID:   r.ID,
		MarketID:  r.Market,
		TokenID:   r.AssetID,
		Side:      types.Side(strings.ToUpper(r.Side)),
		Outcome:   outcome,
		Price:     price,
		Original:  original,
		Filled:    matched,
		Status:    mapOrderStatus(r.Status, original, matched),
		CreatedAt: time.Unix(r.CreatedAt, 0),
	}, nil
}

// mapOrderStatus translates CLOB status strings into the shared lifecycle.
func mapOrderStatus(status string, original, matched decimal.Decimal) types.OrderStatus {
	switch strings.ToUpper(status) {
	case "LIVE":
		if matched.IsPositive() {
			return types.OrderPartiallyFilled
		}
		return types.OrderLive
	case "MATCHED", "FILLED":
		return types.OrderFilled
	case "CANCELED", "CANCELLED":
		return types.OrderCancelled
	case "EXPIRED":
		return types.OrderExpired
	case "UNMATCHED", "DELAYED":
		return types.OrderLive
	default:
		if matched.GreaterThanOrEqual(original) && original.IsPositive() {
			return types.OrderFilled
		}
		return types.OrderPending
	}
}

func (c *Client) cachedBook(tokenID string) *types.NormalizedOrderBook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if book, ok := c.lastBooks[tokenID]; ok {
		return book.Clone()
	}
	return nil
}

func (c *Client) cachedBooks(tokenIDs []string) []*types.NormalizedOrderBook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	books := make([]*types.NormalizedOrderBook, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if book, ok := c.lastBooks[id]; ok {
			books = append(books, book.Clone())
		}
	}
	return books
}

// normalizeBook converts a wire book into the shared normalized form.
func normalizeBook(raw *rawBook) (*types.NormalizedOrderBook, error) {
	book := &types.NormalizedOrderBook{
		Venue:    types.VenuePolymarket,
		MarketID: raw.Market,
		AssetID:  raw.AssetID,
	}

	if raw.Timestamp != "" {
		ts, err := parseMillis(raw.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		book.UpdateTimestampMs = ts
	} else {
		book.UpdateTimestampMs = time.Now().UnixMilli()
	}

	var err error
	book.Bids, err = parseLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	book.Asks, err = parseLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}

	types.SortLevels(book.Asks, true)
	types.SortLevels(book.Bids, false)

	return book, nil
}

func parseLevels(raws []rawLevel) ([]types.BookLevel, error) {
	levels := make([]types.BookLevel, 0, len(raws))
	for _, raw := range raws {
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", raw.Price, err)
		}
		size, err := decimal.NewFromString(raw.Size)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", raw.Size, err)
		}
		levels = append(levels, types.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

func parseMillis(s string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(s, "%d", &ts)
	return ts, err
}

// parseLooseDecimal handles fields venues encode as either number or string.
func parseLooseDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	s := strings.Trim(string(raw), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// restError folds transport and HTTP-status failures into the shared error
// taxonomy.
func restError(resp *resty.Response, err error) error {
	if err != nil {
		return &types.TransportError{Op: "http request", Err: err}
	}
	if resp == nil {
		return &types.TransportError{Op: "http request", Err: fmt.Errorf("nil response")}
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return &types.RateLimitError{Venue: types.VenuePolymarket}
	}
	if resp.IsError() {
		return &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
