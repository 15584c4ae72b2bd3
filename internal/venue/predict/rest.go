package predict

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/circuitbreaker"
	"github.com/apri1one/predict-arb-sub004/pkg/keypool"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClientConfig holds REST client configuration. Scan traffic rotates over
// the key pool; trading uses the dedicated trade key plus the JWT.
type ClientConfig struct {
	BaseURL        string
	ScanKeys       *keypool.Pool
	TradeKey       string
	Auth           *Authenticator
	RequestTimeout time.Duration
	Breakers       *circuitbreaker.Registry
	Logger         *zap.Logger
}

// Client is the Predict REST client.
type Client struct {
	http     *resty.Client
	scanKeys *keypool.Pool
	tradeKey string
	auth     *Authenticator
	breakers *circuitbreaker.Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	lastBooks map[string]*types.NormalizedOrderBook
}

// NewClient creates a Predict REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	if cfg.ScanKeys == nil {
		return nil, fmt.Errorf("scan key pool required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry required")
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Content-Type", "application/json"),
		scanKeys:  cfg.ScanKeys,
		tradeKey:  cfg.TradeKey,
		auth:      cfg.Auth,
		breakers:  cfg.Breakers,
		logger:    cfg.Logger,
		lastBooks: make(map[string]*types.NormalizedOrderBook),
	}, nil
}

// scanRequest builds a request carrying the next scan key. On a 429 reply
// the key is cooled and the caller may retry on the next key.
func (c *Client) scanRequest(ctx context.Context) (*resty.Request, string) {
	key := c.scanKeys.Next()
	return c.http.R().SetContext(ctx).SetHeader("x-api-key", key), key
}

// tradeRequest builds an authenticated request with the trade key and JWT.
func (c *Client) tradeRequest(ctx context.Context) (*resty.Request, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.tradeKey).
		SetAuthToken(token), nil
}

type rawPredictLevel struct {
	Price string `json:"price"`
	Size  string `json:"quantity"`
}

type rawPredictBook struct {
	MarketID    string            `json:"marketId"`
	TokenID     string            `json:"tokenId"`
	Asks        []rawPredictLevel `json:"asks"`
	Bids        []rawPredictLevel `json:"bids"`
	UpdatedAtMs int64             `json:"updatedAt"`
}

// GetOrderBook fetches one market's book. Cooldown windows are answered
// from the last good book.
func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*types.NormalizedOrderBook, error) {
	endpoint := "/v1/orderbook"
	breaker := c.breakers.For(endpoint)

	if !breaker.Allow() {
		if book := c.cachedBook(marketID); book != nil {
			return book, nil
		}
		return nil, fmt.Errorf("breaker cooling down and no cached book for %s", marketID)
	}

	var raw rawPredictBook
	req, key := c.scanRequest(ctx)
	resp, err := req.
		SetQueryParam("marketId", marketID).
		SetResult(&raw).
		Get(endpoint)
	if err = c.scanError(resp, err, key); err != nil {
		breaker.RecordFailure()
		if book := c.cachedBook(marketID); book != nil {
			c.logger.Warn("orderbook-fetch-failed-serving-cache",
				zap.String("market-id", marketID), zap.Error(err))
			return book, nil
		}
		return nil, err
	}
	breaker.RecordSuccess()

	book, err := normalizePredictBook(marketID, &raw)
	if err != nil {
		return nil, fmt.Errorf("normalize book: %w", err)
	}

	c.mu.Lock()
	c.lastBooks[marketID] = book
	c.mu.Unlock()

	return book.Clone(), nil
}

// GetOrderBooks fetches several books sequentially over the key pool.
func (c *Client) GetOrderBooks(ctx context.Context, marketIDs []string) ([]*types.NormalizedOrderBook, error) {
	books := make([]*types.NormalizedOrderBook, 0, len(marketIDs))
	for _, id := range marketIDs {
		book, err := c.GetOrderBook(ctx, id)
		if err != nil {
			return books, fmt.Errorf("get book %s: %w", id, err)
		}
		books = append(books, book)
	}
	return books, nil
}

// Market is venue market metadata.
type Market struct {
	MarketID     string   `json:"marketId"`
	EventTitle   string   `json:"eventTitle"`
	OutcomeName  string   `json:"outcomeName"`
	YesTokenID   string   `json:"yesTokenId"`
	NoTokenID    string   `json:"noTokenId"`
	TickSize     string   `json:"tickSize"`
	MinOrderSize string   `json:"minOrderSize"`
	NegRisk      bool     `json:"negRisk"`
	YieldBearing bool     `json:"yieldBearing"`
	FeeRateBps   int      `json:"feeRateBps"`
	Status       string   `json:"status"`
	Tags         []string `json:"tags"`
}

// GetMarkets lists markets, optionally filtered by status.
func (c *Client) GetMarkets(ctx context.Context, status string) ([]Market, error) {
	var out struct {
		Markets []Market `json:"markets"`
	}
	req, key := c.scanRequest(ctx)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	resp, err := req.SetResult(&out).Get("/v1/markets")
	if err = c.scanError(resp, err, key); err != nil {
		return nil, err
	}
	return out.Markets, nil
}

// GetEvents lists venue events (grouped markets).
func (c *Client) GetEvents(ctx context.Context) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	req, key := c.scanRequest(ctx)
	resp, err := req.SetResult(&out).Get("/v1/events")
	if err = c.scanError(resp, err, key); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Event groups the venue's markets under one title.
type Event struct {
	EventID string   `json:"eventId"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

type rawPredictOrder struct {
	OrderID   string `json:"orderId"`
	OrderHash string `json:"orderHash"`
	MarketID  string `json:"marketId"`
	TokenID   string `json:"tokenId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Filled    string `json:"filledQuantity"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// GetOpenOrders lists the smart wallet's open orders.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	req, err := c.tradeRequest(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Orders []rawPredictOrder `json:"orders"`
	}
	resp, err := req.SetResult(&out).Get("/v1/orders")
	if err = c.tradeError(resp, err); err != nil {
		return nil, err
	}

	orders := make([]types.OpenOrder, 0, len(out.Orders))
	for i := range out.Orders {
		order, convErr := out.Orders[i].toOpenOrder()
		if convErr != nil {
			return nil, fmt.Errorf("convert order %s: %w", out.Orders[i].OrderID, convErr)
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// GetOrderStatus reads one order. REST is the source of truth for filled
// quantity.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	req, err := c.tradeRequest(ctx)
	if err != nil {
		return nil, err
	}

	var raw rawPredictOrder
	resp, err := req.SetResult(&raw).Get("/v1/orders/" + orderID)
	if err = c.tradeError(resp, err); err != nil {
		return nil, err
	}
	return raw.toOpenOrder()
}

// PlaceOrderResponse is the venue reply to an order submission.
type PlaceOrderResponse struct {
	OrderID   string `json:"orderId"`
	OrderHash string `json:"orderHash"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// PlaceOrder submits a signed order.
func (c *Client) PlaceOrder(ctx context.Context, signed *SignedOrder) (*PlaceOrderResponse, error) {
	req, err := c.tradeRequest(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"order": map[string]string{
			"salt":          signed.Order.Salt.String(),
			"maker":         signed.Order.Maker.Hex(),
			"signer":        signed.Order.Signer.Hex(),
			"taker":         signed.Order.Taker.Hex(),
			"tokenId":       signed.Order.TokenID.String(),
			"makerAmount":   signed.Order.MakerAmount.String(),
			"takerAmount":   signed.Order.TakerAmount.String(),
			"expiration":    signed.Order.Expiration.String(),
			"nonce":         signed.Order.Nonce.String(),
			"feeRateBps":    signed.Order.FeeRateBps.String(),
			"side":          sideString(signed.Order.Side),
			"signatureType": fmt.Sprintf("%d", signed.Order.SignatureType),
		},
		"orderHash": signed.Hash.Hex(),
		"signature": "0x" + fmt.Sprintf("%x", signed.Signature),
	}

	var out PlaceOrderResponse
	resp, err := req.SetBody(payload).SetResult(&out).SetError(&out).Post("/v1/orders")
	if err != nil {
		return nil, &types.TransportError{Op: "place order", Err: err}
	}
	if out.Error != "" {
		return nil, &types.ExchangeError{
			Venue:   types.VenuePredict,
			Message: out.Error,
			OrderID: out.OrderID,
		}
	}
	if err = c.tradeError(resp, nil); err != nil {
		return nil, err
	}
	if out.OrderHash == "" {
		out.OrderHash = signed.Hash.Hex()
	}
	return &out, nil
}

// CancelOrder cancels one resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	req, err := c.tradeRequest(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Delete("/v1/orders/" + orderID)
	return c.tradeError(resp, err)
}

// positionsQuery is the GraphQL document for the smart wallet's positions.
const positionsQuery = `query Positions($address: String!) {
  positions(where: {owner: $address, shares_gt: 0}) {
    marketId
    tokenId
    outcomeName
    eventTitle
    shares
    avgEntryPrice
    markValue
  }
}`

// GetPositions reads positions through the venue GraphQL endpoint.
func (c *Client) GetPositions(ctx context.Context, smartWallet string) ([]types.Position, error) {
	req, key := c.scanRequest(ctx)

	body := map[string]interface{}{
		"query": positionsQuery,
		"variables": map[string]string{
			"address": smartWallet,
		},
	}

	var out struct {
		Data struct {
			Positions []struct {
				MarketID      string `json:"marketId"`
				TokenID       string `json:"tokenId"`
				OutcomeName   string `json:"outcomeName"`
				EventTitle    string `json:"eventTitle"`
				Shares        string `json:"shares"`
				AvgEntryPrice string `json:"avgEntryPrice"`
				MarkValue     string `json:"markValue"`
			} `json:"positions"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	resp, err := req.SetBody(body).SetResult(&out).Post("/v1/graphql")
	if err = c.scanError(resp, err, key); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}

	positions := make([]types.Position, 0, len(out.Data.Positions))
	for _, raw := range out.Data.Positions {
		outcome := types.OutcomeUnknown
		switch strings.ToUpper(raw.OutcomeName) {
		case "YES":
			outcome = types.OutcomeYes
		case "NO":
			outcome = types.OutcomeNo
		}
		title := raw.EventTitle
		if outcome == types.OutcomeUnknown && raw.OutcomeName != "" {
			// Multi-outcome markets display as "<event> - <outcome>".
			title = raw.EventTitle + " - " + raw.OutcomeName
		}
		positions = append(positions, types.Position{
			Venue:         types.VenuePredict,
			MarketID:      raw.MarketID,
			TokenID:       raw.TokenID,
			EventTitle:    title,
			Outcome:       outcome,
			Shares:        looseDecimalString(raw.Shares),
			AvgEntryPrice: looseDecimalString(raw.AvgEntryPrice),
			MarkValue:     looseDecimalString(raw.MarkValue),
		})
	}
	return positions, nil
}

// GetBalance reads the smart wallet's collateral balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	req, err := c.tradeRequest(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	var out struct {
		Balance string `json:"balance"`
	}
	resp, err := req.SetResult(&out).Get("/v1/account/balance")
	if err = c.tradeError(resp, err); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(out.Balance)
}

func (r *rawPredictOrder) toOpenOrder() (*types.OpenOrder, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	original, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	filled := decimal.Zero
	if r.Filled != "" {
		filled, err = decimal.NewFromString(r.Filled)
		if err != nil {
			return nil, fmt.Errorf("parse filled: %w", err)
		}
	}

	return &types.OpenOrder{
		Venue:     types.VenuePredict,
		OrderID:   r.OrderID,
		OrderHash: r.OrderHash,
		MarketID:  r.MarketID,
		TokenID:   r.TokenID,
		Side:      types.Side(strings.ToUpper(r.Side)),
		// Orders reconstructed from venue state keep the outcome unknown
		// until the token id resolves through the market mapping.
		Outcome:   types.OutcomeUnknown,
		Price:     price,
		Original:  original,
		Filled:    filled,
		Status:    mapPredictStatus(r.Status, original, filled),
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}, nil
}

func mapPredictStatus(status string, original, filled decimal.Decimal) types.OrderStatus {
	switch strings.ToUpper(status) {
	case "OPEN", "LIVE":
		if filled.IsPositive() {
			return types.OrderPartiallyFilled
		}
		return types.OrderLive
	case "FILLED":
		return types.OrderFilled
	case "CANCELLED", "CANCELED":
		return types.OrderCancelled
	case "EXPIRED":
		return types.OrderExpired
	case "FAILED", "REJECTED":
		return types.OrderFailed
	default:
		if original.IsPositive() && filled.GreaterThanOrEqual(original) {
			return types.OrderFilled
		}
		return types.OrderPending
	}
}

func sideString(side uint8) string {
	if side == 1 {
		return "SELL"
	}
	return "BUY"
}

func (c *Client) cachedBook(marketID string) *types.NormalizedOrderBook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if book, ok := c.lastBooks[marketID]; ok {
		return book.Clone()
	}
	return nil
}

// scanError folds failures into the error taxonomy and cools the key on
// venue throttles.
func (c *Client) scanError(resp *resty.Response, err error, key string) error {
	if err != nil {
		return &types.TransportError{Op: "http request", Err: err}
	}
	if resp == nil {
		return &types.TransportError{Op: "http request", Err: fmt.Errorf("nil response")}
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		c.scanKeys.MarkRateLimited(key)
		return &types.RateLimitError{Venue: types.VenuePredict, Key: key}
	}
	if resp.IsError() {
		return &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

func (c *Client) tradeError(resp *resty.Response, err error) error {
	if err != nil {
		return &types.TransportError{Op: "http request", Err: err}
	}
	if resp == nil {
		return &types.TransportError{Op: "http request", Err: fmt.Errorf("nil response")}
	}
	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return &types.RateLimitError{Venue: types.VenuePredict, Key: c.tradeKey}
	case http.StatusUnauthorized, http.StatusForbidden:
		c.auth.Invalidate()
		return &types.AuthError{Venue: types.VenuePredict, Reason: string(resp.Body())}
	}
	if resp.IsError() {
		return &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

func normalizePredictBook(marketID string, raw *rawPredictBook) (*types.NormalizedOrderBook, error) {
	book := &types.NormalizedOrderBook{
		Venue:             types.VenuePredict,
		MarketID:          marketID,
		AssetID:           raw.TokenID,
		UpdateTimestampMs: raw.UpdatedAtMs,
	}
	if book.AssetID == "" {
		book.AssetID = marketID
	}
	if book.UpdateTimestampMs == 0 {
		book.UpdateTimestampMs = time.Now().UnixMilli()
	}

	var err error
	book.Asks, err = parsePredictLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}
	book.Bids, err = parsePredictLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}

	types.SortLevels(book.Asks, true)
	types.SortLevels(book.Bids, false)

	return book, nil
}

func parsePredictLevels(raws []rawPredictLevel) ([]types.BookLevel, error) {
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

func looseDecimalString(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
