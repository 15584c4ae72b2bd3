package httpserver

import (
	"net/http"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BookSource reads cached orderbooks.
type BookSource interface {
	Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool)
}

// MappingSource resolves a Predict market id to its cross-venue mapping.
type MappingSource interface {
	MappingFor(predictMarketID string) (*types.MarketMapping, bool)
}

// OrderbookHandler handles HTTP requests for orderbook data.
type OrderbookHandler struct {
	books    BookSource
	mappings MappingSource
	logger   *zap.Logger
}

// NewOrderbookHandler creates a new orderbook handler.
func NewOrderbookHandler(books BookSource, mappings MappingSource, logger *zap.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		books:    books,
		mappings: mappings,
		logger:   logger,
	}
}

// TokenOrderbook represents the top of book for a single venue token.
type TokenOrderbook struct {
	Venue        types.Venue     `json:"venue"`
	Outcome      string          `json:"outcome"`
	TokenID      string          `json:"token_id"`
	BestBidPrice decimal.Decimal `json:"best_bid_price"`
	BestBidSize  decimal.Decimal `json:"best_bid_size"`
	BestAskPrice decimal.Decimal `json:"best_ask_price"`
	BestAskSize  decimal.Decimal `json:"best_ask_size"`
}

// OrderbookResponse represents the HTTP response for orderbook data.
type OrderbookResponse struct {
	MarketID    string           `json:"market_id"`
	ConditionID string           `json:"condition_id"`
	Title       string           `json:"title"`
	Books       []TokenOrderbook `json:"books"`
}

// HandleOrderbook handles GET /api/orderbook?market=<predict-market-id>.
func (h *OrderbookHandler) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market")
	if marketID == "" {
		h.writeError(w, "missing required query parameter: market", http.StatusBadRequest)
		return
	}

	h.logger.Debug("orderbook-request-received", zap.String("market-id", marketID))

	mapping, exists := h.mappings.MappingFor(marketID)
	if !exists {
		h.writeError(w, "market not found or not mapped", http.StatusNotFound)
		return
	}

	tokens := []struct {
		venue   types.Venue
		outcome string
		tokenID string
	}{
		{types.VenuePredict, "YES", mapping.PredictYesTokenID},
		{types.VenuePredict, "NO", mapping.PredictNoTokenID},
		{types.VenuePolymarket, "YES", mapping.PolymarketYesTokenID},
		{types.VenuePolymarket, "NO", mapping.PolymarketNoTokenID},
	}

	books := make([]TokenOrderbook, 0, len(tokens))
	for _, token := range tokens {
		book, found := h.books.Get(token.venue, token.tokenID)
		if !found {
			h.logger.Debug("orderbook-not-available",
				zap.String("token-id", token.tokenID),
				zap.String("venue", string(token.venue)))
			continue
		}

		entry := TokenOrderbook{
			Venue:   token.venue,
			Outcome: token.outcome,
			TokenID: token.tokenID,
		}
		if bid, ok := book.BestBid(); ok {
			entry.BestBidPrice = bid.Price
			entry.BestBidSize = bid.Size
		}
		if ask, ok := book.BestAsk(); ok {
			entry.BestAskPrice = ask.Price
			entry.BestAskSize = ask.Size
		}
		books = append(books, entry)
	}

	response := OrderbookResponse{
		MarketID:    mapping.PredictMarketID,
		ConditionID: mapping.PolymarketConditionID,
		Title:       mapping.EventTitle,
		Books:       books,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *OrderbookHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	writeError(w, h.logger, message, statusCode)
}
