package polymarket

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
)

// OrderType selects the CLOB matching behavior. GTC rests on the book,
// FAK fills what it can immediately and cancels the rest.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFAK OrderType = "FAK"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// fakTTL is the expiration window stamped on immediate-or-cancel orders.
// The exchange rejects expirations in the past, so a small buffer is kept.
const fakTTL = 60 * time.Second

// OrderSpec describes one order before signing.
type OrderSpec struct {
	TokenID    string
	Side       types.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	FeeRateBps int
	NegRisk    bool
	Type       OrderType
}

// SignedOrderRequest is the wire payload for POST /order.
type SignedOrderRequest struct {
	Order     signedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`
	OrderType OrderType       `json:"orderType"`
}

type signedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderResponse is the CLOB reply to an order placement.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// OrderBuilder signs CLOB orders with the trader EOA key. The proxy wallet,
// when set, is the maker/funder while the EOA remains the signer.
type OrderBuilder struct {
	privateKey    *ecdsa.PrivateKey
	address       string
	proxyAddress  string
	signatureType model.SignatureType
	apiKey        string
	builder       builder.ExchangeOrderBuilder
	now           func() time.Time
}

// OrderBuilderConfig holds order builder configuration.
type OrderBuilderConfig struct {
	PrivateKey    string
	ProxyAddress  string
	SignatureType int
	APIKey        string
}

// NewOrderBuilder creates an order builder for Polygon mainnet.
func NewOrderBuilder(cfg OrderBuilderConfig) (*OrderBuilder, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("derive public key")
	}
	address := crypto.PubkeyToAddress(*publicKey).Hex()

	chainID := big.NewInt(137)

	return &OrderBuilder{
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		apiKey:        cfg.APIKey,
		builder:       builder.NewExchangeOrderBuilderImpl(chainID, nil),
		now:           time.Now,
	}, nil
}

// Address returns the signer EOA address.
func (b *OrderBuilder) Address() string {
	return b.address
}

// Build signs an order. Amounts are scaled to 6-decimal raw units; BUY
// spends makerAmount USDC for takerAmount shares, SELL is the reverse.
func (b *OrderBuilder) Build(spec OrderSpec) (*SignedOrderRequest, error) {
	if !spec.Price.IsPositive() || !spec.Size.IsPositive() {
		return nil, &types.ValidationError{Field: "order", Reason: "price and size must be positive"}
	}

	usdc := rawAmount(spec.Price.Mul(spec.Size))
	shares := rawAmount(spec.Size)

	var makerAmount, takerAmount string
	var side model.Side
	switch spec.Side {
	case types.SideBuy:
		side = model.BUY
		makerAmount = usdc
		takerAmount = shares
	case types.SideSell:
		side = model.SELL
		makerAmount = shares
		takerAmount = usdc
	default:
		return nil, &types.ValidationError{Field: "side", Reason: "unknown side " + string(spec.Side)}
	}

	maker := b.address
	if b.proxyAddress != "" {
		maker = b.proxyAddress
	}

	expiration := "0"
	if spec.Type == OrderTypeFAK {
		expiration = fmt.Sprintf("%d", b.now().Add(fakTTL).Unix())
	}

	data := &model.OrderData{
		Maker:         maker,
		Taker:         zeroAddress,
		TokenId:       spec.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    fmt.Sprintf("%d", spec.FeeRateBps),
		Nonce:         "0",
		Signer:        b.address,
		Expiration:    expiration,
		SignatureType: b.signatureType,
	}

	contract := model.CTFExchange
	if spec.NegRisk {
		contract = model.NegRiskCTFExchange
	}

	signed, err := b.builder.BuildSignedOrder(b.privateKey, data, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	sideStr := "BUY"
	if signed.Side.Uint64() == uint64(model.SELL) {
		sideStr = "SELL"
	}

	return &SignedOrderRequest{
		Order: signedOrderJSON{
			Salt:          signed.Salt.Int64(),
			Maker:         signed.Maker.Hex(),
			Signer:        signed.Signer.Hex(),
			Taker:         signed.Taker.Hex(),
			TokenID:       signed.TokenId.String(),
			MakerAmount:   signed.MakerAmount.String(),
			TakerAmount:   signed.TakerAmount.String(),
			Side:          sideStr,
			Expiration:    signed.Expiration.String(),
			Nonce:         signed.Nonce.String(),
			FeeRateBps:    signed.FeeRateBps.String(),
			SignatureType: int(signed.SignatureType.Int64()),
			Signature:     "0x" + common.Bytes2Hex(signed.Signature),
		},
		Owner:     b.apiKey,
		OrderType: spec.Type,
	}, nil
}

// rawAmount converts a decimal into 6-decimal integer units.
func rawAmount(d decimal.Decimal) string {
	return d.Shift(6).Round(0).BigInt().String()
}

// PlaceOrder submits a signed order.
func (c *Client) PlaceOrder(ctx context.Context, req *SignedOrderRequest) (*OrderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	path := "/order"
	headers, err := c.creds.AuthHeaders(http.MethodPost, path, string(body))
	if err != nil {
		return nil, err
	}

	var out OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return nil, &types.TransportError{Op: "place order", Err: err}
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, &types.RateLimitError{Venue: types.VenuePolymarket}
	}

	if !out.Success || out.ErrorMsg != "" {
		OrdersPlacedTotal.WithLabelValues("rejected").Inc()
		return nil, &types.ExchangeError{
			Venue:   types.VenuePolymarket,
			Code:    exchangeCode(out.ErrorMsg),
			Message: out.ErrorMsg,
			OrderID: out.OrderID,
		}
	}
	if resp.IsError() {
		OrdersPlacedTotal.WithLabelValues("error").Inc()
		return nil, &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	OrdersPlacedTotal.WithLabelValues("ok").Inc()
	return &out, nil
}

// CancelOrder cancels one resting order. Cancelling an already-terminal
// order returns an ExchangeError the caller may treat as success.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	payload := map[string]string{"orderID": orderID}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}

	path := "/order"
	headers, err := c.creds.AuthHeaders(http.MethodDelete, path, string(body))
	if err != nil {
		return err
	}

	var out struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&out).
		Delete(path)
	if err != nil {
		return &types.TransportError{Op: "cancel order", Err: err}
	}
	if resp.IsError() {
		return &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	if reason, ok := out.NotCanceled[orderID]; ok {
		return &types.ExchangeError{
			Venue:   types.VenuePolymarket,
			Code:    exchangeCode(reason),
			Message: reason,
			OrderID: orderID,
		}
	}
	return nil
}

// exchangeCode extracts the structured error code when the exchange
// message carries one.
func exchangeCode(msg string) string {
	upper := strings.ToUpper(msg)
	for _, code := range types.CLOBErrorCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return ""
}
