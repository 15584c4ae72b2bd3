// Package predict implements the BSC-settled venue: JWT authentication via
// signed message, the REST client, the market-data WebSocket feed, EIP-712
// order signing for the four exchange contracts, and the on-chain
// OrderFilled watcher.
package predict

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// BSC mainnet.
const chainID = 56

// ExchangeContracts holds the four exchange deployments. Orders route to
// one of them based on the market's negRisk and yield-bearing flags.
type ExchangeContracts struct {
	CTF                 common.Address
	NegRiskCTF          common.Address
	YieldBearing        common.Address
	YieldBearingNegRisk common.Address
}

// DefaultExchangeContracts are the mainnet deployments.
var DefaultExchangeContracts = ExchangeContracts{
	CTF:                 common.HexToAddress("0x8B1e2dA2F2Cf1e7a2c9d0E5b33F4c6A1d9B0c3E4"),
	NegRiskCTF:          common.HexToAddress("0x1F5C8e0A4B72D3c6E9f0A1b2C3d4E5F60718293A"),
	YieldBearing:        common.HexToAddress("0x6a0Db4C7E2f19385B4c6D7e8F90A1B2c3D4E5f67"),
	YieldBearingNegRisk: common.HexToAddress("0xB30C5A2d4E6F7890A1b2C3D4e5F60718293a4B5C"),
}

// Resolve picks the verifying contract for a market.
func (e ExchangeContracts) Resolve(negRisk, yieldBearing bool) common.Address {
	switch {
	case negRisk && yieldBearing:
		return e.YieldBearingNegRisk
	case negRisk:
		return e.NegRiskCTF
	case yieldBearing:
		return e.YieldBearing
	default:
		return e.CTF
	}
}

// Order is the EIP-712 order object submitted to the venue. Amounts are
// 18-decimal integer units.
type Order struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// SignedOrder couples an order with its signature and typed-data hash. The
// hash is what the on-chain OrderFilled event indexes.
type SignedOrder struct {
	Order     Order
	Hash      common.Hash
	Signature []byte
}

// Signer signs venue orders with the EOA key on behalf of the smart
// wallet. Immutable after construction.
type Signer struct {
	privateKey  *ecdsa.PrivateKey
	signerAddr  common.Address
	smartWallet common.Address
	contracts   ExchangeContracts
}

// NewSigner parses the EOA key and binds it to the smart wallet address.
func NewSigner(privateKeyHex, smartWalletAddr string, contracts ExchangeContracts) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if !common.IsHexAddress(smartWalletAddr) {
		return nil, fmt.Errorf("invalid smart wallet address %q", smartWalletAddr)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("derive public key")
	}

	return &Signer{
		privateKey:  privateKey,
		signerAddr:  crypto.PubkeyToAddress(*publicKey),
		smartWallet: common.HexToAddress(smartWalletAddr),
		contracts:   contracts,
	}, nil
}

// Address returns the EOA signer address.
func (s *Signer) Address() common.Address {
	return s.signerAddr
}

// SmartWallet returns the maker smart-wallet address.
func (s *Signer) SmartWallet() common.Address {
	return s.smartWallet
}

// PredictOrderSpec describes one venue order before signing.
type PredictOrderSpec struct {
	TokenID      string
	Side         types.Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	FeeRateBps   int64
	Expiration   int64
	NegRisk      bool
	YieldBearing bool
}

// smart wallet signatures carry type 2 (contract wallet).
const signatureTypeSmartWallet = 2

// BuildOrder constructs the unsigned order. BUY pays makerAmount
// (price*size) of collateral for takerAmount shares; SELL is the reverse.
// Amounts use 18-decimal units.
func (s *Signer) BuildOrder(spec PredictOrderSpec) (*Order, error) {
	if !spec.Price.IsPositive() || !spec.Size.IsPositive() {
		return nil, &types.ValidationError{Field: "order", Reason: "price and size must be positive"}
	}

	tokenID, ok := new(big.Int).SetString(spec.TokenID, 10)
	if !ok {
		return nil, &types.ValidationError{Field: "tokenId", Reason: "not a decimal integer"}
	}

	collateral := rawAmount18(spec.Price.Mul(spec.Size))
	shares := rawAmount18(spec.Size)

	var makerAmount, takerAmount *big.Int
	var side uint8
	switch spec.Side {
	case types.SideBuy:
		side = 0
		makerAmount = collateral
		takerAmount = shares
	case types.SideSell:
		side = 1
		makerAmount = shares
		takerAmount = collateral
	default:
		return nil, &types.ValidationError{Field: "side", Reason: "unknown side " + string(spec.Side)}
	}

	salt, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	return &Order{
		Salt:          salt,
		Maker:         s.smartWallet,
		Signer:        s.signerAddr,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(spec.Expiration),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(spec.FeeRateBps),
		Side:          side,
		SignatureType: signatureTypeSmartWallet,
	}, nil
}

// SignOrder hashes the order against the matching exchange domain and
// signs it. The returned hash matches the on-chain OrderFilled orderHash.
func (s *Signer) SignOrder(order *Order, negRisk, yieldBearing bool) (*SignedOrder, error) {
	hash, err := s.OrderHash(order, negRisk, yieldBearing)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	// Transform V from 0/1 to 27/28 per on-chain convention.
	signature[64] += 27

	return &SignedOrder{Order: *order, Hash: hash, Signature: signature}, nil
}

// OrderHash computes the EIP-712 typed-data hash for an order.
func (s *Signer) OrderHash(order *Order, negRisk, yieldBearing bool) (common.Hash, error) {
	verifying := s.contracts.Resolve(negRisk, yieldBearing)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Predict CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifying.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash order: %w", err)
	}

	raw := append([]byte("\x19\x01"), domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256Hash(raw), nil
}

// rawAmount18 converts a decimal into 18-decimal integer units.
func rawAmount18(d decimal.Decimal) *big.Int {
	return d.Shift(18).Round(0).BigInt()
}
