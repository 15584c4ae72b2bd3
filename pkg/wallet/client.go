// Package wallet reads on-chain collateral state for the venue wallets:
// native gas balance, the collateral ERC-20 balance and the allowance
// granted to the venue's exchange contract.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Collateral token deployments per chain.
var (
	// BSCUSDT is the Predict collateral token (18 decimals on BSC).
	BSCUSDT = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	// PolygonUSDC is the bridged USDC.e used by the Polymarket CTF Exchange.
	PolygonUSDC = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	// PolygonCTFExchange is the Polymarket exchange spender.
	PolygonCTFExchange = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
)

const nativeDecimals = 18

// Config describes one chain's collateral setup.
type Config struct {
	RPCURL string
	// Token is the collateral ERC-20 contract.
	Token common.Address
	// Spender is the exchange contract whose allowance is reported.
	Spender common.Address
	// TokenDecimals is the collateral token's decimal count.
	TokenDecimals int32
	Logger        *zap.Logger
}

// Client reads collateral state for wallets on one chain.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// Collateral is one wallet's on-chain funding snapshot, in whole-token
// units.
type Collateral struct {
	Native    decimal.Decimal // gas token balance
	Token     decimal.Decimal // collateral balance
	Allowance decimal.Decimal // collateral approved to the exchange
}

// NewClient creates a collateral reader for one chain.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url cannot be empty")
	}
	if cfg.Token == (common.Address{}) {
		return nil, errors.New("collateral token address required")
	}
	if cfg.TokenDecimals <= 0 {
		return nil, errors.New("token decimals must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{cfg: cfg, logger: cfg.Logger}, nil
}

// GetCollateral fetches the wallet's native balance, collateral balance
// and exchange allowance.
func (c *Client) GetCollateral(ctx context.Context, owner common.Address) (*Collateral, error) {
	client, err := ethclient.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	native, err := client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}

	tokenBal, err := c.getERC20Balance(ctx, client, owner)
	if err != nil {
		return nil, fmt.Errorf("get collateral balance: %w", err)
	}

	allowance, err := c.getERC20Allowance(ctx, client, owner)
	if err != nil {
		return nil, fmt.Errorf("get collateral allowance: %w", err)
	}

	return &Collateral{
		Native:    decimal.NewFromBigInt(native, -nativeDecimals),
		Token:     decimal.NewFromBigInt(tokenBal, -c.cfg.TokenDecimals),
		Allowance: decimal.NewFromBigInt(allowance, -c.cfg.TokenDecimals),
	}, nil
}

func (c *Client) getERC20Balance(
	ctx context.Context,
	client *ethclient.Client,
	owner common.Address,
) (*big.Int, error) {
	balanceOfABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	token := c.cfg.Token
	msg := ethereum.CallMsg{
		To:   &token,
		Data: data,
	}

	result, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

func (c *Client) getERC20Allowance(
	ctx context.Context,
	client *ethclient.Client,
	owner common.Address,
) (*big.Int, error) {
	allowanceABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(allowanceABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("allowance", owner, c.cfg.Spender)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	token := c.cfg.Token
	msg := ethereum.CallMsg{
		To:   &token,
		Data: data,
	}

	result, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}
