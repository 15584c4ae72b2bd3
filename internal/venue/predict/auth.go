package predict

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// refreshLead is how long before expiry a cached JWT is proactively
// replaced.
const refreshLead = 5 * time.Minute

// Authenticator obtains and caches the venue JWT: fetch the auth message,
// sign it with the EOA key, exchange the signature for a token. The token
// is process-wide and never mutated after issue, only replaced.
type Authenticator struct {
	http   *resty.Client
	signer *Signer
	logger *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// AuthConfig holds authenticator configuration.
type AuthConfig struct {
	BaseURL        string
	Signer         *Signer
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer required")
	}

	return &Authenticator{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Content-Type", "application/json"),
		signer: cfg.Signer,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// Token returns a valid JWT, refreshing it when within the lead window of
// expiry. Safe for concurrent use.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expiresAt.Add(-refreshLead)) {
		return a.token, nil
	}
	return a.refreshLocked(ctx)
}

// Invalidate drops the cached token, forcing a refresh on the next Token
// call. Used after a venue 401.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.expiresAt = time.Time{}
	a.mu.Unlock()
}

func (a *Authenticator) refreshLocked(ctx context.Context) (string, error) {
	message, err := a.fetchAuthMessage(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch auth message: %w", err)
	}

	signature, err := a.signMessage(message)
	if err != nil {
		return "", fmt.Errorf("sign auth message: %w", err)
	}

	token, err := a.exchange(ctx, message, signature)
	if err != nil {
		return "", fmt.Errorf("exchange signature: %w", err)
	}

	expiresAt, err := tokenExpiry(token)
	if err != nil {
		return "", fmt.Errorf("parse token expiry: %w", err)
	}

	a.token = token
	a.expiresAt = expiresAt
	AuthRefreshesTotal.Inc()
	a.logger.Info("jwt-refreshed", zap.Time("expires-at", expiresAt))

	return token, nil
}

func (a *Authenticator) fetchAuthMessage(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("address", a.signer.SmartWallet().Hex()).
		SetResult(&out).
		Get("/v1/auth/message")
	if err != nil {
		return "", &types.TransportError{Op: "auth message", Err: err}
	}
	if resp.IsError() {
		return "", &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out.Message == "" {
		return "", fmt.Errorf("empty auth message")
	}
	return out.Message, nil
}

// signMessage produces a personal-sign signature over the auth message.
func (a *Authenticator) signMessage(message string) (string, error) {
	hash := accounts.TextHash([]byte(message))
	signature, err := crypto.Sign(hash, a.signer.privateKey)
	if err != nil {
		return "", err
	}
	signature[64] += 27
	return "0x" + common.Bytes2Hex(signature), nil
}

func (a *Authenticator) exchange(ctx context.Context, message, signature string) (string, error) {
	payload := map[string]string{
		"address":   a.signer.SmartWallet().Hex(),
		"signer":    a.signer.Address().Hex(),
		"message":   message,
		"signature": signature,
	}

	var out struct {
		Token string `json:"token"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/v1/auth")
	if err != nil {
		return "", &types.TransportError{Op: "auth exchange", Err: err}
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return "", &types.AuthError{Venue: types.VenuePredict, Reason: string(resp.Body())}
	}
	if resp.IsError() {
		return "", &types.HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out.Token == "" {
		return "", &types.AuthError{Venue: types.VenuePredict, Reason: "empty token in auth reply"}
	}
	return out.Token, nil
}

// tokenExpiry extracts the exp claim without verifying the signature; the
// venue is the issuer and the token is only used back against it.
func tokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}
