package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// How long a token taken from the shared Redis cache is trusted in
// memory before re-checking. Redis expiry is authoritative.
const memoryWindow = time.Minute

// TokenGranter is the slice of the gateway client the provider needs
type TokenGranter interface {
	GrantToken(ctx context.Context) (*TokenResult, error)
}

// SharedTokenCache is the cross-instance fast path (Redis)
type SharedTokenCache interface {
	GetGatewayToken(ctx context.Context) (string, error)
	SetGatewayToken(ctx context.Context, token string, ttl time.Duration) error
}

// DurableTokenCache is the Data Store row the token survives in
type DurableTokenCache interface {
	GetGatewayToken(ctx context.Context) (*models.GatewayToken, error)
	SaveGatewayToken(ctx context.Context, token string, expiresAt time.Time) error
}

// TokenProvider serves gateway auth tokens without a grant round-trip
// on every payment. Lookup order: in-memory, shared Redis entry,
// durable Data Store row, fresh grant. The refresh TTL sits below the
// gateway's own token lifetime so a cached token is never handed out
// close to its expiry.
type TokenProvider struct {
	granter TokenGranter
	shared  SharedTokenCache
	durable DurableTokenCache
	ttl     time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider creates a token provider with the given refresh TTL
func NewTokenProvider(granter TokenGranter, shared SharedTokenCache, durable DurableTokenCache, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		granter: granter,
		shared:  shared,
		durable: durable,
		ttl:     ttl,
		logger:  util.GetLogger(),
	}
}

// Token returns a currently valid gateway token
func (tp *TokenProvider) Token(ctx context.Context) (string, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	now := time.Now()
	if tp.token != "" && now.Before(tp.expiresAt) {
		return tp.token, nil
	}

	if tp.shared != nil {
		token, err := tp.shared.GetGatewayToken(ctx)
		if err != nil {
			tp.logger.Warn("Shared token cache read failed", zap.Error(err))
		} else if token != "" {
			tp.token = token
			tp.expiresAt = now.Add(memoryWindow)
			return token, nil
		}
	}

	if tp.durable != nil {
		row, err := tp.durable.GetGatewayToken(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			tp.logger.Warn("Durable token cache read failed", zap.Error(err))
		}
		if err == nil && now.Before(row.ExpiresAt) {
			tp.keep(ctx, row.Token, row.ExpiresAt)
			return row.Token, nil
		}
	}

	result, err := tp.granter.GrantToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to grant gateway token: %w", err)
	}

	util.GatewayTokenRefreshesTotal.Inc()
	expiresAt := now.Add(tp.ttl)
	tp.keep(ctx, result.Token, expiresAt)

	if tp.durable != nil {
		if err := tp.durable.SaveGatewayToken(ctx, result.Token, expiresAt); err != nil {
			tp.logger.Warn("Durable token cache write failed", zap.Error(err))
		}
	}

	return result.Token, nil
}

// keep caches the token in memory and in the shared cache.
// Caller holds tp.mu.
func (tp *TokenProvider) keep(ctx context.Context, token string, expiresAt time.Time) {
	tp.token = token
	tp.expiresAt = expiresAt

	if tp.shared != nil {
		if err := tp.shared.SetGatewayToken(ctx, token, time.Until(expiresAt)); err != nil {
			tp.logger.Warn("Shared token cache write failed", zap.Error(err))
		}
	}
}
