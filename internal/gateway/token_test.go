package gateway

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGranter struct {
	calls int
}

func (f *fakeGranter) GrantToken(context.Context) (*TokenResult, error) {
	f.calls++
	return &TokenResult{Token: "granted", ExpiresIn: 3600}, nil
}

type fakeShared struct {
	token string
}

func (f *fakeShared) GetGatewayToken(context.Context) (string, error) {
	return f.token, nil
}

func (f *fakeShared) SetGatewayToken(_ context.Context, token string, _ time.Duration) error {
	f.token = token
	return nil
}

type fakeDurable struct {
	row *models.GatewayToken
}

func (f *fakeDurable) GetGatewayToken(context.Context) (*models.GatewayToken, error) {
	if f.row == nil {
		return nil, store.ErrNotFound
	}
	return f.row, nil
}

func (f *fakeDurable) SaveGatewayToken(_ context.Context, token string, expiresAt time.Time) error {
	f.row = &models.GatewayToken{Token: token, ExpiresAt: expiresAt}
	return nil
}

func TestTokenGrantsAndCaches(t *testing.T) {
	granter := &fakeGranter{}
	shared := &fakeShared{}
	durable := &fakeDurable{}
	tp := NewTokenProvider(granter, shared, durable, 50*time.Minute)

	token, err := tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted", token)
	assert.Equal(t, 1, granter.calls)

	// the fresh token landed in both caches
	assert.Equal(t, "granted", shared.token)
	require.NotNil(t, durable.row)
	assert.Equal(t, "granted", durable.row.Token)

	// subsequent calls are served from memory
	token, err = tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted", token)
	assert.Equal(t, 1, granter.calls)
}

func TestTokenPrefersSharedCache(t *testing.T) {
	granter := &fakeGranter{}
	tp := NewTokenProvider(granter, &fakeShared{token: "from-redis"}, &fakeDurable{}, 50*time.Minute)

	token, err := tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-redis", token)
	assert.Zero(t, granter.calls)
}

func TestTokenFallsBackToDurableRow(t *testing.T) {
	granter := &fakeGranter{}
	shared := &fakeShared{}
	durable := &fakeDurable{row: &models.GatewayToken{
		Token:     "from-db",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}}
	tp := NewTokenProvider(granter, shared, durable, 50*time.Minute)

	token, err := tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-db", token)
	assert.Zero(t, granter.calls)

	// the durable hit repopulates the shared cache
	assert.Equal(t, "from-db", shared.token)
}

func TestTokenIgnoresExpiredDurableRow(t *testing.T) {
	granter := &fakeGranter{}
	durable := &fakeDurable{row: &models.GatewayToken{
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	tp := NewTokenProvider(granter, &fakeShared{}, durable, 50*time.Minute)

	token, err := tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted", token)
	assert.Equal(t, 1, granter.calls)
}

func TestTokenWorksWithoutCaches(t *testing.T) {
	granter := &fakeGranter{}
	tp := NewTokenProvider(granter, nil, nil, 50*time.Minute)

	token, err := tp.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted", token)
}
