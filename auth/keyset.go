package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultKeySetTTL        = 1 * time.Hour
	defaultFetchTimeout     = 5 * time.Second
	defaultMaxFetchAttempts = 3
	defaultInitialBackoff   = 200 * time.Millisecond
	defaultMaxBackoff       = 2 * time.Second

	// maxJWKSBytes bounds the size of a JWKS document
	maxJWKSBytes = 1 << 20
)

// KeySetConfig holds configuration for a KeySet
type KeySetConfig struct {
	// URL is the JWKS endpoint
	URL string

	// HTTPClient is used for fetching the key set (optional)
	HTTPClient *http.Client

	// TTL is how long a fetched key set is trusted before it is refreshed
	TTL time.Duration

	// MinRefreshInterval throttles refreshes caused by unknown key ids.
	// Zero disables the throttle.
	MinRefreshInterval time.Duration

	// FetchTimeout bounds a single fetch attempt
	FetchTimeout time.Duration

	// MaxFetchAttempts bounds the attempts of a single refresh
	MaxFetchAttempts uint

	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration

	// OnRefresh is called after every refresh with its outcome (optional)
	OnRefresh func(err error)
}

// KeySetStats describes the cache state for readiness checks
type KeySetStats struct {
	Keys        int       `json:"keys"`
	FetchedAt   time.Time `json:"fetched_at"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
}

// KeySet is a cache of the remote signing keys. Reads are concurrent; a miss
// triggers a refresh that is shared by every concurrent caller.
type KeySet struct {
	url            string
	client         *http.Client
	ttl            time.Duration
	minRefresh     time.Duration
	fetchTimeout   time.Duration
	maxAttempts    uint
	initialBackoff time.Duration
	onRefresh      func(err error)
	logger         *zap.Logger

	mu          sync.RWMutex
	keys        jwk.Set
	fetchedAt   time.Time
	lastAttempt time.Time
	lastErr     error

	group singleflight.Group
	now   func() time.Time
}

// NewKeySet creates a new KeySet. No request is made until the first lookup
// or an explicit Prime.
func NewKeySet(config KeySetConfig, logger *zap.Logger) (*KeySet, error) {
	if config.URL == "" {
		return nil, ErrMissingJWKSURL
	}
	if config.TTL <= 0 {
		config.TTL = defaultKeySetTTL
	}
	if config.MinRefreshInterval < 0 {
		config.MinRefreshInterval = 0
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaultFetchTimeout
	}
	if config.MaxFetchAttempts == 0 {
		config.MaxFetchAttempts = defaultMaxFetchAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeySet{
		url:            config.URL,
		client:         config.HTTPClient,
		ttl:            config.TTL,
		minRefresh:     config.MinRefreshInterval,
		fetchTimeout:   config.FetchTimeout,
		maxAttempts:    config.MaxFetchAttempts,
		initialBackoff: config.InitialBackoff,
		onRefresh:      config.OnRefresh,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Lookup returns the public key for the given key id. The returned key is an
// *rsa.PublicKey or *ecdsa.PublicKey depending on the JWK type.
func (k *KeySet) Lookup(ctx context.Context, kid string) (any, error) {
	key, found, seen, err := k.cached(kid)
	if err != nil {
		return nil, err
	}
	if found {
		return key, nil
	}

	if !k.shouldRefresh(seen) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	if err := k.refresh(ctx, seen); err != nil {
		return nil, err
	}

	key, found, _, err = k.cached(kid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Prime fetches the key set eagerly, e.g. at startup
func (k *KeySet) Prime(ctx context.Context) error {
	k.mu.RLock()
	seen := k.fetchedAt
	k.mu.RUnlock()
	return k.refresh(ctx, seen)
}

// Stats returns the current cache state
func (k *KeySet) Stats() KeySetStats {
	k.mu.RLock()
	defer k.mu.RUnlock()

	stats := KeySetStats{
		FetchedAt:   k.fetchedAt,
		LastAttempt: k.lastAttempt,
	}
	if k.keys != nil {
		stats.Keys = k.keys.Len()
	}
	if k.lastErr != nil {
		stats.LastError = k.lastErr.Error()
	}
	return stats
}

// cached looks the key up in the current set. seen is the fetch time of the
// set that was consulted; a set older than the TTL is treated as absent.
func (k *KeySet) cached(kid string) (key any, found bool, seen time.Time, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	seen = k.fetchedAt
	if k.keys == nil || k.now().Sub(k.fetchedAt) > k.ttl {
		return nil, false, seen, nil
	}

	jwkKey, ok := k.keys.LookupKeyID(kid)
	if !ok {
		return nil, false, seen, nil
	}

	var raw any
	if err := jwk.Export(jwkKey, &raw); err != nil {
		return nil, false, seen, fmt.Errorf("failed to export key %s: %w", kid, err)
	}
	return raw, true, seen, nil
}

// shouldRefresh decides whether a miss may hit the endpoint. A fresh set is
// refetched for an unknown kid only after MinRefreshInterval has passed.
func (k *KeySet) shouldRefresh(seen time.Time) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.keys == nil || !k.fetchedAt.Equal(seen) {
		return true
	}
	age := k.now().Sub(k.fetchedAt)
	return age > k.ttl || age >= k.minRefresh
}

// refresh fetches the key set once for all concurrent callers. seen is the
// fetch time the caller observed; if a newer set already landed, no request
// is made. The shared fetch is detached from the caller that started it and
// bounded by refreshBudget, so each waiter stops only on its own context.
func (k *KeySet) refresh(ctx context.Context, seen time.Time) error {
	ch := k.group.DoChan("jwks", func() (any, error) {
		k.mu.RLock()
		fresher := k.keys != nil && k.fetchedAt.After(seen)
		k.mu.RUnlock()
		if fresher {
			return nil, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.refreshBudget())
		defer cancel()
		return nil, k.fetchWithRetry(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrJWKSFetchFailed, ctx.Err())
	}
}

// refreshBudget is the longest a shared refresh may run: every attempt at
// its timeout plus the backoff ceiling between attempts.
func (k *KeySet) refreshBudget() time.Duration {
	attempts := time.Duration(k.maxAttempts)
	return k.fetchTimeout*attempts + defaultMaxBackoff*attempts
}

func (k *KeySet) fetchWithRetry(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = k.initialBackoff
	expBackoff.MaxInterval = defaultMaxBackoff
	expBackoff.Reset()

	attempt := 0
	operation := func() (jwk.Set, error) {
		attempt++
		return k.fetch(ctx)
	}

	set, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(k.maxAttempts),
		backoff.WithNotify(func(err error, delay time.Duration) {
			k.logger.Debug("retrying JWKS fetch",
				zap.String("url", k.url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}),
	)

	k.mu.Lock()
	k.lastAttempt = k.now()
	if err != nil {
		k.lastErr = err
	} else {
		k.keys = set
		k.fetchedAt = k.lastAttempt
		k.lastErr = nil
	}
	k.mu.Unlock()

	if k.onRefresh != nil {
		k.onRefresh(err)
	}

	if err != nil {
		k.logger.Warn("JWKS refresh failed",
			zap.String("url", k.url),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	k.logger.Debug("JWKS refreshed",
		zap.String("url", k.url),
		zap.Int("keys", set.Len()))
	return nil
}

// fetch performs a single request to the JWKS endpoint
func (k *KeySet) fetch(ctx context.Context) (jwk.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, k.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode JWKS: %w", err))
	}
	return set, nil
}
