package stats

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/answer"
)

type Cache interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type Source interface {
	TenantStats(ctx context.Context, tenantID string) (*answer.TenantStats, error)
}

// Service serves tenant usage stats from cache, falling back to the API.
// Entries are per caller identity; anonymous reads are never cached and never
// borrow the server's own token. A broken cache degrades to uncached reads.
type Service struct {
	cache Cache
	src   Source
	ttl   time.Duration
	key   func(tenantID string) string
}

func NewService(cache Cache, src Source, ttl time.Duration, key func(string) string) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{cache: cache, src: src, ttl: ttl, key: key}
}

func (s *Service) Get(ctx context.Context, tenantID string) (st *answer.TenantStats, cached bool, err error) {
	tenantID = strings.TrimSpace(tenantID)
	ctx = answer.CallerOnly(ctx)

	caller := answer.IdentityToken(ctx)
	if caller == "" {
		st, err = s.src.TenantStats(ctx, tenantID)
		if err != nil {
			return nil, false, err
		}
		return st, false, nil
	}
	key := s.key(tenantID) + ":" + callerHash(caller)

	if b, ok, err := s.cache.Lookup(ctx, key); err != nil {
		slog.WarnContext(ctx, "stats cache read failed", "tenant_id", tenantID, "err", err)
	} else if ok {
		var hit answer.TenantStats
		if err := json.Unmarshal(b, &hit); err == nil {
			return &hit, true, nil
		}
		slog.WarnContext(ctx, "stats cache entry corrupt", "tenant_id", tenantID)
	}

	st, err = s.src.TenantStats(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}

	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			slog.WarnContext(ctx, "stats cache write failed", "tenant_id", tenantID, "err", err)
		}
	}
	return st, false, nil
}

func callerHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:12])
}
