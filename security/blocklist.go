package security

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/models"
)

const (
	blockedKeyPrefix = "security:blocked_ip:"

	DefaultLocalTTL     = 30 * time.Second
	defaultLocalEntries = 10000
)

// BlockStore is the authoritative blocked-IP table.
type BlockStore interface {
	BlockIP(ctx context.Context, b *models.BlockedIP) error
	UnblockIP(ctx context.Context, ip string) (bool, error)
	GetBlockedIP(ctx context.Context, ip string) (*models.BlockedIP, error)
	ActiveBlockedIPs(ctx context.Context) ([]models.BlockedIP, error)
}

// Blocklist answers "is this IP blocked" from three layers: a short-lived
// in-process LRU, the shared cache mirror and finally the database. Only the
// database is authoritative; the local layer may lag an unblock on another
// instance by up to its TTL.
type Blocklist struct {
	store  BlockStore
	cache  cache.Store
	local  *lru.LRU[string, bool]
	logger *zap.Logger
	now    func() time.Time
}

func NewBlocklist(store BlockStore, shared cache.Store, localTTL time.Duration, logger *zap.Logger) *Blocklist {
	if localTTL <= 0 {
		localTTL = DefaultLocalTTL
	}
	return &Blocklist{
		store:  store,
		cache:  shared,
		local:  lru.NewLRU[string, bool](defaultLocalEntries, nil, localTTL),
		logger: logger,
		now:    time.Now,
	}
}

func blockedKey(ip string) string {
	return blockedKeyPrefix + ip
}

// IsBlocked reports whether ip currently has an active block.
func (b *Blocklist) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	if blocked, ok := b.local.Get(ip); ok {
		return blocked, nil
	}

	if _, ok, err := b.cache.Get(ctx, blockedKey(ip)); err != nil {
		b.logger.Warn("blocked ip cache lookup failed", zap.String("ip", ip), zap.Error(err))
	} else if ok {
		b.local.Add(ip, true)
		return true, nil
	}

	entry, err := b.store.GetBlockedIP(ctx, ip)
	if err != nil {
		return false, err
	}
	if entry == nil {
		b.local.Add(ip, false)
		return false, nil
	}
	b.mirror(ctx, *entry)
	return true, nil
}

// Block records a block for ip. A zero duration blocks until removed.
func (b *Blocklist) Block(ctx context.Context, ip, reason string, duration time.Duration) (*models.BlockedIP, error) {
	entry := &models.BlockedIP{IP: ip, Reason: reason}
	if duration > 0 {
		expires := b.now().UTC().Add(duration)
		entry.ExpiresAt = &expires
	}
	if err := b.store.BlockIP(ctx, entry); err != nil {
		return nil, err
	}
	b.mirror(ctx, *entry)
	b.logger.Info("ip blocked", zap.String("ip", ip), zap.String("reason", reason), zap.Duration("duration", duration))
	return entry, nil
}

// Unblock removes the block for ip and reports whether one existed.
func (b *Blocklist) Unblock(ctx context.Context, ip string) (bool, error) {
	removed, err := b.store.UnblockIP(ctx, ip)
	if err != nil {
		return false, err
	}
	if err := b.cache.Del(ctx, blockedKey(ip)); err != nil {
		b.logger.Warn("failed to clear blocked ip mirror", zap.String("ip", ip), zap.Error(err))
	}
	b.local.Remove(ip)
	return removed, nil
}

// Warm loads every active block into the shared and local caches. It is run
// at startup so a fresh instance does not hit the database per request.
func (b *Blocklist) Warm(ctx context.Context) (int, error) {
	entries, err := b.store.ActiveBlockedIPs(ctx)
	if err != nil {
		return 0, fmt.Errorf("warm blocklist: %w", err)
	}
	for _, e := range entries {
		b.mirror(ctx, e)
	}
	return len(entries), nil
}

func (b *Blocklist) mirror(ctx context.Context, e models.BlockedIP) {
	var ttl time.Duration
	if e.ExpiresAt != nil {
		ttl = e.ExpiresAt.Sub(b.now())
		if ttl <= 0 {
			return
		}
	}
	b.local.Add(e.IP, true)
	if err := b.cache.Set(ctx, blockedKey(e.IP), e.Reason, ttl); err != nil {
		b.logger.Warn("failed to mirror blocked ip", zap.String("ip", e.IP), zap.Error(err))
	}
}
