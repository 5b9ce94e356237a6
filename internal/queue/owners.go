package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"thirdcoast.systems/relay/internal/store"
)

// OwnerStats is what an owner has used today against their tier's limit,
// plus their job history.
type OwnerStats struct {
	OwnerID string     `json:"owner_id"`
	Tier    store.Tier `json:"tier"`
	// DailyLimit is 0 when the tier is unlimited.
	DailyLimit int `json:"daily_limit"`
	UsedToday  int `json:"used_today"`
	store.OwnerUsage
}

// tier returns the owner's tier and its daily acquisition limit. Owners never
// given a tier are free.
func (m *Manager) tier(ctx context.Context, ownerID string) (store.Tier, int, error) {
	tier, err := m.deps.Store.GetOwnerTier(ctx, ownerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		tier = store.TierFree
	case err != nil:
		return "", 0, err
	}
	if tier == store.TierPremium {
		return tier, m.opts.PremiumQuota, nil
	}
	return store.TierFree, m.opts.DailyQuota, nil
}

func (m *Manager) SetTier(ctx context.Context, ownerID string, tier store.Tier) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrOwnerRequired
	}
	if _, err := store.ParseTier(string(tier)); err != nil {
		return err
	}
	if err := m.deps.Store.SetOwnerTier(ctx, ownerID, tier); err != nil {
		return err
	}
	slog.Info("Owner tier set", "owner_id", ownerID, "tier", tier)
	return nil
}

func (m *Manager) Stats(ctx context.Context, ownerID string) (*OwnerStats, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	tier, limit, err := m.tier(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	used, err := m.deps.Store.QuotaUsed(ctx, ownerID, m.now())
	if err != nil {
		return nil, err
	}
	usage, err := m.deps.Store.OwnerUsage(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &OwnerStats{OwnerID: ownerID, Tier: tier, DailyLimit: limit, UsedToday: used, OwnerUsage: *usage}, nil
}
