package links

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meshsig/meshsig/internal/signaling"
	"github.com/meshsig/meshsig/internal/wallet"
)

// SessionLookup is the subset of *signaling.Registry the overlay needs:
// whether a session currently has a host attached. A narrow interface
// keeps links from depending on anything but that one fact.
type SessionLookup interface {
	Lookup(sessionID string) (signaling.Snapshot, bool)
}

// Manager implements the create/regenerate/keep-alive operations over a
// Store, a wallet balance cache, and a session registry it only ever
// reads from.
type Manager struct {
	store      *Store
	balances   *wallet.Cache
	sessions   SessionLookup
	thresholds Thresholds
	logger     *slog.Logger

	notifSeq atomic.Uint64
}

// NewManager builds a Manager. thresholds may be the zero value, in which
// case DefaultThresholds is used.
func NewManager(store *Store, balances *wallet.Cache, sessions SessionLookup, thresholds Thresholds, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Manager{
		store:      store,
		balances:   balances,
		sessions:   sessions,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "links_manager")),
	}
}

func mintLinkID() string {
	var raw [5]byte
	_, _ = rand.Read(raw[:])
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw[:])
}

// Create creates a new link, or regenerates an existing one if customID
// already exists (the create-or-regenerate rule).
// A regeneration keeps createdAt, walletAddress, metadata and the activity
// fields, increments regenerationCount, re-resolves tier and expiry (NFT
// links keep theirs), and replaces sessionID when a non-empty one is given.
func (m *Manager) Create(ctx context.Context, customID, sessionID, walletAddress string) (Link, error) {
	id := customID
	if id == "" {
		id = mintLinkID()
	}

	existing, isNFT, err := m.store.Get(id)
	if err == nil {
		return m.regenerate(ctx, existing, isNFT, sessionID)
	}

	tier, expiresAt := m.resolveTier(ctx, id, walletAddress)
	link := Link{
		ID:             id,
		SessionID:      sessionID,
		WalletAddress:  walletAddress,
		Tier:           tier,
		CreatedAt:      time.Now(),
		ExpiresAt:      expiresAt,
		LastActivityAt: time.Now(),
	}
	if err := m.store.PutLink(link); err != nil {
		return Link{}, fmt.Errorf("links: create: %w", err)
	}
	return link, nil
}

// resolveTier assigns a tier for walletAddress, looking up whether it
// already owns an NFT link distinct from id.
func (m *Manager) resolveTier(ctx context.Context, id, walletAddress string) (Tier, *time.Time) {
	if walletAddress == "" {
		exp, _ := expiryFor(TierFree, m.thresholds)
		return TierFree, &exp
	}

	hasNFT := m.ownsNFT(walletAddress, id)
	balance := m.balances.Balance(ctx, walletAddress)
	tier := AssignTier(hasNFT, balance, m.thresholds)

	exp, has := expiryFor(tier, m.thresholds)
	if !has {
		return tier, nil
	}
	return tier, &exp
}

// ownsNFT reports whether walletAddress already has an NFT link other
// than excludeID. NFT links live under a separate key prefix once
// promoted, so this has to go through ListNFTLinksByWallet rather than
// the regular-link listing.
func (m *Manager) ownsNFT(walletAddress, excludeID string) bool {
	nftLinks, err := m.store.ListNFTLinksByWallet(walletAddress)
	if err != nil {
		m.logger.Warn("list nft links for wallet lookup", slog.Any("error", err))
		return false
	}
	for _, l := range nftLinks {
		if l.ID != excludeID {
			return true
		}
	}
	return false
}

// Regenerate re-evaluates tier and expiry for an existing link, preserving
// createdAt and incrementing regenerationCount.
func (m *Manager) Regenerate(ctx context.Context, id string) (Link, error) {
	existing, isNFT, err := m.store.Get(id)
	if err != nil {
		return Link{}, err
	}
	return m.regenerate(ctx, existing, isNFT, existing.SessionID)
}

func (m *Manager) regenerate(ctx context.Context, existing Link, wasNFT bool, sessionID string) (Link, error) {
	if sessionID != "" {
		existing.SessionID = sessionID
	}

	if !wasNFT {
		tier, expiresAt := m.resolveTier(ctx, existing.ID, existing.WalletAddress)
		existing.Tier = tier
		existing.ExpiresAt = expiresAt
	}
	existing.RegenerationCount++

	if wasNFT {
		if err := m.store.PutNFTLink(existing); err != nil {
			return Link{}, fmt.Errorf("links: regenerate nft: %w", err)
		}
		return existing, nil
	}
	if err := m.store.PutLink(existing); err != nil {
		return Link{}, fmt.Errorf("links: regenerate: %w", err)
	}
	return existing, nil
}

// KeepAlive extends id's expiry if its tier is keep-alive eligible
// (anything but free, and never nft, which has no expiry to extend).
// reason records which of the three triggers applied.
func (m *Manager) KeepAlive(ctx context.Context, id string, reason string) (Link, error) {
	link, isNFT, err := m.store.Get(id)
	if err != nil {
		return Link{}, err
	}
	if isNFT || link.Tier == TierFree {
		return link, nil
	}

	if reason == "balance_recheck" && link.WalletAddress != "" {
		m.balances.Invalidate(link.WalletAddress)
	}

	exp, has := expiryFor(link.Tier, m.thresholds)
	if has {
		link.ExpiresAt = &exp
	}
	link.LastActivityAt = time.Now()
	link.ActivityCount++
	link.KeepAlive.LastCheck = time.Now()

	if err := m.store.PutLink(link); err != nil {
		return Link{}, fmt.Errorf("links: keepalive: %w", err)
	}
	m.notify("keepalive", id, reason)
	return link, nil
}

// RecordActivity bumps a link's activity counters without touching its
// expiry. The auto-regeneration loop does not read these counters; it
// decides on expiry and host presence alone.
func (m *Manager) RecordActivity(id string) error {
	link, isNFT, err := m.store.Get(id)
	if err != nil {
		return err
	}
	link.ActivityCount++
	link.LastActivityAt = time.Now()
	if isNFT {
		return m.store.PutNFTLink(link)
	}
	return m.store.PutLink(link)
}

// Reconcile re-validates every wallet-linked regular link's tier against a
// fresh balance read, so a restart does not wait a full auto-regeneration
// tick to catch a balance change that happened while the daemon was down.
// NFT links are skipped: promotion is one-way and carries no expiry to
// reconcile. It returns the number of links whose tier changed.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	walletLinks, err := m.store.ListWalletLinks()
	if err != nil {
		return 0, fmt.Errorf("links: reconcile: list wallet links: %w", err)
	}

	changed := 0
	for _, link := range walletLinks {
		m.balances.Invalidate(link.WalletAddress)
		tier, expiresAt := m.resolveTier(ctx, link.ID, link.WalletAddress)
		if tier == link.Tier {
			continue
		}

		previous := link.Tier
		link.Tier = tier
		link.ExpiresAt = expiresAt
		if err := m.store.PutLink(link); err != nil {
			m.logger.Warn("reconcile: persist tier change",
				slog.Any("error", err), slog.String("link_id", link.ID))
			continue
		}

		m.logger.Info("reconciled link tier on startup",
			slog.String("link_id", link.ID), slog.String("from", string(previous)), slog.String("to", string(tier)))
		m.notify("tier_reconciled", link.ID, "startup_reconciliation")
		changed++
	}
	return changed, nil
}

// notify appends a notification and logs, rather than fails, a delivery
// error -- a notification failure must never fail
// the operation that triggered it.
func (m *Manager) notify(kind, linkID, reason string) {
	notif := Notification{Kind: kind, LinkID: linkID, Reason: reason, Timestamp: time.Now().Unix()}
	if err := m.store.AppendNotification(m.notifSeq.Add(1), notif); err != nil {
		m.logger.Error("append notification failed", slog.Any("error", err), slog.String("link_id", linkID))
	}
}
