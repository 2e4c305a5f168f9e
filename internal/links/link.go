package links

import "time"

// Tier is the policy class of a persistent link.
type Tier string

const (
	TierFree    Tier = "free"
	TierWallet  Tier = "wallet"
	TierPremium Tier = "premium"
	TierNFT     Tier = "nft"
)

// Default tier thresholds and durations.
const (
	DefaultPersistenceThreshold = 1.0
	DefaultPremiumThreshold     = 10.0

	DefaultFreeExpiry    = 24 * time.Hour
	DefaultWalletExpiry  = 7 * 24 * time.Hour
	DefaultPremiumExpiry = 30 * 24 * time.Hour
)

// KeepAlive describes a link's keep-alive configuration.
type KeepAlive struct {
	Enabled    bool      `json:"enabled"`
	Conditions []string  `json:"conditions,omitempty"`
	LastCheck  time.Time `json:"lastCheck,omitempty"`
}

// Link is the persistent-link tuple.
type Link struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"sessionId"`
	WalletAddress  string     `json:"walletAddress,omitempty"`
	Tier           Tier       `json:"tier"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"` // nil iff Tier == TierNFT
	ActivityCount  int        `json:"activityCount"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	KeepAlive      KeepAlive  `json:"keepAlive"`

	// RegenerationCount increments on every regenerate call.
	RegenerationCount int `json:"regenerationCount"`
	// Metadata is an opaque caller-supplied bag, carried over unchanged on
	// regeneration; nothing in this package sets or merges it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// expiryFor returns the default expiry duration for tier, from now. NFT
// links never expire.
func expiryFor(tier Tier, thresholds Thresholds) (time.Time, bool) {
	switch tier {
	case TierNFT:
		return time.Time{}, false
	case TierPremium:
		return time.Now().Add(thresholds.PremiumExpiry), true
	case TierWallet:
		return time.Now().Add(thresholds.WalletExpiry), true
	default:
		return time.Now().Add(thresholds.FreeExpiry), true
	}
}

// Thresholds bundles the tunable constants of tier
// assignment and expiry policy.
type Thresholds struct {
	PersistenceThreshold float64
	PremiumThreshold     float64
	FreeExpiry           time.Duration
	WalletExpiry         time.Duration
	PremiumExpiry        time.Duration
}

// DefaultThresholds returns the default tier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PersistenceThreshold: DefaultPersistenceThreshold,
		PremiumThreshold:     DefaultPremiumThreshold,
		FreeExpiry:           DefaultFreeExpiry,
		WalletExpiry:         DefaultWalletExpiry,
		PremiumExpiry:        DefaultPremiumExpiry,
	}
}

// AssignTier implements the tier-assignment rule. hasNFT
// reports whether address already owns an NFT link (a lookup the caller
// performs against the store, since tier assignment itself has no store
// access).
func AssignTier(hasNFT bool, balance float64, thresholds Thresholds) Tier {
	switch {
	case hasNFT:
		return TierNFT
	case balance >= thresholds.PremiumThreshold:
		return TierPremium
	case balance >= thresholds.PersistenceThreshold:
		return TierWallet
	default:
		return TierFree
	}
}
