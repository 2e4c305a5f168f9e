package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/meshsig/meshsig/internal/wallet"
)

func TestCacheServesFreshValueFromOracle(t *testing.T) {
	t.Parallel()

	oracle := wallet.NewStaticOracle(map[string]float64{"addr-1": 42})
	cache := wallet.NewCache(oracle, 16, time.Minute, nil)

	if got := cache.Balance(context.Background(), "addr-1"); got != 42 {
		t.Fatalf("Balance = %v, want 42", got)
	}
}

// flakyOracle answers the first call and fails every call after, to
// exercise Cache's fallback-to-last-known-value path once the TTL lapses.
type flakyOracle struct {
	calls   int
	balance float64
}

func (f *flakyOracle) Balance(_ context.Context, _ string) (float64, error) {
	f.calls++
	if f.calls == 1 {
		return f.balance, nil
	}
	return 0, wallet.ErrUnknownAddress
}

func TestCacheFallsBackToLastKnownOnFailure(t *testing.T) {
	t.Parallel()

	oracle := &flakyOracle{balance: 10}
	cache := wallet.NewCache(oracle, 16, time.Millisecond, nil)

	if got := cache.Balance(context.Background(), "addr-1"); got != 10 {
		t.Fatalf("Balance = %v, want 10", got)
	}

	time.Sleep(5 * time.Millisecond) // let the TTL lapse

	if got := cache.Balance(context.Background(), "addr-1"); got != 10 {
		t.Fatalf("Balance after oracle failure = %v, want fallback to last known 10", got)
	}
	if oracle.calls < 2 {
		t.Fatal("expected the stale entry to force a second oracle call")
	}
}

func TestCacheUnknownAddressWithNoHistoryReturnsZero(t *testing.T) {
	t.Parallel()

	oracle := wallet.NewStaticOracle(nil)
	cache := wallet.NewCache(oracle, 16, time.Minute, nil)

	if got := cache.Balance(context.Background(), "ghost"); got != 0 {
		t.Fatalf("Balance = %v, want 0", got)
	}
}

type stubCacheMetrics struct {
	failures int
}

func (s *stubCacheMetrics) IncWalletOracleFailures() { s.failures++ }

func TestCacheReportsOracleFailureMetric(t *testing.T) {
	t.Parallel()

	metrics := &stubCacheMetrics{}
	oracle := wallet.NewStaticOracle(nil)
	cache := wallet.NewCache(oracle, 16, time.Minute, nil, wallet.WithCacheMetrics(metrics))

	cache.Balance(context.Background(), "ghost")

	if metrics.failures != 1 {
		t.Fatalf("failures = %d, want 1", metrics.failures)
	}
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	oracle := wallet.NewStaticOracle(map[string]float64{"addr-1": 5})
	cache := wallet.NewCache(oracle, 16, time.Hour, nil)

	if got := cache.Balance(context.Background(), "addr-1"); got != 5 {
		t.Fatalf("Balance = %v, want 5", got)
	}

	oracle.Set("addr-1", 99)
	cache.Invalidate("addr-1")

	if got := cache.Balance(context.Background(), "addr-1"); got != 99 {
		t.Fatalf("Balance after Invalidate = %v, want 99", got)
	}
}
