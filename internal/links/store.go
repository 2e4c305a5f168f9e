package links

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Key prefixes inside the single Badger instance that stand in for the
// two logical stores: regular links ("link:") and NFT
// links ("nft:"). Using prefixes over one database, rather than two
// separate databases, is what makes the promote-atomically invariant a
// single Badger transaction instead of a cross-database coordination
// problem.
const (
	prefixLink  = "link:"
	prefixNFT   = "nft:"
	prefixNotif = "notif:"

	// maxNotifications is the bounded FIFO cap on persisted notifications.
	maxNotifications = 100
)

var (
	// ErrNotFound indicates linkId exists in neither store.
	ErrNotFound = errors.New("links: not found")
	// ErrAlreadyNFT indicates a promote was attempted on a link already
	// in the NFT store.
	ErrAlreadyNFT = errors.New("links: already an nft link")
)

// Notification is an auto-regeneration or lifecycle event recorded for
// external consumers.
type Notification struct {
	Kind      string `json:"kind"`
	LinkID    string `json:"linkId"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Store is the encrypted-at-rest, Badger-backed persistence layer for
// persistent links. It is the durability half: reads
// and writes go straight through to Badger on every mutating call, so the
// store is always the source of truth across restarts.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Options configures Open.
type Options struct {
	// Path is the on-disk directory for the Badger database. Ignored if
	// InMemory is true.
	Path string
	// InMemory runs Badger with no on-disk files, for tests.
	InMemory bool
	// EncryptionKey, when non-empty, turns on Badger's built-in
	// encryption-at-rest for all values written through this Store,
	// satisfying the durability requirement without a
	// hand-rolled AEAD layer.
	EncryptionKey []byte
}

// Open opens (or creates) the Badger database described by opts.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	if len(opts.EncryptionKey) > 0 {
		bopts = bopts.WithEncryptionKey(opts.EncryptionKey).WithIndexCacheSize(64 << 20)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("links: open badger: %w", err)
	}
	return &Store{db: db, logger: slog.Default().With(slog.String("component", "links_store"))}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func keyLink(id string) []byte { return []byte(prefixLink + id) }
func keyNFT(id string) []byte  { return []byte(prefixNFT + id) }

// PutLink creates or overwrites a regular (non-NFT) link.
func (s *Store) PutLink(link Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("links: encode link: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyLink(link.ID), data)
	})
}

// PutNFTLink creates or overwrites an NFT link.
func (s *Store) PutNFTLink(link Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("links: encode link: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyNFT(link.ID), data)
	})
}

// Get returns the link for id, wherever it lives, and which store it was
// found in.
func (s *Store) Get(id string) (link Link, isNFT bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		if item, getErr := txn.Get(keyNFT(id)); getErr == nil {
			isNFT = true
			return item.Value(func(val []byte) error { return json.Unmarshal(val, &link) })
		} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		item, getErr := txn.Get(keyLink(id))
		if errors.Is(getErr, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &link) })
	})
	return link, isNFT, err
}

// Delete removes id from whichever store contains it. A no-op, not an
// error, if id is in neither.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_ = txn.Delete(keyLink(id))
		_ = txn.Delete(keyNFT(id))
		return nil
	})
}

// Promote atomically moves a regular link to the NFT store: the regular
// entry is removed iff the NFT entry is created, in one Badger
// transaction, keeping promotion atomic.
func (s *Store) Promote(id string) (Link, error) {
	var promoted Link
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLink(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if _, err := txn.Get(keyNFT(id)); err == nil {
				return ErrAlreadyNFT
			}
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &promoted) }); err != nil {
			return err
		}

		promoted.Tier = TierNFT
		promoted.ExpiresAt = nil

		data, err := json.Marshal(promoted)
		if err != nil {
			return err
		}
		if err := txn.Set(keyNFT(id), data); err != nil {
			return err
		}
		return txn.Delete(keyLink(id))
	})
	return promoted, err
}

// ListWalletLinks returns every link in the regular store that has a
// nonempty WalletAddress, for the auto-regeneration loop's sweep.
func (s *Store) ListWalletLinks() ([]Link, error) {
	var out []Link
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixLink)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var link Link
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &link) })
			if err != nil {
				return err
			}
			if link.WalletAddress != "" {
				out = append(out, link)
			}
		}
		return nil
	})
	return out, err
}

// ListNFTLinksByWallet returns every NFT-tier link owned by walletAddress.
// NFT links live exclusively under the nft: prefix once Promote has moved
// them there, so this is the only path that can answer "does this wallet
// already hold an NFT link" -- ListWalletLinks only ever sees link:.
func (s *Store) ListNFTLinksByWallet(walletAddress string) ([]Link, error) {
	var out []Link
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNFT)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var link Link
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &link) })
			if err != nil {
				return err
			}
			if link.WalletAddress == walletAddress {
				out = append(out, link)
			}
		}
		return nil
	})
	return out, err
}

// CountByTier scans both logical stores and tallies the current link
// population per tier, for the links-by-tier gauge.
func (s *Store) CountByTier() (map[Tier]int, error) {
	counts := make(map[Tier]int)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{[]byte(prefixLink), []byte(prefixNFT)} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var link Link
				err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &link) })
				if err != nil {
					it.Close()
					return err
				}
				counts[link.Tier]++
			}
			it.Close()
		}
		return nil
	})
	return counts, err
}

// AppendNotification records notif, trimming the oldest entry once the
// bounded FIFO exceeds maxNotifications. Failures are the caller's to log
// and ignore: a failed notification append must never fail the
// delivery -- AppendNotification itself still returns the error so the
// caller can decide.
func (s *Store) AppendNotification(seq uint64, notif Notification) error {
	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("links: encode notification: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(fmt.Sprintf("%s%020d", prefixNotif, seq)), data); err != nil {
			return err
		}
		return trimNotifications(txn)
	})
}

// trimNotifications deletes the oldest notification keys once the FIFO
// exceeds maxNotifications. Called with an already-open write txn.
func trimNotifications(txn *badger.Txn) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefixNotif)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		keys = append(keys, append([]byte{}, it.Item().Key()...))
	}
	if len(keys) <= maxNotifications {
		return nil
	}
	for _, k := range keys[:len(keys)-maxNotifications] {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ListNotifications returns every currently retained notification, oldest
// first.
func (s *Store) ListNotifications() ([]Notification, error) {
	var out []Notification
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNotif)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var notif Notification
			err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &notif) })
			if err != nil {
				return err
			}
			out = append(out, notif)
		}
		return nil
	})
	return out, err
}
