package revocation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/nats-io/nats.go"

	"github.com/dataparency-dev/delegation-core/internal/logging"
)

// DistributedConfig configures a gossip-replicated revocation store.
type DistributedConfig struct {
	SelfID       string        // this node's identity; also its NATS subject component
	Conn         *nats.Conn    // an already-connected NATS client
	MaxPeers     int           // 0 means unlimited
	SeenTTL      time.Duration // how long the gossip seen-set remembers an id; 0 uses DefaultSeenTTL
	SyncTimeout  time.Duration // per-peer request timeout for anti-entropy sync; 0 uses DefaultSyncTimeout
	Logger       logging.Logger
}

// DefaultSeenTTL and DefaultSyncTimeout are used when the config leaves
// the corresponding field at its zero value.
const (
	DefaultSeenTTL      = 24 * time.Hour
	DefaultSyncTimeout  = 2 * time.Second
	gossipSubjectPrefix = "revocation.gossip."
	syncSubjectPrefix   = "revocation.sync."
)

// ErrTooManyPeers is returned by AddPeer when MaxPeers would be exceeded.
type ErrTooManyPeers struct{ Max int }

func (e *ErrTooManyPeers) Error() string {
	return fmt.Sprintf("revocation: peer limit %d exceeded", e.Max)
}

// DistributedStore implements the same read interface as LocalStore
// plus peer gossip and anti-entropy sync over NATS core pub/sub.
// Mutation is serialized by a mutex so the seen-set check+insert in
// receiveFromPeer is atomic with respect to concurrent deliveries.
type DistributedStore struct {
	mu          sync.Mutex
	local       *LocalStore
	seen        *cache.Cache
	selfID      string
	conn        *nats.Conn
	peers       map[string]struct{}
	maxPeers    int
	syncTimeout time.Duration
	subscribers []func(Entry)
	gossipSub   *nats.Subscription
	syncSub     *nats.Subscription
	logger      logging.Logger
}

// NewDistributedStore creates a store and subscribes to this node's own
// gossip and sync-request subjects.
func NewDistributedStore(cfg DistributedConfig) (*DistributedStore, error) {
	if cfg.SelfID == "" {
		return nil, fmt.Errorf("revocation: SelfID is required")
	}
	if cfg.Conn == nil {
		return nil, fmt.Errorf("revocation: Conn is required")
	}
	seenTTL := cfg.SeenTTL
	if seenTTL == 0 {
		seenTTL = DefaultSeenTTL
	}
	syncTimeout := cfg.SyncTimeout
	if syncTimeout == 0 {
		syncTimeout = DefaultSyncTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	d := &DistributedStore{
		local:       NewLocalStore(logger),
		seen:        cache.New(seenTTL, seenTTL/2),
		selfID:      cfg.SelfID,
		conn:        cfg.Conn,
		peers:       make(map[string]struct{}),
		maxPeers:    cfg.MaxPeers,
		syncTimeout: syncTimeout,
		logger:      logger,
	}

	gossipSub, err := cfg.Conn.Subscribe(gossipSubjectPrefix+cfg.SelfID, d.onGossip)
	if err != nil {
		return nil, fmt.Errorf("revocation: subscribe gossip: %w", err)
	}
	d.gossipSub = gossipSub

	syncSub, err := cfg.Conn.Subscribe(syncSubjectPrefix+cfg.SelfID, d.onSyncRequest)
	if err != nil {
		gossipSub.Unsubscribe()
		return nil, fmt.Errorf("revocation: subscribe sync: %w", err)
	}
	d.syncSub = syncSub

	return d, nil
}

// AddPeer registers a peer this node gossips to and syncs against.
func (d *DistributedStore) AddPeer(peerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[peerID]; ok {
		return nil
	}
	if d.maxPeers > 0 && len(d.peers) >= d.maxPeers {
		return &ErrTooManyPeers{Max: d.maxPeers}
	}
	d.peers[peerID] = struct{}{}
	return nil
}

// RemovePeer stops gossiping to and syncing against peerID.
func (d *DistributedStore) RemovePeer(peerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, peerID)
}

// Subscribe registers fn to be called with every newly-applied entry,
// whether originated locally, by gossip, or by sync.
func (d *DistributedStore) Subscribe(fn func(Entry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
}

// Revoke verifies entry's signature, applies it locally if new, notifies
// subscribers, then broadcasts to every peer.
func (d *DistributedStore) Revoke(entry Entry) error {
	if !entry.VerifySignature() {
		return fmt.Errorf("revocation: revoke %s: signature does not verify", entry.RevocationID)
	}
	applied := d.applyIfUnseen(entry)
	if applied {
		d.broadcast(entry)
	}
	return nil
}

// IsRevoked, List, GetRevocationIDs, Remove delegate to the local store.
func (d *DistributedStore) IsRevoked(id string) bool          { return d.local.IsRevoked(id) }
func (d *DistributedStore) List() []Entry                     { return d.local.List() }
func (d *DistributedStore) GetRevocationIDs() map[string]bool { return d.local.GetRevocationIDs() }
func (d *DistributedStore) Remove(id string)                  { d.local.Remove(id) }

// applyIfUnseen performs the atomic seen-set check+insert,
// stores the entry (bypassing LocalStore's own duplicate signature
// check since it was already verified), and notifies subscribers.
// Reports whether the entry was newly applied.
func (d *DistributedStore) applyIfUnseen(entry Entry) bool {
	d.mu.Lock()
	if _, seen := d.seen.Get(entry.RevocationID); seen {
		d.mu.Unlock()
		return false
	}
	d.seen.SetDefault(entry.RevocationID, struct{}{})
	subs := append([]func(Entry){}, d.subscribers...)
	d.mu.Unlock()

	d.local.addTrusted(entry)
	for _, fn := range subs {
		fn(entry)
	}
	return true
}

// onGossip handles a gossip delivery from a peer: verify, dedup-apply,
// then re-broadcast so the gossip continues to propagate.
func (d *DistributedStore) onGossip(msg *nats.Msg) {
	var entry Entry
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		d.logger.Printf("revocation: malformed gossip message: %v", err)
		return
	}
	if !entry.VerifySignature() {
		d.logger.Printf("revocation: gossip entry %s failed signature check", entry.RevocationID)
		return
	}
	if d.applyIfUnseen(entry) {
		d.broadcast(entry)
	}
}

// onSyncRequest answers an anti-entropy pull with this node's full
// entry list.
func (d *DistributedStore) onSyncRequest(msg *nats.Msg) {
	data, err := d.local.ToJSON()
	if err != nil {
		d.logger.Printf("revocation: sync response marshal failed: %v", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		d.logger.Printf("revocation: sync response failed: %v", err)
	}
}

// broadcast publishes entry to every known peer. NATS publish is
// fire-and-forget, giving "allSettled" semantics: one peer's transport
// trouble never blocks delivery to another.
func (d *DistributedStore) broadcast(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		d.logger.Printf("revocation: broadcast marshal failed: %v", err)
		return
	}
	d.mu.Lock()
	peers := make([]string, 0, len(d.peers))
	for p := range d.peers {
		peers = append(peers, p)
	}
	d.mu.Unlock()
	for _, p := range peers {
		if err := d.conn.Publish(gossipSubjectPrefix+p, data); err != nil {
			d.logger.Printf("revocation: publish to peer %s failed: %v", p, err)
		}
	}
}

// Sync performs one round of anti-entropy pull against every peer:
// request each peer's full entry list and ingest any unseen,
// signature-valid entries. Invalid-signature entries are skipped
// silently (logged, not raised).
func (d *DistributedStore) Sync(ctx context.Context) {
	d.mu.Lock()
	peers := make([]string, 0, len(d.peers))
	for p := range d.peers {
		peers = append(peers, p)
	}
	timeout := d.syncTimeout
	d.mu.Unlock()

	round := uuid.New().String()
	for _, p := range peers {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		msg, err := d.conn.RequestWithContext(reqCtx, syncSubjectPrefix+p, nil)
		cancel()
		if err != nil {
			d.logger.Printf("revocation: sync[%s] request to %s failed: %v", round, p, err)
			continue
		}
		var entries []Entry
		if err := json.Unmarshal(msg.Data, &entries); err != nil {
			d.logger.Printf("revocation: sync[%s] response from %s malformed: %v", round, p, err)
			continue
		}
		for _, e := range entries {
			if !e.VerifySignature() {
				d.logger.Printf("revocation: sync[%s] entry %s from %s failed signature check", round, e.RevocationID, p)
				continue
			}
			d.applyIfUnseen(e)
		}
	}
}

// StartSync drives Sync on a timer until ctx is cancelled. The
// goroutine — and the ticker it owns — exits when ctx is done, so
// there is nothing to leak.
func (d *DistributedStore) StartSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				syncCtx, cancel := context.WithTimeout(ctx, d.syncTimeout)
				d.Sync(syncCtx)
				cancel()
			}
		}
	}()
}

// Close releases the NATS subscriptions this store owns.
func (d *DistributedStore) Close() error {
	if d.gossipSub != nil {
		if err := d.gossipSub.Unsubscribe(); err != nil {
			return err
		}
	}
	if d.syncSub != nil {
		return d.syncSub.Unsubscribe()
	}
	return nil
}
