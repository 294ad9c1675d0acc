// Package state implements the middleware's single mutex-guarded runtime
// state: the input buffer queue, the hold flag, the newest verified beacon,
// the pending-timestamp watermark and the randomness salt. The source keeps
// these behind nested interior-mutability cells inside one outer mutex; this
// collapses them into one plain struct guarded by one sync.Mutex, per the
// design note that the cells are an implementation artifact, not a
// requirement.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/drand/kyber"
	"golang.org/x/crypto/sha3"

	"github.com/Calindra/cartesi-drand/chain"
	chainerrors "github.com/Calindra/cartesi-drand/chain/errors"
	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/config"
	"github.com/Calindra/cartesi-drand/crypto"
	"github.com/Calindra/cartesi-drand/metrics"
	"github.com/Calindra/cartesi-drand/rollupio"
)

// Item is an opaque rollup input buffered for the application to drain.
type Item struct {
	Envelope rollupio.Envelope
}

// Manager holds every piece of mutable middleware state behind one mutex.
type Manager struct {
	mu sync.Mutex

	queue   []Item
	holding bool

	beacon           *chain.Beacon
	pendingTimestamp uint64
	salt             uint64

	cfg    config.AppConfig
	pubKey kyber.Point

	verifier *crypto.Verifier
	log      log.Logger
}

// NewManager builds a Manager from an initial AppConfig, parsing its public
// key up front so a bad config fails at construction rather than on first
// beacon submission.
func NewManager(cfg config.AppConfig, verifier *crypto.Verifier, logger log.Logger) (*Manager, error) {
	pub, err := verifier.ParsePublicKey(cfg.DrandPublicKey)
	if err != nil {
		return nil, fmt.Errorf("parsing initial drand public key: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		pubKey:   pub,
		verifier: verifier,
		log:      logger,
	}, nil
}

// Config returns a copy of the current AppConfig.
func (m *Manager) Config() config.AppConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig swaps in a new AppConfig, reparsing its public key. It does
// not persist anything to disk — that I/O happens outside the lock, at the
// caller's discretion, per the rule that critical sections must not span an
// I/O suspension.
func (m *Manager) UpdateConfig(cfg config.AppConfig) error {
	pub, err := m.verifier.ParsePublicKey(cfg.DrandPublicKey)
	if err != nil {
		return fmt.Errorf("parsing updated drand public key: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.pubKey = pub
	return nil
}

// Enqueue appends an opaque item to the buffer. Called by the background
// poll dispatcher when the rollup host delivers an input that is neither a
// beacon nor the pending-timestamp inspect.
func (m *Manager) Enqueue(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, item)
	metrics.QueueDepth.Set(float64(len(m.queue)))
}

// Dequeue awaits the lock (per the concurrency model, the finish drain
// never try-locks) and pops the oldest buffered item, unless the hold flag
// is set.
func (m *Manager) Dequeue() (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holding || len(m.queue) == 0 {
		return Item{}, false
	}
	item := m.queue[0]
	m.queue = m.queue[1:]
	metrics.QueueDepth.Set(float64(len(m.queue)))
	return item, true
}

// CurrentPublicKey returns the public key currently in effect, for
// verifying an in-flight beacon payload without holding the lock across the
// (comparatively expensive) pairing check.
func (m *Manager) CurrentPublicKey() kyber.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pubKey
}

// VerifyAndSubmit verifies sig over round under the current public key and,
// if valid, submits the beacon to the store. It returns whether the beacon
// was actually stored (false if a newer round was already present).
func (m *Manager) VerifyAndSubmit(round uint64, sig []byte) (stored bool, err error) {
	pub := m.CurrentPublicKey()
	if err := m.verifier.VerifySignature(pub, round, sig); err != nil {
		return false, fmt.Errorf("%w: %v", chainerrors.ErrInvalidBeacon, err)
	}
	return m.submit(round, sig), nil
}

func (m *Manager) submit(round uint64, sig []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.beacon != nil && round <= m.beacon.Round {
		return false
	}

	period, genesis := m.cfg.DrandPeriod, m.cfg.DrandGenesisTime
	m.beacon = &chain.Beacon{
		Round:      round,
		Signature:  sig,
		Randomness: crypto.RandomnessFromSignature(sig),
		Timestamp:  chain.TimeOfRound(period, genesis, round),
	}
	metrics.LastBeaconRound.Set(float64(round))
	return true
}

// TryServeRandomness implements the Randomness Gate's core decision: try to
// serve a salted hash of the stored beacon's randomness, or defer and
// record the new pending watermark. It try-locks and returns
// ErrLockContention on contention, per the concurrency model.
func (m *Manager) TryServeRandomness(queryTimestamp uint64) (string, error) {
	if !m.mu.TryLock() {
		return "", chainerrors.ErrLockContention
	}
	defer m.mu.Unlock()

	safeQuery := queryTimestamp + m.cfg.SafeSeconds

	if m.beacon != nil && m.beacon.Timestamp > safeQuery {
		m.salt++
		out := saltedRandomness(m.beacon.Randomness, m.salt)
		m.holding = false
		metrics.RandomnessServedTotal.Inc()
		return hex.EncodeToString(out[:]), nil
	}

	m.setPendingLocked(safeQuery)
	metrics.RandomnessDeferredTotal.Inc()
	metrics.PendingBeaconTimestamp.Set(float64(m.pendingTimestamp))
	return "", chainerrors.ErrRandomnessDeferred
}

func (m *Manager) setPendingLocked(t uint64) {
	if m.pendingTimestamp == 0 || t > m.pendingTimestamp {
		m.pendingTimestamp = t
	}
}

// PendingTimestamp awaits the lock and returns the current pending
// watermark (0 means unset).
func (m *Manager) PendingTimestamp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingTimestamp
}

// TrySetHold forces the hold flag on. It try-locks and returns
// ErrLockContention on contention. The returned bool reports whether the
// flag was already set.
func (m *Manager) TrySetHold() (alreadyHolding bool, err error) {
	if !m.mu.TryLock() {
		return false, chainerrors.ErrLockContention
	}
	defer m.mu.Unlock()

	already := m.holding
	m.holding = true
	return already, nil
}

// saltedRandomness derives the per-request randomness: SHA3-256(randomness
// || salt as 8 little-endian bytes).
func saltedRandomness(randomness [32]byte, salt uint64) [32]byte {
	buf := make([]byte, 32+8)
	copy(buf, randomness[:])
	binary.LittleEndian.PutUint64(buf[32:], salt)
	return sha3.Sum256(buf)
}

// IsPendingInspectPayload reports whether a decoded inspect_state payload
// is the literal pending-beacon sentinel the drand follower watches for.
func IsPendingInspectPayload(raw []byte) bool {
	return string(raw) == "pendingdrandbeacon"
}
