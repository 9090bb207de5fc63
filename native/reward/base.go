package reward

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"offergate/core/events"
)

// Module is the capability surface the claim orchestrator needs from a reward
// variant. Each variant is a concrete type selected at campaign creation;
// the claim-once ledger and window checks live in Base by composition.
type Module interface {
	Type() string
	Claim(caller, user [20]byte, now uint64) (*Receipt, error)
	CanClaim(user [20]byte, now uint64) (bool, string)
	Stats() (Stats, error)
	TriggerAutomaticDistribution(caller [20]byte, users [][20]byte, now uint64) (*BatchReport, error)
	Config() Config
}

// claimState is the slice of the state manager the reward variants operate
// on: the claim ledger, broker allowances and collection mints.
type claimState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
	SpendAllowance(owner []byte, spender [20]byte, recipient []byte, asset string, amount *big.Int) error
	MintToken(symbol string, tokenID uint64, to []byte) (uint64, error)
	TokenExists(symbol string) bool
	CollectionExists(symbol string) bool
}

// defaultMaxBatchSize bounds automatic distribution batches when the config
// leaves MaxBatchSize unset.
const defaultMaxBatchSize = 256

type storedStats struct {
	Claimed uint64
}

// Base carries the state every reward variant shares. The per-instance mutex
// serializes all mutators so the ledger check-and-set is linearizable per
// user.
type Base struct {
	mu         sync.Mutex
	campaignID [32]byte
	typeTag    string
	owner      [20]byte
	controller [20]byte
	cfg        Config
	active     bool
	st         claimState
	emitter    events.Emitter

	// authorize restricts the claimant set (winner lists, eligible lists).
	// A nil hook admits every user the orchestrator lets through.
	authorize func(user [20]byte) error
	// distribute performs the asset movement for one user. It runs after
	// the ledger write; a failure rolls the ledger entry back under the
	// same lock, so no partial claim is ever observable.
	distribute func(user [20]byte) (*Receipt, error)
}

func newBase(campaignID [32]byte, typeTag string, owner, controller [20]byte, cfg Config, st claimState) (*Base, error) {
	if st == nil {
		return nil, ErrNilState
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidConfig)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, cfg.Mode)
	}
	if !cfg.BatchPolicy.Valid() {
		return nil, fmt.Errorf("%w: unknown batch policy %d", ErrInvalidConfig, cfg.BatchPolicy)
	}
	if cfg.Mode == ModeAutomatic && cfg.DistributionDate == 0 {
		return nil, fmt.Errorf("%w: automatic mode requires a distribution date", ErrInvalidConfig)
	}
	if cfg.WindowEnd != 0 && cfg.WindowEnd < cfg.WindowStart {
		return nil, fmt.Errorf("%w: window end before start", ErrInvalidConfig)
	}
	if cfg.MaxBatchSize < 0 {
		return nil, fmt.Errorf("%w: negative batch size", ErrInvalidConfig)
	}
	return &Base{
		campaignID: campaignID,
		typeTag:    typeTag,
		owner:      owner,
		controller: controller,
		cfg:        cfg.Clone(),
		active:     true,
		st:         st,
		emitter:    events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Base) SetEmitter(emitter events.Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// Type returns the reward type tag.
func (b *Base) Type() string { return b.typeTag }

// Config returns a copy of the configured distribution policy.
func (b *Base) Config() Config { return b.cfg.Clone() }

// Controller returns the orchestrator identity claims must originate from.
func (b *Base) Controller() [20]byte { return b.controller }

// SetActive toggles the instance. Owner-only.
func (b *Base) SetActive(caller [20]byte, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.owner {
		return ErrUnauthorized
	}
	b.active = active
	return nil
}

func (b *Base) ledgerKey(user [20]byte) []byte {
	return []byte("reward/ledger/" + hex.EncodeToString(b.campaignID[:]) + "/" + hex.EncodeToString(user[:]))
}

func (b *Base) statsKey() []byte {
	return []byte("reward/stats/" + hex.EncodeToString(b.campaignID[:]))
}

func (b *Base) loadRecord(user [20]byte) (*ClaimRecord, error) {
	record := new(ClaimRecord)
	found, err := b.st.KVGet(b.ledgerKey(user), record)
	if err != nil {
		return nil, err
	}
	if !found {
		return &ClaimRecord{}, nil
	}
	return record, nil
}

func (b *Base) loadStats() (*storedStats, error) {
	stats := new(storedStats)
	if _, err := b.st.KVGet(b.statsKey(), stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// gateLocked applies the state checks shared by claims and batch entries.
func (b *Base) gateLocked(user [20]byte, now uint64) (*ClaimRecord, error) {
	if !b.active {
		return nil, ErrInactive
	}
	if now < b.cfg.WindowStart || (b.cfg.WindowEnd != 0 && now > b.cfg.WindowEnd) {
		return nil, ErrOutsideWindow
	}
	if b.cfg.Mode == ModeAutomatic && now < b.cfg.DistributionDate {
		return nil, ErrNotYetDue
	}
	record, err := b.loadRecord(user)
	if err != nil {
		return nil, err
	}
	if record.Claimed {
		return nil, ErrAlreadyClaimed
	}
	return record, nil
}

// claimLocked runs the full per-user claim transition. The ledger entry is
// written before the asset movement and rolled back if the movement fails, so
// the pair commits or aborts as a unit under the instance lock.
func (b *Base) claimLocked(user [20]byte, now uint64) (*Receipt, error) {
	if _, err := b.gateLocked(user, now); err != nil {
		return nil, err
	}
	if b.authorize != nil {
		if err := b.authorize(user); err != nil {
			return nil, err
		}
	}
	stats, err := b.loadStats()
	if err != nil {
		return nil, err
	}
	if err := b.st.KVPut(b.ledgerKey(user), &ClaimRecord{Claimed: true}); err != nil {
		return nil, err
	}
	receipt := &Receipt{}
	if b.distribute != nil {
		receipt, err = b.distribute(user)
		if err != nil {
			// Abort: revert the ledger entry written above.
			if revertErr := b.st.KVPut(b.ledgerKey(user), &ClaimRecord{}); revertErr != nil {
				return nil, fmt.Errorf("revert ledger after %v: %w", err, revertErr)
			}
			return nil, err
		}
	}
	// The claim committed when distribute returned. The token-id annotation
	// and the stats counter are bookkeeping; a failed write must not surface
	// as a failed claim, or the retry lands on ErrAlreadyClaimed.
	if receipt.HasTokenID {
		_ = b.st.KVPut(b.ledgerKey(user), &ClaimRecord{Claimed: true, TokenID: receipt.TokenID, HasTokenID: true})
	}
	stats.Claimed++
	_ = b.st.KVPut(b.statsKey(), stats)
	b.emitter.Emit(events.RewardDistributed{
		ID:         b.campaignID,
		User:       user,
		Asset:      receipt.Asset,
		Amount:     receipt.Amount,
		TokenID:    receipt.TokenID,
		HasTokenID: receipt.HasTokenID,
	})
	return receipt, nil
}

// Claim runs one user-initiated claim. Only the orchestrator the instance was
// initialized with may call it; a controller mismatch fails closed.
func (b *Base) Claim(caller, user [20]byte, now uint64) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.controller {
		return nil, ErrNotController
	}
	return b.claimLocked(user, now)
}

// CanClaim reports whether a claim for user would currently pass the state
// checks, with the blocking reason when it would not. Side-effect free.
func (b *Base) CanClaim(user [20]byte, now uint64) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.gateLocked(user, now); err != nil {
		return false, err.Error()
	}
	if b.authorize != nil {
		if err := b.authorize(user); err != nil {
			return false, err.Error()
		}
	}
	return true, ""
}

// Stats returns the aggregate claim counters. Side-effect free.
func (b *Base) Stats() (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats, err := b.loadStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Claimed:       stats.Claimed,
		ExpectedCount: b.cfg.ExpectedCount,
		Active:        b.active,
		Mode:          b.cfg.Mode,
	}, nil
}

// TriggerAutomaticDistribution applies the per-user claim logic across the
// batch. Already-claimed entries are always skipped so an aborted batch can
// be resubmitted unchanged; other failures follow the configured policy.
func (b *Base) TriggerAutomaticDistribution(caller [20]byte, users [][20]byte, now uint64) (*BatchReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.owner && caller != b.controller {
		return nil, ErrUnauthorized
	}
	if b.cfg.Mode != ModeAutomatic {
		return nil, ErrAutomaticOnly
	}
	if now < b.cfg.DistributionDate {
		return nil, ErrNotYetDue
	}
	maxBatch := b.cfg.MaxBatchSize
	if maxBatch == 0 {
		maxBatch = defaultMaxBatchSize
	}
	if len(users) > maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(users), maxBatch)
	}
	report := &BatchReport{Requested: len(users)}
	for _, user := range users {
		_, err := b.claimLocked(user, now)
		if err == nil {
			report.Settled++
			continue
		}
		if errors.Is(err, ErrAlreadyClaimed) {
			report.Skipped = append(report.Skipped, BatchSkip{User: user, Reason: err.Error()})
			continue
		}
		if b.cfg.BatchPolicy == BatchBestEffort {
			report.Skipped = append(report.Skipped, BatchSkip{User: user, Reason: err.Error()})
			continue
		}
		report.Skipped = append(report.Skipped, BatchSkip{User: user, Reason: err.Error()})
		b.emitBatch(report)
		return report, fmt.Errorf("batch aborted at %s: %w",
			hex.EncodeToString(user[:]), err)
	}
	b.emitBatch(report)
	return report, nil
}

func (b *Base) emitBatch(report *BatchReport) {
	b.emitter.Emit(events.BatchSettled{
		ID:        b.campaignID,
		Requested: report.Requested,
		Settled:   report.Settled,
		Skipped:   len(report.Skipped),
	})
}
