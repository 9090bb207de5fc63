package reward

import "math/big"

// Type tags registered with the campaign registry.
const (
	TypeTokenTransfer = "TOKEN_TRANSFER"
	TypeNFTMint       = "NFT_MINT"
	TypeRaffle        = "RAFFLE"
	TypeAirdrop       = "AIRDROP"
	TypeWhitelist     = "WHITELIST_SPOT"
)

// Mode selects between user-initiated claims and operator-triggered batch
// distribution.
type Mode uint8

const (
	ModeManual Mode = iota
	ModeAutomatic
)

func (m Mode) Valid() bool {
	return m == ModeManual || m == ModeAutomatic
}

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// BatchPolicy controls how automatic distribution reacts to per-user
// failures. The choice is explicit per instance; there is no hidden default
// behaviour difference between variants.
type BatchPolicy uint8

const (
	// BatchAllOrNothing stops at the first failure. Already-claimed entries
	// are still skipped so an aborted batch can be resubmitted unchanged.
	BatchAllOrNothing BatchPolicy = iota
	// BatchBestEffort skips failing entries and reports them, continuing
	// with the rest of the batch.
	BatchBestEffort
)

func (p BatchPolicy) Valid() bool {
	return p == BatchAllOrNothing || p == BatchBestEffort
}

func (p BatchPolicy) String() string {
	switch p {
	case BatchAllOrNothing:
		return "all_or_nothing"
	case BatchBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// Config is the persisted reward configuration supplied at campaign creation.
type Config struct {
	Name             string
	Asset            string
	PerClaimAmount   *big.Int
	ExpectedCount    uint64
	Broker           [20]byte
	Mode             Mode
	DistributionDate uint64
	WindowStart      uint64
	WindowEnd        uint64
	BatchPolicy      BatchPolicy
	MaxBatchSize     int
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	if c.PerClaimAmount != nil {
		out.PerClaimAmount = new(big.Int).Set(c.PerClaimAmount)
	}
	return out
}

// ClaimRecord is the per-user claim-once ledger entry. Claimed never reverts
// to false once set.
type ClaimRecord struct {
	Claimed    bool
	TokenID    uint64
	HasTokenID bool
}

// Receipt describes what a successful claim moved.
type Receipt struct {
	Asset      string
	Amount     *big.Int
	TokenID    uint64
	HasTokenID bool
}

// Stats is the side-effect-free aggregate view of a reward instance.
type Stats struct {
	Claimed       uint64
	ExpectedCount uint64
	Active        bool
	Mode          Mode
}

// BatchReport summarises one automatic distribution run.
type BatchReport struct {
	Requested int
	Settled   int
	// Skipped lists users passed in the batch that did not settle, with the
	// reason, including already-claimed entries.
	Skipped []BatchSkip
}

// BatchSkip records one batch entry that did not settle.
type BatchSkip struct {
	User   [20]byte
	Reason string
}
