package campaign

// EligibilityConfig governs how the orchestrator resolves a claimant's
// eligibility. SigningKey and ProofValidity are mirrored into the activity
// module, which performs the actual proof checks.
type EligibilityConfig struct {
	Enabled bool
	// SigningKey is the address eligibility proofs must be signed by.
	SigningKey [20]byte
	// ProofValidity is the acceptance window in seconds after the proof
	// timestamp. Zero disables the expiry check.
	ProofValidity uint64
	// RequireProofForAllClaims forces the proof path even for users whose
	// recorded criterion state would already pass.
	RequireProofForAllClaims bool
}

// FeeConfig is the per-campaign affiliate fee policy. The configured share
// of every fungible payout is accrued to the affiliate for later settlement;
// claims themselves move the full per-claim amount to the user.
type FeeConfig struct {
	// AffiliateBps is the affiliate share in basis points of the per-claim
	// amount.
	AffiliateBps uint32
}

// FeeBpsDenominator converts basis points into a fraction.
const FeeBpsDenominator = 10_000
