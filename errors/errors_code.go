package errors

type Code string

// Validation errors: reported synchronously, never retried automatically.
const (
	CodeInvalidAmount   Code = "INVALID_AMOUNT"
	CodeInvalidExpiry   Code = "INVALID_EXPIRY"
	CodeInvalidAddress  Code = "INVALID_ADDRESS"
	CodeLimitExceeded   Code = "LIMIT_EXCEEDED"
	CodeAlreadyLinked   Code = "ALREADY_LINKED"
	CodeSelfLink        Code = "SELF_LINK"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNoSession       Code = "NO_SESSION"
	CodeUnknownIdentity Code = "UNKNOWN_IDENTITY"
)

// Ownership errors: terminal for the attempt, restart from message generation.
const (
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeUnverifiedOwnership Code = "UNVERIFIED_OWNERSHIP"
	CodeAmbiguousIdentity   Code = "AMBIGUOUS_IDENTITY"
)

// Provider errors: recoverable, each surfaced under a distinct reason.
const (
	CodeAlreadySwitching      Code = "ALREADY_SWITCHING"
	CodeSwitchRejected        Code = "SWITCH_REJECTED"
	CodeSwitchMismatch        Code = "SWITCH_MISMATCH"
	CodeSwitchRecoveryFailed  Code = "SWITCH_RECOVERY_FAILED"
	CodeProviderUnavailable   Code = "PROVIDER_UNAVAILABLE"
	CodeNotAwaitingConnection Code = "NOT_AWAITING_CONNECTION"
)

// Concurrency conflicts: success-of-someone-else, caller re-reads.
const (
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeTransitionConflict Code = "TRANSITION_CONFLICT"
)

// External dependency errors: retried with backoff by watcher/sweeper.
const (
	CodeChainRPC         Code = "CHAIN_RPC_ERROR"
	CodeDialChain        Code = "DIAL_CHAIN_ERROR"
	CodeTokenDecimals    Code = "TOKEN_DECIMALS_ERROR"
	CodeStoreUnavailable Code = "STORE_ERROR"
)
