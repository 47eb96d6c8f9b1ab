package api

import (
	"net/http"

	wrapErrors "github.com/paylinkd/walletlink_service/errors"
)

// statusFor maps error codes to HTTP statuses: malformed input 400, state
// conflicts 409, ownership failures 403, upstream failures 502.
func statusFor(err error) int {
	switch wrapErrors.CodeOf(err) {
	case wrapErrors.CodeInvalidAmount,
		wrapErrors.CodeInvalidExpiry,
		wrapErrors.CodeInvalidAddress,
		wrapErrors.CodeSelfLink,
		wrapErrors.CodeInvalidSignature:
		return http.StatusBadRequest
	case wrapErrors.CodeLimitExceeded,
		wrapErrors.CodeAlreadyLinked,
		wrapErrors.CodeAlreadySwitching,
		wrapErrors.CodeInvalidTransition,
		wrapErrors.CodeTransitionConflict,
		wrapErrors.CodeSwitchMismatch,
		wrapErrors.CodeSwitchRejected,
		wrapErrors.CodeNotAwaitingConnection,
		wrapErrors.CodeNoSession:
		return http.StatusConflict
	case wrapErrors.CodeUnverifiedOwnership,
		wrapErrors.CodeAmbiguousIdentity,
		wrapErrors.CodeUnknownIdentity:
		return http.StatusForbidden
	case wrapErrors.CodeNotFound:
		return http.StatusNotFound
	case wrapErrors.CodeProviderUnavailable,
		wrapErrors.CodeSwitchRecoveryFailed,
		wrapErrors.CodeChainRPC,
		wrapErrors.CodeDialChain,
		wrapErrors.CodeTokenDecimals,
		wrapErrors.CodeStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
