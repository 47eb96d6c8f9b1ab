package utils

import "fmt"

// NativeToken is the sentinel TokenAddress for the chain's native coin,
// which has no contract and emits no Transfer logs.
const NativeToken = "native"

// NativeDecimals is the precision of the native coin (wei).
const NativeDecimals = 18

// ShareLinkPrefix is the opaque path prefix of a shareable payment link.
// No secrets are embedded; the id alone addresses the request.
const ShareLinkPrefix = "/pay/"

// LinkMessage is the exact text a sub-wallet signs to attest that it is
// controlled by the same person as the primary. Client and server must
// agree on it byte for byte.
func LinkMessage(primaryAddress, subAddress string) string {
	return fmt.Sprintf(
		"Link wallet %s as a sub-wallet of %s",
		CanonicalAddress(subAddress), CanonicalAddress(primaryAddress),
	)
}
