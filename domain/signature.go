package domain

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/utils"
)

const signatureLength = 65

// RecoverSigner recovers the address that signed message with an EIP-191
// personal-message signature. Pure: it performs no comparison against an
// expected address, so the same verifier serves both link attestations and
// invoice signing. Any parse or recovery failure is an InvalidSignature.
func RecoverSigner(message string, signature []byte) (string, error) {
	if len(signature) != signatureLength {
		return "", wrapErrors.Newf(wrapErrors.CodeInvalidSignature, "recover signer",
			"signature must be %d bytes, got %d", signatureLength, len(signature))
	}

	sig := make([]byte, signatureLength)
	copy(sig, signature)
	// Wallets emit V as 27/28, geth wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return "", wrapErrors.Newf(wrapErrors.CodeInvalidSignature, "recover signer",
			"invalid recovery id %d", sig[64])
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", wrapErrors.WrapWithCode(wrapErrors.CodeInvalidSignature, "recover signer", err)
	}

	return utils.CanonicalAddress(crypto.PubkeyToAddress(*pub).Hex()), nil
}
