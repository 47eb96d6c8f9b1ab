package entity

import (
	"time"
)

// MaxSubWallets is the hard cap of non-primary links per primary wallet.
const MaxSubWallets = 2

// SignedAttestation proves control of the private key for SubjectAddress.
// SignerAddress is recovered from the signature, never claimed by the client.
// Persisted immutably on the WalletLink it authorizes.
type SignedAttestation struct {
	Message        string    `bson:"message" json:"message"`
	Signature      []byte    `bson:"signature" json:"signature"`
	SignerAddress  string    `bson:"signer_address" json:"signer_address"`
	SubjectAddress string    `bson:"subject_address" json:"subject_address"`
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
}

// WalletLink is one node of the wallet identity graph. A primary wallet has
// ParentAddress == "" and IsPrimary == true; a sub-wallet points at its
// primary via ParentAddress. Addresses are stored lowercase.
type WalletLink struct {
	ID            string             `bson:"_id,omitempty" json:"id,omitempty"`
	Address       string             `bson:"address" json:"address"`
	Label         string             `bson:"label" json:"label"`
	ParentAddress string             `bson:"parent_address" json:"parent_address"`
	IsPrimary     bool               `bson:"is_primary" json:"is_primary"`
	Attestation   *SignedAttestation `bson:"attestation,omitempty" json:"attestation,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
