package service

import (
	"crypto/ecdsa"
	"io"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testKey struct {
	priv    *ecdsa.PrivateKey
	address string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{
		priv:    priv,
		address: strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex()),
	}
}

func (k testKey) sign(t *testing.T, message string) []byte {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), k.priv)
	require.NoError(t, err)
	return sig
}
