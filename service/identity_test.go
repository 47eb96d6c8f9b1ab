package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/utils"
)

func newIdentityEnv() (*IdentityService, *repository.MemoryLinkStore, *domain.Session, *domain.Bus) {
	store := repository.NewMemoryLinkStore()
	session := domain.NewSession()
	bus := domain.NewBus()
	return NewIdentityService(store, session, bus, testLogger()), store, session, bus
}

func TestConnect_NewAddressBecomesPrimary(t *testing.T) {
	svc, store, _, _ := newIdentityEnv()
	ctx := context.Background()

	snap, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)
	assert.True(t, snap.Connected)
	assert.Equal(t, "0xaaa", snap.PrimaryAddress)
	assert.Equal(t, "0xaaa", snap.ActiveAddress)
	assert.Empty(t, snap.LinkedAddresses)

	link, err := store.Get(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.True(t, link.IsPrimary)
	assert.Empty(t, link.ParentAddress)
}

func TestConnect_IsIdempotent(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	first, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)
	second, err := svc.Connect(ctx, "0xaaa")
	require.NoError(t, err)

	assert.Equal(t, first.PrimaryAddress, second.PrimaryAddress)
	assert.Equal(t, first.ActiveAddress, second.ActiveAddress)
}

func TestConnect_SubWalletResolvesItsPrimary(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	message := utils.LinkMessage("0xAAA", sub.address)
	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "trading", message, sub.sign(t, message))
	require.NoError(t, err)

	snap, err := svc.Connect(ctx, sub.address)
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", snap.PrimaryAddress)
	assert.Equal(t, sub.address, snap.ActiveAddress)
	assert.Contains(t, snap.LinkedAddresses, sub.address)
}

func TestConnect_CorruptGraphFailsLoudly(t *testing.T) {
	svc, store, _, _ := newIdentityEnv()
	ctx := context.Background()

	// Orphan sub-wallet: its parent record is missing.
	require.NoError(t, store.Insert(ctx, &entity.WalletLink{
		Address:       "0xccc",
		ParentAddress: "0xgone",
		IsPrimary:     false,
	}))

	_, err := svc.Connect(ctx, "0xccc")
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeAmbiguousIdentity, wrapErrors.CodeOf(err))
}

func TestConnect_PrimaryWithParentFailsLoudly(t *testing.T) {
	svc, store, _, _ := newIdentityEnv()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &entity.WalletLink{
		Address:       "0xddd",
		ParentAddress: "0xaaa",
		IsPrimary:     true,
	}))

	_, err := svc.Connect(ctx, "0xddd")
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeAmbiguousIdentity, wrapErrors.CodeOf(err))
}

func TestAddLink_Scenario(t *testing.T) {
	svc, _, _, bus := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)

	events, cancel := bus.Subscribe()
	defer cancel()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	message := utils.LinkMessage("0xAAA", sub.address)
	link, err := svc.AddLink(ctx, "0xAAA", sub.address, "cold storage", message, sub.sign(t, message))
	require.NoError(t, err)
	assert.Equal(t, sub.address, link.Address)
	assert.Equal(t, "0xaaa", link.ParentAddress)
	assert.False(t, link.IsPrimary)
	require.NotNil(t, link.Attestation)
	assert.Equal(t, sub.address, link.Attestation.SignerAddress)

	links, err := svc.ListLinks(ctx, "0xAAA")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, sub.address, links[0].Address)
	assert.Equal(t, "0xaaa", links[0].ParentAddress)

	evt := <-events
	assert.Equal(t, entity.EventLinkAdded, evt.Name)
}

func TestAddLink_SelfLink(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	_, err = svc.AddLink(ctx, "0xAAA", "0xaaa", "", "msg", make([]byte, 65))
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeSelfLink, wrapErrors.CodeOf(err))
}

func TestAddLink_UnverifiedOwnership(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)
	impostor := newTestKey(t)

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	message := utils.LinkMessage("0xAAA", sub.address)
	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "", message, impostor.sign(t, message))
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeUnverifiedOwnership, wrapErrors.CodeOf(err))
}

func TestAddLink_MalformedSignatureIsInvalidSignature(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	_, err = svc.AddLink(ctx, "0xAAA", "0xbbb", "", "msg", []byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeInvalidSignature, wrapErrors.CodeOf(err))
}

func TestAddLink_LimitExceeded(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	for i := 0; i < entity.MaxSubWallets; i++ {
		sub := newTestKey(t)
		message := utils.LinkMessage("0xAAA", sub.address)
		_, err := svc.AddLink(ctx, "0xAAA", sub.address, "", message, sub.sign(t, message))
		require.NoError(t, err)
	}

	third := newTestKey(t)
	message := utils.LinkMessage("0xAAA", third.address)
	_, err = svc.AddLink(ctx, "0xAAA", third.address, "", message, third.sign(t, message))
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeLimitExceeded, wrapErrors.CodeOf(err))

	links, err := svc.ListLinks(ctx, "0xAAA")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(links), entity.MaxSubWallets)
}

func TestAddLink_ConcurrentCallsCannotBreachTheCap(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	// All candidates carry valid attestations, so only the cap decides.
	type candidate struct {
		address   string
		message   string
		signature []byte
	}
	candidates := make([]candidate, 4)
	for i := range candidates {
		key := newTestKey(t)
		message := utils.LinkMessage("0xAAA", key.address)
		candidates[i] = candidate{address: key.address, message: message, signature: key.sign(t, message)}
	}

	var wg sync.WaitGroup
	results := make(chan error, len(candidates))
	for _, cand := range candidates {
		wg.Add(1)
		go func(cand candidate) {
			defer wg.Done()
			_, err := svc.AddLink(ctx, "0xAAA", cand.address, "", cand.message, cand.signature)
			results <- err
		}(cand)
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, wrapErrors.CodeLimitExceeded, wrapErrors.CodeOf(err))
		}
	}
	assert.Equal(t, entity.MaxSubWallets, succeeded)

	links, err := svc.ListLinks(ctx, "0xAAA")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(links), entity.MaxSubWallets)
}

func TestAddLink_AlreadyLinked(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	message := utils.LinkMessage("0xAAA", sub.address)
	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "", message, sub.sign(t, message))
	require.NoError(t, err)

	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "", message, sub.sign(t, message))
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeAlreadyLinked, wrapErrors.CodeOf(err))
}

func TestRemoveLink_Idempotent(t *testing.T) {
	svc, _, session, _ := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	message := utils.LinkMessage("0xAAA", sub.address)
	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "", message, sub.sign(t, message))
	require.NoError(t, err)

	require.NoError(t, svc.RemoveLink(ctx, sub.address))
	require.NoError(t, svc.RemoveLink(ctx, sub.address))

	links, err := svc.ListLinks(ctx, "0xAAA")
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.False(t, session.Owns(sub.address))
}

func TestRemoveLink_PrimaryIsRejected(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)

	err = svc.RemoveLink(ctx, "0xAAA")
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeInvalidAddress, wrapErrors.CodeOf(err))
}

func TestResolvePrimary_ClimbsOneLevel(t *testing.T) {
	svc, _, _, _ := newIdentityEnv()
	ctx := context.Background()
	sub := newTestKey(t)

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)
	message := utils.LinkMessage("0xAAA", sub.address)
	_, err = svc.AddLink(ctx, "0xAAA", sub.address, "", message, sub.sign(t, message))
	require.NoError(t, err)

	primary, err := svc.ResolvePrimary(ctx, sub.address)
	require.NoError(t, err)
	require.NotNil(t, primary)
	assert.Equal(t, "0xaaa", primary.Address)
	assert.True(t, primary.IsPrimary)

	unknown, err := svc.ResolvePrimary(ctx, "0xnobody")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestDisconnect_DegradesToNoIdentity(t *testing.T) {
	svc, _, session, _ := newIdentityEnv()
	ctx := context.Background()

	_, err := svc.Connect(ctx, "0xAAA")
	require.NoError(t, err)
	require.True(t, session.Connected())

	svc.Disconnect()
	assert.False(t, session.Connected())
	assert.Empty(t, session.ActiveAddress())
}
