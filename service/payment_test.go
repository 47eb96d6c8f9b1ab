package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylinkd/walletlink_service/chain"
	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/entity"
	wrapErrors "github.com/paylinkd/walletlink_service/errors"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/utils"
)

func newPaymentEnv() (*PaymentService, *repository.MemoryPaymentStore, *domain.Session) {
	svc, store, session, _ := newPaymentEnvWithChain()
	return svc, store, session
}

func newPaymentEnvWithChain() (*PaymentService, *repository.MemoryPaymentStore, *domain.Session, *chain.MemoryChain) {
	store := repository.NewMemoryPaymentStore()
	session := domain.NewSession()
	session.Initialize("0xaaa", "0xaaa", []string{"0xbbb"})
	mem := chain.NewMemoryChain()
	return NewPaymentService(store, session, domain.NewBus(), nil, mem, testLogger()), store, session, mem
}

func validSpec() CreateRequestSpec {
	return CreateRequestSpec{
		RequesterAddress: "0xAAA",
		ChainID:          1,
		TokenAddress:     "0xToken",
		Amount:           "25.50",
		ExpiresAt:        time.Now().Add(time.Hour),
	}
}

func TestCreate_AssignsIDAndShareLink(t *testing.T) {
	svc, store, _ := newPaymentEnv()
	ctx := context.Background()

	req, err := svc.Create(ctx, validSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, utils.ShareLinkPrefix+req.ID, req.ShareLink)
	assert.True(t, strings.HasPrefix(req.ShareLink, "/pay/"))
	assert.Equal(t, entity.StatusPending, req.Status)
	assert.Equal(t, "0xaaa", req.RequesterAddress)
	assert.Equal(t, "0xtoken", req.TokenAddress)
	assert.Equal(t, "25.50", req.Amount)

	stored, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, req.ID, stored.ID)
}

func TestCreate_RejectsBadAmounts(t *testing.T) {
	svc, _, _ := newPaymentEnv()
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "abc", "", "1e3"} {
		spec := validSpec()
		spec.Amount = amount
		_, err := svc.Create(ctx, spec)
		require.Error(t, err, "amount %q accepted", amount)
		assert.Equal(t, wrapErrors.CodeInvalidAmount, wrapErrors.CodeOf(err))
	}
}

func TestCreate_RejectsAmountFinerThanTokenPrecision(t *testing.T) {
	svc, _, _, mem := newPaymentEnvWithChain()
	mem.SetDecimals("0xtoken", 6)

	spec := validSpec()
	spec.TokenAddress = "0xtoken"
	spec.Amount = "1.0000001" // seven fractional digits on a 6-decimal token
	_, err := svc.Create(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeInvalidAmount, wrapErrors.CodeOf(err))

	spec.Amount = "1.000001"
	_, err = svc.Create(context.Background(), spec)
	require.NoError(t, err)
}

func TestCreate_DecimalsLookupFailureDoesNotBlockCreate(t *testing.T) {
	svc, _, _, mem := newPaymentEnvWithChain()
	mem.WithDecimalsError(errors.New("rpc down"))

	_, err := svc.Create(context.Background(), validSpec())
	require.NoError(t, err)
}

func TestCreate_RejectsPastExpiry(t *testing.T) {
	svc, _, _ := newPaymentEnv()

	spec := validSpec()
	spec.ExpiresAt = time.Now().Add(-time.Minute)
	_, err := svc.Create(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeInvalidExpiry, wrapErrors.CodeOf(err))
}

func TestCreate_RequesterMustBelongToIdentity(t *testing.T) {
	svc, _, _ := newPaymentEnv()

	spec := validSpec()
	spec.RequesterAddress = "0xstranger"
	_, err := svc.Create(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeUnknownIdentity, wrapErrors.CodeOf(err))
}

func TestCreate_SubWalletMayRequest(t *testing.T) {
	svc, _, _ := newPaymentEnv()

	spec := validSpec()
	spec.RequesterAddress = "0xBBB"
	req, err := svc.Create(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", req.RequesterAddress)
}

func TestCancel_PendingBecomesCancelled(t *testing.T) {
	svc, store, _ := newPaymentEnv()
	ctx := context.Background()

	req, err := svc.Create(ctx, validSpec())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, req.ID))
	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)
}

func TestCancel_TerminalStatesAreInvalidTransitions(t *testing.T) {
	svc, _, _ := newPaymentEnv()
	ctx := context.Background()

	req, err := svc.Create(ctx, validSpec())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, req.ID))

	err = svc.Cancel(ctx, req.ID)
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeInvalidTransition, wrapErrors.CodeOf(err))
}

func TestCancel_MissingRequest(t *testing.T) {
	svc, _, _ := newPaymentEnv()

	err := svc.Cancel(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeNotFound, wrapErrors.CodeOf(err))
}

func TestGet_MissingRequest(t *testing.T) {
	svc, _, _ := newPaymentEnv()

	_, err := svc.Get(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeNotFound, wrapErrors.CodeOf(err))
}

func TestList_ScopedToActiveAddress(t *testing.T) {
	svc, _, session := newPaymentEnv()
	ctx := context.Background()

	_, err := svc.Create(ctx, validSpec())
	require.NoError(t, err)

	sub := validSpec()
	sub.RequesterAddress = "0xbbb"
	_, err = svc.Create(ctx, sub)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0xaaa", list[0].RequesterAddress)

	session.Initialize("0xaaa", "0xbbb", []string{"0xbbb"})
	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0xbbb", list[0].RequesterAddress)
}

func TestList_WithoutSession(t *testing.T) {
	store := repository.NewMemoryPaymentStore()
	svc := NewPaymentService(store, domain.NewSession(), domain.NewBus(), nil, chain.NewMemoryChain(), testLogger())

	_, err := svc.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, wrapErrors.CodeNoSession, wrapErrors.CodeOf(err))
}
