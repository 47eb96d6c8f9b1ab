package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_ConnectBlocksUntilReport(t *testing.T) {
	relay := NewRelayProvider()

	type result struct {
		addr string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		addr, err := relay.Connect(context.Background())
		done <- result{addr, err}
	}()

	select {
	case <-done:
		t.Fatal("Connect resolved before any account report")
	case <-time.After(20 * time.Millisecond):
	}

	relay.ReportAccount("0xABC")
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "0xabc", got.addr)
}

func TestRelay_ConnectReturnsCurrentWhenAlreadyConnected(t *testing.T) {
	relay := NewRelayProvider()
	relay.ReportAccount("0xABC")

	addr, err := relay.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr)
}

func TestRelay_DisconnectWaitsForEmptyReport(t *testing.T) {
	relay := NewRelayProvider()
	relay.ReportAccount("0xabc")

	done := make(chan error, 1)
	go func() { done <- relay.Disconnect(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Disconnect resolved without an acknowledgment")
	case <-time.After(20 * time.Millisecond):
	}

	relay.ReportAccount("")
	require.NoError(t, <-done)
}

func TestRelay_ContextCancelUnblocks(t *testing.T) {
	relay := NewRelayProvider()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := relay.Connect(ctx)
		done <- err
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRelay_AccountChangesObservesReports(t *testing.T) {
	relay := NewRelayProvider()
	changes := relay.AccountChanges()

	relay.ReportAccount("0xAbC")
	assert.Equal(t, "0xabc", <-changes)

	relay.ReportAccount("")
	assert.Equal(t, "", <-changes)
}

func TestRelay_ConnectSeesReportBetweenWakeups(t *testing.T) {
	// A connect report racing the waiter re-registration must not be lost.
	for i := 0; i < 100; i++ {
		relay := NewRelayProvider()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)

		done := make(chan string, 1)
		go func() {
			addr, _ := relay.Connect(ctx)
			done <- addr
		}()
		relay.ReportAccount("")
		relay.ReportAccount("0xabc")

		select {
		case addr := <-done:
			require.Equal(t, "0xabc", addr)
		case <-time.After(2 * time.Second):
			t.Fatal("Connect blocked past an already-connected provider")
		}
		cancel()
	}
}

func TestRelay_DisconnectSeesReportBetweenWakeups(t *testing.T) {
	for i := 0; i < 100; i++ {
		relay := NewRelayProvider()
		relay.ReportAccount("0xaaa")
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)

		done := make(chan error, 1)
		go func() { done <- relay.Disconnect(ctx) }()
		relay.ReportAccount("0xfff")
		relay.ReportAccount("")

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Disconnect blocked past an already-disconnected provider")
		}
		cancel()
	}
}

func TestRelay_SignIsNotRelayed(t *testing.T) {
	relay := NewRelayProvider()
	_, err := relay.Sign(context.Background(), "anything")
	require.Error(t, err)
}
