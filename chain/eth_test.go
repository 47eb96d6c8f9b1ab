package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestRecipientTopic_PadsAddressToTopicWidth(t *testing.T) {
	got := recipientTopic("0x00000000000000000000000000000000000000ff")
	want := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000ff")
	assert.Equal(t, want, got)
}

func TestRecipientTopic_CaseInsensitive(t *testing.T) {
	lower := recipientTopic("0xdac17f958d2ee523a2206206994597c13d831ec7")
	mixed := recipientTopic("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	assert.Equal(t, lower, mixed)
}
