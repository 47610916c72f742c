package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSender_SequentialIDs(t *testing.T) {
	s := NewNoopSender()
	first, err := s.Send(context.Background(), Message{To: []string{"ops@example.com"}, Subject: "a"})
	require.NoError(t, err)
	second, err := s.Send(context.Background(), Message{To: []string{"ops@example.com"}, Subject: "b"})
	require.NoError(t, err)

	assert.Equal(t, "noop-1", first.MessageID)
	assert.Equal(t, "noop-2", second.MessageID)
	assert.False(t, second.SentAt.IsZero())
}

func TestResendSender_RejectsNoRecipients(t *testing.T) {
	_, err := NewResendSender("re_test", "Loyalty Sync <sync@example.com>").Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}
