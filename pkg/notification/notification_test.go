package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/notification"
)

func validPayload() notification.Payload {
	return notification.Payload{
		UserID:    "user-1",
		Title:     "Welcome",
		Message:   "Hello there",
		Channel:   notification.ChannelEmail,
		Recipient: "user@example.com",
	}
}

func TestPayload_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validPayload().Validate())
	})

	t.Run("missing fields", func(t *testing.T) {
		t.Parallel()

		p := validPayload()
		p.UserID = ""
		p.Recipient = ""
		assert.ErrorIs(t, p.Validate(), notification.ErrInvalidPayload)
	})

	t.Run("missing channel", func(t *testing.T) {
		t.Parallel()

		p := validPayload()
		p.Channel = ""
		assert.ErrorIs(t, p.Validate(), notification.ErrInvalidPayload)
	})

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()

		p := validPayload()
		p.Channel = "carrier-pigeon"
		assert.ErrorIs(t, p.Validate(), notification.ErrInvalidChannel)
	})
}

func TestChannel_Valid(t *testing.T) {
	t.Parallel()

	for _, ch := range []notification.Channel{
		notification.ChannelEmail,
		notification.ChannelSMS,
		notification.ChannelPush,
		notification.ChannelWebhook,
	} {
		assert.True(t, ch.Valid(), "channel %q", ch)
	}
	assert.False(t, notification.Channel("fax").Valid())
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg := notification.NewRegistry()
	require.NoError(t, reg.Register(notification.ChannelEmail, notification.NoopDeliverer{}))

	d, err := reg.Resolve(notification.ChannelEmail)
	require.NoError(t, err)
	assert.NoError(t, d.Deliver(context.Background(), validPayload()))

	_, err = reg.Resolve(notification.ChannelSMS)
	assert.ErrorIs(t, err, notification.ErrUnknownChannel)
}

func TestRegistry_RejectsNilDeliverer(t *testing.T) {
	t.Parallel()

	reg := notification.NewRegistry()
	assert.Error(t, reg.Register(notification.ChannelEmail, nil))
	assert.Error(t, reg.Register("", notification.NoopDeliverer{}))
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	base := errors.New("smtp 550")

	assert.True(t, notification.IsTerminal(notification.Terminal(base)))
	assert.False(t, notification.IsTerminal(notification.Retryable(base)))
	assert.False(t, notification.IsTerminal(base))
	assert.False(t, notification.IsTerminal(context.DeadlineExceeded))
	assert.False(t, notification.IsTerminal(nil))

	// Unknown channel is terminal even without the wrapper.
	_, err := notification.NewRegistry().Resolve("fax")
	assert.True(t, notification.IsTerminal(err))

	// Wrapping preserves classification.
	wrapped := notification.Terminal(base)
	assert.ErrorIs(t, wrapped, base)
}
