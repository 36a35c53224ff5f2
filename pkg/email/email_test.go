package email_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/email"
	"github.com/notifyhub/notifyq/pkg/notification"
)

// fakeSender records the last params it received and replies with a
// scripted error.
type fakeSender struct {
	last email.SendEmailParams
	err  error
}

func (f *fakeSender) SendEmail(_ context.Context, params email.SendEmailParams) error {
	f.last = params
	return f.err
}

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Welcome",
		BodyHTML: "<p>Hello</p>",
	}
	require.NoError(t, valid.Validate())

	t.Run("missing recipient", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.SendTo = ""
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("malformed recipient", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.SendTo = "not-an-address"
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.Subject = ""
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing body", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.BodyHTML = ""
		require.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	base := email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}

	_, err := email.NewPostmarkClient(base)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*email.Config){
		"missing server token":  func(c *email.Config) { c.PostmarkServerToken = "" },
		"missing account token": func(c *email.Config) { c.PostmarkAccountToken = "" },
		"missing sender":        func(c *email.Config) { c.SenderEmail = "" },
		"malformed sender":      func(c *email.Config) { c.SenderEmail = "nope" },
		"missing support":       func(c *email.Config) { c.SupportEmail = "" },
		"malformed support":     func(c *email.Config) { c.SupportEmail = "nope" },
	} {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			mutate(&cfg)
			_, err := email.NewPostmarkClient(cfg)
			require.ErrorIs(t, err, email.ErrInvalidConfig)
		})
	}
}

func TestDeliverer_MapsPayload(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	deliverer, err := email.NewDeliverer(sender)
	require.NoError(t, err)

	err = deliverer.Deliver(context.Background(), notification.Payload{
		UserID:    "user-1",
		Type:      "welcome",
		Title:     "Welcome!",
		Message:   "Hello there\nEnjoy your stay <3",
		Channel:   notification.ChannelEmail,
		Recipient: "user@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", sender.last.SendTo)
	assert.Equal(t, "Welcome!", sender.last.Subject)
	assert.Equal(t, "welcome", sender.last.Tag)
	assert.Equal(t, "<p>Hello there</p><p>Enjoy your stay &lt;3</p>", sender.last.BodyHTML)
}

func TestDeliverer_MetadataBodyOverride(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	deliverer, err := email.NewDeliverer(sender)
	require.NoError(t, err)

	err = deliverer.Deliver(context.Background(), notification.Payload{
		UserID:    "user-1",
		Title:     "Invoice",
		Message:   "ignored when body_html is present",
		Channel:   notification.ChannelEmail,
		Recipient: "user@example.com",
		Metadata:  map[string]string{"body_html": "<h1>Invoice #42</h1>"},
	})
	require.NoError(t, err)

	assert.Equal(t, "<h1>Invoice #42</h1>", sender.last.BodyHTML)
}

func TestDeliverer_MalformedRecipientIsTerminal(t *testing.T) {
	t.Parallel()

	deliverer, err := email.NewDeliverer(&fakeSender{})
	require.NoError(t, err)

	err = deliverer.Deliver(context.Background(), notification.Payload{
		UserID:    "user-1",
		Title:     "Welcome!",
		Message:   "Hello",
		Channel:   notification.ChannelEmail,
		Recipient: "not-an-address",
	})
	require.Error(t, err)
	assert.True(t, notification.IsTerminal(err))
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestDeliverer_SenderErrorStaysRetryable(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("provider unavailable")
	deliverer, err := email.NewDeliverer(&fakeSender{err: sendErr})
	require.NoError(t, err)

	err = deliverer.Deliver(context.Background(), notification.Payload{
		UserID:    "user-1",
		Title:     "Welcome!",
		Message:   "Hello",
		Channel:   notification.ChannelEmail,
		Recipient: "user@example.com",
	})
	require.ErrorIs(t, err, sendErr)
	assert.False(t, notification.IsTerminal(err))
}

func TestNewDeliverer_RequiresSender(t *testing.T) {
	t.Parallel()

	_, err := email.NewDeliverer(nil)
	require.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestDevSender_WritesFilePair(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(filepath.Join(dir, "outbox"))

	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Weekly Digest",
		BodyHTML: "<p>Digest</p>",
		Tag:      "digest",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "outbox"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var htmlName, jsonName string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".html":
			htmlName = e.Name()
		case ".json":
			jsonName = e.Name()
		}
	}
	require.NotEmpty(t, htmlName)
	require.NotEmpty(t, jsonName)
	assert.Contains(t, htmlName, "digest")

	body, err := os.ReadFile(filepath.Join(dir, "outbox", htmlName))
	require.NoError(t, err)
	assert.Equal(t, "<p>Digest</p>", string(body))

	meta, err := os.ReadFile(filepath.Join(dir, "outbox", jsonName))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"user@example.com"`)
	assert.Contains(t, string(meta), `"Weekly Digest"`)
}

func TestDevSender_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	sender := email.NewDevSender(t.TempDir())
	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo: "user@example.com",
	})
	require.ErrorIs(t, err, email.ErrInvalidParams)
}
