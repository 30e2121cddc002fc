package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"expiry_notifier/internal/domain/mailer"
	"expiry_notifier/internal/infra/config"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func testMessage() mailer.Message {
	return mailer.Message{
		To:       "boss@example.com",
		From:     "helpdesk@example.com",
		Subject:  "Accounts expiring soon",
		HTMLBody: "<table><tr><td>alice</td></tr></table>",
	}
}

func TestBuildMessage(t *testing.T) {
	m := BuildMessage(testMessage())

	assert.Equal(t, []string{"boss@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"helpdesk@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"Accounts expiring soon"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Content-Type: text/html")
	assert.Contains(t, buf.String(), "alice")
}

func TestSMTPClient_Send(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := &recordingDialer{}
	c := NewSMTPClientWithDialer(d, "relay.example.com", logger)

	require.NoError(t, c.Send(context.Background(), testMessage()))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"boss@example.com"}, d.sent[0].GetHeader("To"))
}

func TestSMTPClient_SendErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("relay refuses", func(t *testing.T) {
		c := NewSMTPClientWithDialer(&recordingDialer{err: errors.New("550 relay denied")}, "relay.example.com", logger)
		err := c.Send(context.Background(), testMessage())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "550 relay denied")
	})

	t.Run("no recipient", func(t *testing.T) {
		d := &recordingDialer{}
		c := NewSMTPClientWithDialer(d, "relay.example.com", logger)
		msg := testMessage()
		msg.To = ""
		assert.Error(t, c.Send(context.Background(), msg))
		assert.Empty(t, d.sent)
	})

	t.Run("cancelled context", func(t *testing.T) {
		d := &recordingDialer{}
		c := NewSMTPClientWithDialer(d, "relay.example.com", logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, c.Send(ctx, testMessage()), context.Canceled)
		assert.Empty(t, d.sent)
	})
}

func TestNewSMTPClient(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := NewSMTPClient(config.MailConfig{RelayHost: "relay.example.com", RelayPort: 25}, logger)

	require.NotNil(t, c)
	assert.Implements(t, (*mailer.Client)(nil), c)
	assert.Equal(t, "relay.example.com", c.host)
}

func TestNewSMTPClient_InsecureSkipVerify(t *testing.T) {
	logger, _ := test.NewNullLogger()

	c := NewSMTPClient(config.MailConfig{RelayHost: "relay.example.com", RelayPort: 587, InsecureSkipVerify: true}, logger)
	d, ok := c.dialer.(*gomail.Dialer)
	require.True(t, ok)
	require.NotNil(t, d.TLSConfig)
	assert.True(t, d.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, "relay.example.com", d.TLSConfig.ServerName)

	c = NewSMTPClient(config.MailConfig{RelayHost: "relay.example.com", RelayPort: 587}, logger)
	d, ok = c.dialer.(*gomail.Dialer)
	require.True(t, ok)
	assert.Nil(t, d.TLSConfig, "gomail verifies the relay certificate by default")
}
