package wizard

import (
	"context"
	"testing"

	"github.com/nrbnayon/silver-gym/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCodeSender(t *testing.T) {
	logger := zap.NewNop()

	_, isLog := NewCodeSender(config.MailConfig{}, logger).(*LogSender)
	assert.True(t, isLog, "no API key falls back to the log sender")

	_, isResend := NewCodeSender(config.MailConfig{ResendAPIKey: "re_test", FromAddress: "gym@example.com"}, logger).(*ResendSender)
	assert.True(t, isResend)
}

func TestLogSender_SendCode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sender := NewLogSender(zap.New(core))

	require.NoError(t, sender.SendCode(context.Background(), "owner@gym.app", "Owner", "042917"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "owner@gym.app", fields["to"])
	assert.Equal(t, "042917", fields["code"])
}

func TestCodeEmailHTML(t *testing.T) {
	body := codeEmailHTML("<Sam>", "123456")
	assert.Contains(t, body, "&lt;Sam&gt;")
	assert.Contains(t, body, "<strong>123456</strong>")
	assert.Contains(t, codeEmailHTML("", "1"), "Hi there")
}
