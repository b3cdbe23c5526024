package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automarket/consignment-service/internal/app/config"
	"github.com/automarket/consignment-service/internal/platform/logger"
)

func TestNewSMTPSender_ConfiguresTLSFromConfig(t *testing.T) {
	cfg := config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        465,
		Username:    "ops",
		Password:    "secret",
		SenderEmail: "noreply@example.com",
		Encryption:  "ssl",
		ServerName:  "mail.example.com",
	}

	sender, err := NewSMTPSender(cfg, logger.NoOp{})
	require.NoError(t, err)

	s, ok := sender.(*smtpSender)
	require.True(t, ok)
	assert.True(t, s.d.SSL)
	require.NotNil(t, s.d.TLSConfig)
	assert.Equal(t, "mail.example.com", s.d.TLSConfig.ServerName)
}

func TestNewSMTPSender_ServerNameDefaultsToHost(t *testing.T) {
	cfg := config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		SenderEmail: "noreply@example.com",
		Encryption:  "starttls",
	}

	sender, err := NewSMTPSender(cfg, logger.NoOp{})
	require.NoError(t, err)

	s := sender.(*smtpSender)
	assert.False(t, s.d.SSL)
	require.NotNil(t, s.d.TLSConfig)
	assert.Equal(t, "smtp.example.com", s.d.TLSConfig.ServerName)
}

func TestNewSMTPSender_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com"}, logger.NoOp{})
	assert.Error(t, err)
}

func TestSend_RequiresRecipients(t *testing.T) {
	cfg := config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		SenderEmail: "noreply@example.com",
	}
	sender, err := NewSMTPSender(cfg, logger.NoOp{})
	require.NoError(t, err)

	err = sender.Send(context.Background(), nil, "subject", "", "body")
	assert.Error(t, err)
}
