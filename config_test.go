package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := parseConfig([]string{"--datadir", dataDir})
	require.NoError(t, err)

	assert.Equal(t, "lnd", cfg.Node)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.NodeTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, uint64(1000), cfg.Pay.MinSendable)
	assert.Equal(t, uint64(1000000), cfg.Pay.MaxSendable)
	assert.Equal(t, uint64(100000), cfg.Withdraw.MaxWithdrawable)
	assert.Equal(t, "Payment for services", cfg.Pay.Description)
	assert.Equal(t, "http://localhost:5000", cfg.PublicUrl.String())
	require.Len(t, cfg.Listeners, 1)
	assert.Equal(t, ":5000", cfg.Listeners[0].String())
}

func TestParseConfigFileAndFlags(t *testing.T) {
	dataDir := t.TempDir()

	ini := "[Application Options]\nnode=mock\nstore=bolt\n\n[Pay]\npay.maxsendable=5000\npay.description=Coffee\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, defaultConfigFilename), []byte(ini), 0600))

	cfg, err := parseConfig([]string{
		"--datadir", dataDir,
		"--store", "memory",
		"--listen", "127.0.0.1:8080",
		"--publicurl", "https://pay.example.com",
		"--channel.maxfundingsat", "200000",
	})
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Node)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, uint64(5000), cfg.Pay.MaxSendable)
	assert.Equal(t, "Coffee", cfg.Pay.Description)
	assert.Equal(t, int64(200000), cfg.Channel.MaxFundingSat)
	assert.Equal(t, "pay.example.com", cfg.PublicUrl.Host)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listeners[0].String())
}

func TestParseConfigRejects(t *testing.T) {
	dataDir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing explicit config file", []string{"--configfile", filepath.Join(dataDir, "missing.conf")}},
		{"inverted pay bounds", []string{"--pay.minsendable", "5000", "--pay.maxsendable", "1000"}},
		{"valkey without url", []string{"--store", "valkey"}},
		{"public url without scheme", []string{"--publicurl", "localhost:5000"}},
		{"unknown node", []string{"--node", "eclair"}},
		{"bad listener", []string{"--listen", "127.0.0.1:notaport"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseConfig(append([]string{"--datadir", dataDir}, test.args...))
			assert.Error(t, err)
		})
	}
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("LNURLD_TEST_DIR", "/tmp/lnurld")

	assert.Equal(t, "", cleanAndExpandPath(""))
	assert.Equal(t, "/tmp/lnurld/data", cleanAndExpandPath("$LNURLD_TEST_DIR/./data/"))
	assert.NotContains(t, cleanAndExpandPath("~/lnurld"), "~")
}
