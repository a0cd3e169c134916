package valkey

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/challenge/storetest"
)

func TestImpl(t *testing.T) {
	url := os.Getenv("LNURLD_TEST_VALKEY_URL")
	if url == "" {
		t.Skip("LNURLD_TEST_VALKEY_URL is not set")
		return
	}

	store, err := New(context.Background(), &Config{
		URL:    url,
		Prefix: "lnurld-test:" + t.Name() + ":",
	})
	require.NoError(t, err)
	defer store.Close()

	storetest.Common(t, store)
}

func TestConfigValid(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:        "empty config",
			config:      Config{},
			expectError: ErrNoURL,
		},
		{
			name:   "valid URL",
			config: Config{URL: "redis://localhost:6379"},
		},
		{
			name:        "invalid URL",
			config:      Config{URL: "invalid-url"},
			expectError: ErrBadURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Valid()

			if tt.expectError == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.expectError)
		})
	}
}
