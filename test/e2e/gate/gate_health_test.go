package gate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
)

// TestLivezEndpoint verifies the liveness check endpoint works before seeding.
func TestLivezEndpoint(t *testing.T) {
	g := setupGate(t, nil)
	client := authsdk.NewSDKClient(g.BaseURL)

	health, err := client.GetLiveness(t.Context())
	assertHealthy(t, health, err)
}

// TestReadyzEndpoint verifies every dependency reports ready.
func TestReadyzEndpoint(t *testing.T) {
	g := setupGate(t, nil)
	client := authsdk.NewSDKClient(g.BaseURL)

	health, err := client.GetReadiness(t.Context())
	assertHealthy(t, health, err)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Database)
	require.Equal(t, "ok", health.Checks.Signer)
	require.Equal(t, "disabled", health.Checks.OAuth)
}
