package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CTF_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "tasks.cfrt.dev", cfg.BaseDomain)
	require.Equal(t, "wildcard-cert", cfg.TLSCert)
	require.Equal(t, time.Hour, cfg.InstanceTTL)
	require.Equal(t, ProviderHTTP, cfg.OrchestratorProvider)
	require.Equal(t, "https://challenge-manager.cfrt.dev", cfg.OrchestratorURL)
	require.Equal(t, 63, cfg.MaxSubdomainLength)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.False(t, cfg.UploadsEnabled())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CTF_JWT_SECRET", "secret")
	t.Setenv("CTF_ORCHESTRATOR_PROVIDER", "Docker")
	t.Setenv("CTF_CHALLENGE_INSTANCE_TTL", "30m")
	t.Setenv("CTF_CHALLENGE_IMAGE_PULL_SECRETS", "registry-a, registry-b,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderDocker, cfg.OrchestratorProvider)
	require.Equal(t, 30*time.Minute, cfg.InstanceTTL)
	require.Equal(t, []string{"registry-a", "registry-b"}, cfg.ImagePullSecrets)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CTF_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("CTF_JWT_SECRET", "secret")
	t.Setenv("CTF_ORCHESTRATOR_PROVIDER", "nomad")

	_, err := Load()
	require.Error(t, err)
}
