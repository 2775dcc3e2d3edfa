package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}

func TestPublicIDKeepsExtension(t *testing.T) {
	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret"}, zerolog.Nop())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.Equal(t, "source-code-1700000000.zip", svc.publicID("source-code.zip"))
	require.Equal(t, "attachment-1700000000.bin", svc.publicID(".bin"))
}

func TestJoinFolderSkipsEmptyParts(t *testing.T) {
	require.Equal(t, "ctf/challenges/7", joinFolder("/ctf/", "challenges/7", ""))
	require.Equal(t, "challenges/7", joinFolder("", "/challenges/7/"))
}
