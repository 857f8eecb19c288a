package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTargetCarriesCADKeysAsEnv(t *testing.T) {
	s := New("s-1", "doc-9", Credentials{ModelAPIKey: "sk", CADAccessKey: "ak", CADSecretKey: "sec"})
	target := s.Target()
	require.Equal(t, "s-1", target.SessionID)
	require.Equal(t, "doc-9", target.DocumentID)
	require.Equal(t, []string{"ONSHAPE_DEV_ACCESS=ak", "ONSHAPE_DEV_SECRET=sec"}, target.Env)
	require.False(t, s.StartedAt.IsZero())
}

func TestCredentialsNeverPrintSecrets(t *testing.T) {
	c := Credentials{ModelAPIKey: "sk-secret", CADAccessKey: "ak"}
	out := fmt.Sprint(c)
	require.NotContains(t, out, "sk-secret")
	require.Equal(t, "credentials{model:set cad:set}", out)
	require.Equal(t, "credentials{model:unset cad:unset}", Credentials{}.String())
}
