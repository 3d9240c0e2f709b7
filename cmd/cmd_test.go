package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"server", "run", "fire", "booking", "migrate", "keys", "version"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestKeysPrintsMasterKey(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	require.NoError(t, root.Execute())

	line := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(line, "export MASTER_KEY="), line)
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, "export MASTER_KEY="))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader(""))
	assert.Error(t, err)
}
