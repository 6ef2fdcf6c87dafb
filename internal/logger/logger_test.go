package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDestination(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "hydra.log")

	l, err := New(Info, []Destination{DestinationFile}, fpath)
	require.NoError(t, err)

	l.Log(Debug, "hidden %d", 1)
	l.Log(Warn, "visible %d", 2)
	p := &Prefixed{Prefix: "[sink 0]", Parent: l}
	p.Log(Error, "failed: %v", "boom")
	l.Close()

	buf, err := os.ReadFile(fpath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "WAR visible 2"))
	require.True(t, strings.HasSuffix(lines[1], "ERR [sink 0] failed: boom"))
}
