package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbigot/ah5go/log"
)

func TestThreshold(t *testing.T) {
	var buf bytes.Buffer
	s := log.New()
	s.SetStream(&buf, true)
	s.SetLevel(log.Warning)

	s.Debugf("should not appear")
	s.Statusf("should not appear either")
	s.Warningf("seen once")
	s.Errorf("seen twice")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "seen once")
	require.Contains(t, out, "seen twice")
	require.Equal(t, 2, strings.Count(out, "\n"))
}

func TestSetFileOwnership(t *testing.T) {
	dir := t.TempDir()
	s := log.New()
	require.NoError(t, s.SetFile(dir+"/log.txt"))
	s.SetLevel(log.Debug)
	s.Statusf("hello")
	require.NoError(t, s.Close())
	// closing twice must not panic or error
	require.NoError(t, s.Close())
}

func TestSetStreamKeepOpen(t *testing.T) {
	var buf bytes.Buffer
	s := log.New()
	s.SetStream(&buf, true)
	require.NoError(t, s.Close())
	s.Errorf("still usable")
	require.Contains(t, buf.String(), "still usable")
}
