package netconf_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/mafik/gatekeeperd/internal/netconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) (path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

func TestParseHosts(t *testing.T) {
	path := writeFile(t, ""+
		"127.0.0.1   localhost # comment\n"+
		"192.168.1.10 printer printer.lan\n"+
		"::1 localhost6\n"+
		"malformed line with no address\n")

	h, err := netconf.ParseHosts(path)
	require.NoError(t, err)

	want := netip.MustParseAddr("192.168.1.10")
	got, ok := h.ByName["printer"]
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = h.ByName["printer.lan"]
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = h.ByName["localhost6"]
	assert.False(t, ok, "IPv6-only entries are skipped")

	loopback, ok := h.ByName["localhost"]
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), loopback)
}

func TestHostsFileNonLoopback(t *testing.T) {
	path := writeFile(t, ""+
		"127.0.0.1 localhost\n"+
		"192.168.1.10 printer\n")

	h, err := netconf.ParseHosts(path)
	require.NoError(t, err)

	nl := h.NonLoopback()
	assert.NotContains(t, nl, "localhost")
	assert.Contains(t, nl, "printer")
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), nl["printer"])
}

func TestParseHostsFirstWins(t *testing.T) {
	path := writeFile(t, ""+
		"192.168.1.10 printer\n"+
		"192.168.1.20 printer\n")

	h, err := netconf.ParseHosts(path)
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), h.ByName["printer"])
}

func TestReadHostname(t *testing.T) {
	path := writeFile(t, "gatekeeper.lan\n")

	name, err := netconf.ReadHostname(path)
	require.NoError(t, err)
	assert.Equal(t, "gatekeeper", name)
}
