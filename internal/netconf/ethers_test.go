package netconf_test

import (
	"testing"

	"github.com/mafik/gatekeeperd/internal/netconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEthers(t *testing.T) {
	path := writeFile(t, ""+
		"aa:bb:cc:00:00:01 Printer # comment\n"+
		"# full comment line\n"+
		"not-a-mac host\n"+
		"aa:bb:cc:00:00:02 laptop\n")

	entries, err := netconf.ParseEthers(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "aa:bb:cc:00:00:01", entries[0].MAC.String())
	assert.Equal(t, "printer", entries[0].Hostname)
	assert.Equal(t, "aa:bb:cc:00:00:02", entries[1].MAC.String())
	assert.Equal(t, "laptop", entries[1].Hostname)
}
