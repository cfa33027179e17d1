package netconf_test

import (
	"net/netip"
	"testing"

	"github.com/mafik/gatekeeperd/internal/netconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolvConf(t *testing.T) {
	path := writeFile(t, ""+
		"# generated by some tool\n"+
		"nameserver 8.8.8.8\n"+
		"nameserver 2001:4860:4860::8888\n"+
		"search lan\n"+
		"nameserver 1.1.1.1\n")

	upstreams, err := netconf.ParseResolvConf(path)
	require.NoError(t, err)

	require.Len(t, upstreams, 2)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), upstreams[0])
	assert.Equal(t, netip.MustParseAddr("1.1.1.1"), upstreams[1])
}
