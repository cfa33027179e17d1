package update_test

import (
	"testing"

	"github.com/mafik/gatekeeperd/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v := update.ParseVersion("v1.33.8-99-deadbeef")
	require.Equal(t, update.Version{Major: 1, Minor: 33, Patch: 8, ExtraCommits: 99, Commit: "deadbeef"}, v)
}

func TestParseVersionMalformed(t *testing.T) {
	v := update.ParseVersion("not-a-version")
	assert.Equal(t, update.Version{}, v)
}

func TestIsUpdate(t *testing.T) {
	cases := []struct {
		name            string
		current, update string
		want            bool
	}{
		{"patch bump", "v1.0.0", "v1.0.1", true},
		{"minor bump", "v1.0.9", "v1.1.0", true},
		{"major bump", "v1.9.9", "v2.0.0", true},
		{"extra commits", "v1.0.0-0-aaa", "v1.0.0-5-bbb", true},
		{"same version", "v1.0.0", "v1.0.0", false},
		{"older candidate", "v2.0.0", "v1.9.9", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := update.IsUpdate(update.ParseVersion(tc.current), update.ParseVersion(tc.update))
			assert.Equal(t, tc.want, got)
		})
	}
}
