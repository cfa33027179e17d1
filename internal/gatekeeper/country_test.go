package gatekeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegulatoryDomain(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		want string
	}{{
		name: "country_alpha2",
		cfg:  Config{Country: "de"},
		want: "DE",
	}, {
		name: "country_numeric",
		cfg:  Config{Country: "840"},
		want: "US",
	}, {
		name: "lang_fallback",
		cfg:  Config{Lang: "en_GB.UTF-8"},
		want: "GB",
	}, {
		name: "language_fallback",
		cfg:  Config{Language: "pl_PL:en"},
		want: "PL",
	}, {
		name: "country_takes_precedence_over_lang",
		cfg:  Config{Country: "FR", Lang: "en_US.UTF-8"},
		want: "FR",
	}, {
		name: "nothing_matches",
		cfg:  Config{},
		want: "",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.RegulatoryDomain())
		})
	}
}
