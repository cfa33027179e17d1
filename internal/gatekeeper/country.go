package gatekeeper

import (
	"strconv"
	"strings"
)

// alpha2 is a small built-in table mapping the accepted two-letter country
// codes (including the "UK" alias) to ISO 3166-1 alpha-2 codes, grounded on the GetMachineCountry* heuristic in
// original_source/src/country.cc. The reference ships the full 249-country
// ISO 3166 table; that table is excluded per spec.md's country/timezone
// tables non-goal, so this covers only the handful of regulatory domains a
// home gateway is actually likely to run under.
var alpha2 = map[string]string{
	"US": "US", "GB": "GB", "UK": "GB", "DE": "DE", "FR": "FR", "PL": "PL",
	"NL": "NL", "CA": "CA", "AU": "AU", "JP": "JP", "BR": "BR", "IN": "IN",
	"CN": "CN", "ES": "ES", "IT": "IT", "SE": "SE", "NO": "NO", "FI": "FI",
}

// numericToAlpha2 maps a handful of ISO 3166-1 numeric codes (as COUNTRY
// may carry, e.g. "840" for the US) to the same alpha-2 set above.
var numericToAlpha2 = map[string]string{
	"840": "US", "826": "GB", "276": "DE", "250": "FR", "616": "PL",
	"528": "NL", "124": "CA", "036": "AU", "392": "JP", "076": "BR",
	"356": "IN", "156": "CN", "724": "ES", "380": "IT", "752": "SE",
	"578": "NO", "246": "FI",
}

// RegulatoryDomain picks the ISO 3166-1 alpha-2 country code that the
// daemon passes to [nl80211.Conn.SetRegulatoryDomain], following
// original_source/src/country.cc's GetMachineCountrySlow precedence:
// COUNTRY env var, then LANG, then LANGUAGE; "" if nothing matches.
func (c Config) RegulatoryDomain() string {
	if cc, ok := fromCountryEnv(c.Country); ok {
		return cc
	}
	if cc, ok := fromLangEnv(c.Lang); ok {
		return cc
	}
	if cc, ok := fromLangEnv(c.Language); ok {
		return cc
	}

	return ""
}

// fromCountryEnv accepts either a 2-letter alpha-2 code or a numeric ISO
// 3166-1 code, matching GetMachineCountryFromEnv's all-digits/alpha-2
// branches.
func fromCountryEnv(v string) (code string, ok bool) {
	if v == "" {
		return "", false
	}

	v = strings.ToUpper(v)
	if _, err := strconv.Atoi(v); err == nil {
		code, ok = numericToAlpha2[v]

		return code, ok
	}

	if len(v) != 2 {
		return "", false
	}
	code, ok = alpha2[v]

	return code, ok
}

// fromLangEnv extracts the territory from a POSIX locale string of the form
// "ll_TT.ENCODING" (e.g. "en_US.UTF-8"), matching LangStringToCountry's
// "substring after the underscore" rule.
func fromLangEnv(v string) (code string, ok bool) {
	underscore := strings.IndexByte(v, '_')
	if underscore < 0 || len(v) < underscore+3 {
		return "", false
	}

	territory := strings.ToUpper(v[underscore+1 : underscore+3])
	code, ok = alpha2[territory]

	return code, ok
}
