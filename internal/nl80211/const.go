// Package nl80211 is a typed binding for the subset of the nl80211 Generic
// Netlink family the access point needs: wiphy/interface/regulatory
// enumeration, the channel-selection heuristic, and the AP write operations
// (SET_INTERFACE, REGISTER_FRAME, DEL_STATION, SET_CHANNEL, START_AP,
// STOP_AP, SET_BSS, SET_MULTICAST_TO_UNICAST, NEW_KEY, SET_KEY, SET_STATION).
//
// Grounded on original_source/src/nl80211.cc and nl80211.hh. The command and
// attribute numbers below are the stable ABI from linux/nl80211.h; no example
// repo in the retrieval pack ships a typed nl80211 binding, so they are
// reproduced here as Go constants rather than imported.
package nl80211

// Commands (nl80211_commands).
const (
	cmdGetWiphy              = 1
	cmdGetInterface          = 5
	cmdSetInterface          = 6
	cmdNewKey                = 10
	cmdDelKey                = 11
	cmdSetKey                = 12
	cmdNewStation            = 19
	cmdDelStation            = 20
	cmdSetStation            = 18
	cmdGetReg                = 31
	cmdReqSetReg             = 27
	cmdSetChannel            = 65
	cmdStartAP               = 15
	cmdStopAP                = 16
	cmdSetBSS                = 29
	cmdRegisterFrame         = 67
	cmdSetMulticastToUnicast = 111
)

// Attributes (nl80211_attrs) used by this package.
const (
	attrWiphy             = 1
	attrWiphyName         = 2
	attrIfindex           = 3
	attrIftype            = 5
	attrMAC               = 6
	attrKeyData           = 7
	attrKeyIdx            = 8
	attrKeyCipher         = 9
	attrKeySeq            = 10
	attrKeyDefault        = 11
	attrWiphyFreq         = 38
	attrWiphyChannelType  = 39
	attrWiphyRetryShort   = 46
	attrWiphyRetryLong    = 47
	attrWiphyFragThresh   = 48
	attrWiphyRtsThresh    = 49
	attrWiphyCoverageCls  = 50
	attrKeyDefaultMgmt    = 133
	attrMgmtSubtype       = 59
	attrFrameType         = 60
	attrFrameMatch        = 61
	attrSSID              = 52
	attrStaFlags2         = 67
	attrStaListenInterval = 51
	attrStaSupportedRates = 33
	attrStaAID            = 14
	attrBSSCTSProt        = 69
	attrBSSShortPreamble  = 70
	attrBSSShortSlotTime  = 71
	attrBSSBasicRates     = 36
	attrMulticastToUnicast = 260
	attrWiphyBands        = 22
	attrWiphyChannelWidth = 159
	attrCenterFreq1       = 160
	attrCenterFreq2       = 161
	attrRegAlpha2         = 40
	attrRegRules          = 41
	attrDTIMPeriod        = 57
	attrBeaconInterval    = 58
	attrBeaconHead        = 53
	attrBeaconTail        = 54
	attrAuthType          = 63
	attrWPAVersions       = 64
	attrAKMSuites         = 70
	attrCipherSuitesPairwise = 71
	attrCipherSuiteGroup  = 72
	attrSocketOwner       = 204
	attrHiddenSSID        = 125
	attrReasonCode        = 51
	attrPrivacy           = 46
	attrIE                = 41
	attrIEProbeResp       = 99
	attrIEAssocResp       = 100
	attrAPIsolate         = 91
	attrBSSHTOpmode       = 182
	attrKeyDefaultTypes   = 53
)

// Key default type bits (nl80211_key_default_types), nested inside
// NL80211_KEY_DEFAULT_TYPES.
const (
	keyDefaultTypeUnicast   = 0
	keyDefaultTypeMulticast = 1
)

// NLA_F_NESTED, set on the top bit of an attribute type to mark it as
// containing nested attributes.
const nlaFNested = 1 << 15

// Band nested attributes (nl80211_band_attr).
const (
	bandAttrFreqs = 1
	bandAttrHTCapa = 4
	bandAttrVHTCapa = 8
)

// Frequency nested attributes (nl80211_frequency_attr).
const (
	freqAttrFreq         = 1
	freqAttrDisabled     = 2
	freqAttrNoIR         = 3
	freqAttrRadar        = 5
	freqAttrMaxTxPower   = 6
	freqAttrDFSState     = 8
	freqAttrNo160MHz     = 12
	freqAttrIndoorOnly   = 14
	freqAttrNoHT40Minus  = 10
	freqAttrNoHT40Plus   = 11
	freqAttrNo80MHz      = 15
)

// Regulatory rule nested attributes (nl80211_reg_rule_attr).
const (
	regRuleAttrFlags          = 1
	regRuleAttrFreqRangeStart = 2
	regRuleAttrFreqRangeEnd   = 3
	regRuleAttrFreqRangeMaxBW = 4
	regRuleAttrPowerMaxAntGain = 5
	regRuleAttrPowerMaxEIRP    = 6
)

// Station flags (nl80211_sta_flags). These are bit *indices* into the
// sta_flags_mask/sta_flags_set pair built by [Conn.SetStation], not
// pre-shifted masks.
const (
	StaFlagAuthorized    = 1
	StaFlagShortPreamble = 2
	StaFlagWME           = 3
	StaFlagMFP           = 4
	StaFlagAuthenticated = 5
	StaFlagTDLSPeer      = 6
	StaFlagAssociated    = 7
)

// Channel widths (nl80211_chan_width).
const (
	ChanWidth20NoHT = 0
	ChanWidth20     = 1
	ChanWidth40     = 2
	ChanWidth80     = 3
	ChanWidth80P80  = 4
	ChanWidth160    = 5
)

// Interface types (nl80211_iftype).
const (
	IftypeStation = 2
	IftypeAP      = 3
)

// Cipher suite selectors, as assigned by IEEE 802.11 OUI 00-0F-AC.
const (
	CipherCCMP  = 0x000FAC04
	CipherTKIP  = 0x000FAC02
	AKMPSK      = 0x000FAC02
)
