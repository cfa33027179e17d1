package nl80211

// DFS describes a frequency's Dynamic Frequency Selection state.
type DFS struct {
	State      uint32
	TimeMS     uint32
	CACTimeMS  uint32
}

// Frequency is one channel a wiphy can operate on.
type Frequency struct {
	FrequencyMHz   uint32
	Disabled       bool
	NoIR           bool
	Radar          bool
	MaxTxPower100  uint32 // mBm, i.e. 100*dBm
	DFS            *DFS
	IndoorOnly     bool
	NoHT40Minus    bool
	NoHT40Plus     bool
	No80MHz        bool
	No160MHz       bool
}

// Band is one of a wiphy's supported frequency bands (2.4 GHz, 5 GHz, ...).
type Band struct {
	Number      uint32
	Frequencies []Frequency
	HasHT       bool
	HasVHT      bool
}

// Wiphy is a physical radio, as enumerated by NL80211_CMD_GET_WIPHY.
type Wiphy struct {
	Index int
	Name  string
	Bands []Band
}

// RegRule is one rule of the active regulatory domain.
type RegRule struct {
	Flags          uint32
	FreqRangeStart uint32 // kHz
	FreqRangeEnd   uint32 // kHz
	MaxBandwidth   uint32 // kHz
	MaxEIRP        uint32 // mBm
}

// Regulatory is the active regulatory domain, as returned by
// NL80211_CMD_GET_REG.
type Regulatory struct {
	Alpha2 string
	Rules  []RegRule
}

// Interface is a virtual wireless interface (NL80211_CMD_GET_INTERFACE).
type Interface struct {
	Index  int
	Wiphy  int
	Name   string
	Type   uint32
	MAC    [6]byte
}

// Channel is a candidate (frequency, width) pair produced by channel
// selection.
type Channel struct {
	FrequencyMHz uint32
	Width        uint32 // one of the ChanWidth* constants
	CenterFreq1  uint32
}
