package nl80211

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fiveGHzReg covers 5170-5250 MHz (one contiguous rule wide enough for an
// 80 MHz channel) plus a disjoint narrow rule around 5600 MHz, wide enough
// only for a 20 MHz channel.
func fiveGHzReg() Regulatory {
	return Regulatory{
		Alpha2: "US",
		Rules: []RegRule{
			{FreqRangeStart: 5170_000, FreqRangeEnd: 5250_000, MaxBandwidth: 80_000},
			{FreqRangeStart: 5590_000, FreqRangeEnd: 5610_000, MaxBandwidth: 20_000},
		},
	}
}

func TestRegulatoryCheck(t *testing.T) {
	reg := fiveGHzReg()

	// 80 MHz channel centered at 5210 MHz spans 5170-5250 MHz, entirely
	// inside the first rule.
	assert.True(t, reg.Check(5210, 80))

	// The same center cannot support a 160 MHz channel; the rule is too
	// narrow.
	assert.False(t, reg.Check(5210, 160))

	// 5600 MHz only has a 20 MHz-wide rule.
	assert.True(t, reg.Check(5600, 20))
	assert.False(t, reg.Check(5600, 40))

	// Centered entirely outside any rule.
	assert.False(t, reg.Check(5800, 20))
}

func TestWiphyChannelsFiltersByRegulatory(t *testing.T) {
	w := Wiphy{
		Bands: []Band{{
			HasHT:  true,
			HasVHT: true,
			Frequencies: []Frequency{
				{FrequencyMHz: 5180}, // channel 36; its 80 MHz block is centered at 5210
				{FrequencyMHz: 5600}, // only a 20 MHz-capable rule covers this one
				{FrequencyMHz: 5800, Disabled: true},
			},
		}},
	}

	channels := w.Channels(fiveGHzReg())

	var widths []uint32
	for _, c := range channels {
		if c.FrequencyMHz == 5180 {
			widths = append(widths, c.Width)
		}
	}

	assert.Contains(t, widths, ChanWidth80)
	assert.Contains(t, widths, ChanWidth20)

	for _, c := range channels {
		assert.NotEqual(t, uint32(5800), c.FrequencyMHz, "disabled frequency must be excluded")
	}
}

func TestWiphyChooseChannelPrefersWidest5GHz(t *testing.T) {
	w := Wiphy{
		Bands: []Band{
			{
				Frequencies: []Frequency{{FrequencyMHz: 2437}},
			},
			{
				HasHT:  true,
				HasVHT: true,
				Frequencies: []Frequency{
					{FrequencyMHz: 5180},
				},
			},
		},
	}

	ch, ok := w.ChooseChannel(fiveGHzReg())
	require.True(t, ok)
	assert.Equal(t, uint32(5180), ch.FrequencyMHz)
	assert.Equal(t, ChanWidth80, ch.Width)
	assert.Equal(t, uint32(5210), ch.CenterFreq1)
}

func TestWiphyChooseChannelNoneAvailable(t *testing.T) {
	w := Wiphy{}

	_, ok := w.ChooseChannel(fiveGHzReg())
	assert.False(t, ok)
}
