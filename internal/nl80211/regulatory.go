package nl80211

import (
	"fmt"
	"sort"

	"github.com/mdlayher/netlink"
)

// GetRegulatory fetches the kernel's active regulatory domain.
func (c *Conn) GetRegulatory() (reg Regulatory, err error) {
	payloads, err := c.dump(cmdGetReg, nil)
	if err != nil {
		return Regulatory{}, fmt.Errorf("getting regulatory domain: %w", err)
	}

	for _, p := range payloads {
		parsed, parseErr := parseRegulatory(p)
		if parseErr != nil {
			return Regulatory{}, fmt.Errorf("parsing regulatory domain: %w", parseErr)
		}

		if parsed.Alpha2 != "" {
			reg.Alpha2 = parsed.Alpha2
		}
		reg.Rules = append(reg.Rules, parsed.Rules...)
	}

	sort.Slice(reg.Rules, func(i, j int) bool {
		return reg.Rules[i].FreqRangeStart < reg.Rules[j].FreqRangeStart
	})

	return reg, nil
}

// SetRegulatoryDomain requests the kernel switch its regulatory domain to
// the given ISO 3166-1 alpha-2 country code (NL80211_CMD_REQ_SET_REG),
// matching Netlink::SetRegulatoryDomain in the reference implementation.
// The kernel applies this best-effort and may ignore it (self-managed
// wiphys, missing CRDA); callers should re-read [Conn.GetRegulatory]
// afterwards rather than assume it took effect.
func (c *Conn) SetRegulatoryDomain(alpha2 string) (err error) {
	if len(alpha2) != 2 {
		return fmt.Errorf("setting regulatory domain: alpha2 code %q must be 2 characters", alpha2)
	}

	ae := netlink.NewAttributeEncoder()
	ae.String(attrRegAlpha2, alpha2)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("encoding REQ_SET_REG: %w", err)
	}

	if err = c.do(cmdReqSetReg, attrs); err != nil {
		return fmt.Errorf("setting regulatory domain to %q: %w", alpha2, err)
	}

	return nil
}

func parseRegulatory(data []byte) (reg Regulatory, err error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return Regulatory{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case attrRegAlpha2:
			reg.Alpha2 = ad.String()
		case attrRegRules:
			ad.Nested(func(nested *netlink.AttributeDecoder) error {
				for nested.Next() {
					rule, ruleErr := parseRegRule(nested.Bytes())
					if ruleErr != nil {
						return ruleErr
					}
					reg.Rules = append(reg.Rules, rule)
				}

				return nested.Err()
			})
		}
	}

	return reg, ad.Err()
}

func parseRegRule(data []byte) (rule RegRule, err error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return RegRule{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case regRuleAttrFlags:
			rule.Flags = ad.Uint32()
		case regRuleAttrFreqRangeStart:
			rule.FreqRangeStart = ad.Uint32()
		case regRuleAttrFreqRangeEnd:
			rule.FreqRangeEnd = ad.Uint32()
		case regRuleAttrFreqRangeMaxBW:
			rule.MaxBandwidth = ad.Uint32()
		case regRuleAttrPowerMaxEIRP:
			rule.MaxEIRP = ad.Uint32()
		}
	}

	return rule, ad.Err()
}

// Check reports whether a channel centered at centerMHz with the given
// bandwidth (in MHz) lies entirely within contiguous, sufficiently-wide
// regulatory rules.
//
// All arithmetic is in kHz to match the kernel's regulatory rule units.
func (reg Regulatory) Check(centerMHz, bandwidthMHz uint32) bool {
	centerKHz := centerMHz * 1000
	bandwidthKHz := bandwidthMHz * 1000
	lowKHz := centerKHz - bandwidthKHz/2
	highKHz := centerKHz + bandwidthKHz/2

	a := -1
	for i, r := range reg.Rules {
		if r.FreqRangeStart <= lowKHz && r.FreqRangeEnd >= lowKHz {
			a = i

			break
		}
	}
	if a == -1 {
		return false
	}

	b := -1
	for i := len(reg.Rules) - 1; i >= 0; i-- {
		r := reg.Rules[i]
		if r.FreqRangeStart <= highKHz && r.FreqRangeEnd >= highKHz {
			b = i

			break
		}
	}
	if b == -1 {
		return false
	}

	for i := a; i <= b; i++ {
		if i > a && reg.Rules[i].FreqRangeStart != reg.Rules[i-1].FreqRangeEnd {
			return false
		}
		if reg.Rules[i].MaxBandwidth < bandwidthKHz {
			return false
		}
	}

	return true
}

// Channels enumerates every (frequency, width) combination w advertises,
// filtered against reg. For each frequency the narrowest variety comes
// first (20 MHz without HT, then HT20, then the wider HT/VHT channels).
// Mirrors Wiphy::GetChannels in the reference implementation.
func (w Wiphy) Channels(reg Regulatory) (channels []Channel) {
	for _, band := range w.Bands {
		for _, freq := range band.Frequencies {
			if freq.Disabled || freq.NoIR {
				continue
			}
			if !reg.Check(freq.FrequencyMHz, 20) {
				continue
			}

			channels = append(channels, Channel{
				Width:        ChanWidth20NoHT,
				FrequencyMHz: freq.FrequencyMHz,
			})

			if !band.HasHT {
				continue
			}

			channels = append(channels, Channel{
				Width:        ChanWidth20,
				FrequencyMHz: freq.FrequencyMHz,
			})

			if !freq.NoHT40Minus && reg.Check(freq.FrequencyMHz-10, 40) {
				channels = append(channels, Channel{
					Width:        ChanWidth40,
					FrequencyMHz: freq.FrequencyMHz,
					CenterFreq1:  freq.FrequencyMHz - 10,
				})
			}

			if !freq.NoHT40Plus && reg.Check(freq.FrequencyMHz+10, 40) {
				channels = append(channels, Channel{
					Width:        ChanWidth40,
					FrequencyMHz: freq.FrequencyMHz,
					CenterFreq1:  freq.FrequencyMHz + 10,
				})
			}

			if !band.HasVHT {
				continue
			}

			if !freq.No80MHz {
				for _, off := range []int{-30, -10, 10, 30} {
					center1 := uint32(int(freq.FrequencyMHz) + off)
					if !reg.Check(center1, 80) {
						continue
					}

					channels = append(channels, Channel{
						Width:        ChanWidth80,
						FrequencyMHz: freq.FrequencyMHz,
						CenterFreq1:  center1,
					})
				}
			}

			if !freq.No160MHz {
				for _, off := range []int{-70, -50, -30, -10, 10, 30, 50, 70} {
					center1 := uint32(int(freq.FrequencyMHz) + off)
					if reg.Check(center1, 160) {
						channels = append(channels, Channel{
							Width:        ChanWidth160,
							FrequencyMHz: freq.FrequencyMHz,
							CenterFreq1:  center1,
						})
					}
				}
			}
		}
	}

	return channels
}

// ChooseChannel picks a usable channel for AP operation: prefer the widest
// 5 GHz channel available (80 MHz, then 40, then 20), falling back to the
// 2.4 GHz band. It's a policy choice layered on top of [Wiphy.Channels],
// grounded on the reference implementation's preference for a "5 GHz 80 MHz
// channel" called out in the channel-selection helper's doc comment.
func (w Wiphy) ChooseChannel(reg Regulatory) (ch Channel, ok bool) {
	candidates := w.Channels(reg)

	rank := func(c Channel) int {
		is5GHz := c.FrequencyMHz >= 5000

		score := 0
		if is5GHz {
			score += 100
		}

		switch c.Width {
		case ChanWidth80:
			score += 40
		case ChanWidth40:
			score += 20
		case ChanWidth20:
			score += 10
		}

		return score
	}

	best := -1
	for i, c := range candidates {
		if best == -1 || rank(c) > rank(candidates[best]) {
			best = i
		}
	}

	if best == -1 {
		return Channel{}, false
	}

	return candidates[best], true
}
