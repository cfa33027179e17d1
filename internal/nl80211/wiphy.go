package nl80211

import (
	"fmt"

	"github.com/mdlayher/netlink"
)

// GetWiphys enumerates every physical radio visible to the kernel, with its
// supported bands and per-band frequency list.
func (c *Conn) GetWiphys() (wiphys []Wiphy, err error) {
	payloads, err := c.dump(cmdGetWiphy, nil)
	if err != nil {
		return nil, fmt.Errorf("getting wiphys: %w", err)
	}

	byIndex := map[int]*Wiphy{}
	var order []int

	for _, p := range payloads {
		w, parseErr := parseWiphyMessage(p)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing wiphy dump: %w", parseErr)
		}

		existing, ok := byIndex[w.Index]
		if !ok {
			wCopy := w
			byIndex[w.Index] = &wCopy
			order = append(order, w.Index)

			continue
		}

		// Split-dump responses: later messages for the same wiphy index add
		// more bands (NL80211_CMD_GET_WIPHY is often split per band).
		existing.Bands = append(existing.Bands, w.Bands...)
		if existing.Name == "" {
			existing.Name = w.Name
		}
	}

	for _, idx := range order {
		wiphys = append(wiphys, *byIndex[idx])
	}

	return wiphys, nil
}

func parseWiphyMessage(data []byte) (w Wiphy, err error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return Wiphy{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case attrWiphy:
			w.Index = int(ad.Uint32())
		case attrWiphyName:
			w.Name = ad.String()
		case attrWiphyBands:
			ad.Nested(func(nested *netlink.AttributeDecoder) error {
				for nested.Next() {
					band, bandErr := parseBand(nested.Type(), nested.Bytes())
					if bandErr != nil {
						return bandErr
					}
					w.Bands = append(w.Bands, band)
				}

				return nested.Err()
			})
		}
	}

	return w, ad.Err()
}

func parseBand(number uint16, data []byte) (band Band, err error) {
	band.Number = uint32(number)

	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return Band{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case bandAttrFreqs:
			ad.Nested(func(nested *netlink.AttributeDecoder) error {
				for nested.Next() {
					freq, freqErr := parseFrequency(nested.Bytes())
					if freqErr != nil {
						return freqErr
					}
					band.Frequencies = append(band.Frequencies, freq)
				}

				return nested.Err()
			})
		case bandAttrHTCapa:
			band.HasHT = true
		case bandAttrVHTCapa:
			band.HasVHT = true
		}
	}

	return band, ad.Err()
}

func parseFrequency(data []byte) (f Frequency, err error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return Frequency{}, err
	}

	for ad.Next() {
		switch ad.Type() {
		case freqAttrFreq:
			f.FrequencyMHz = ad.Uint32()
		case freqAttrDisabled:
			f.Disabled = true
		case freqAttrNoIR:
			f.NoIR = true
		case freqAttrRadar:
			f.Radar = true
		case freqAttrMaxTxPower:
			f.MaxTxPower100 = ad.Uint32()
		case freqAttrIndoorOnly:
			f.IndoorOnly = true
		case freqAttrNoHT40Minus:
			f.NoHT40Minus = true
		case freqAttrNoHT40Plus:
			f.NoHT40Plus = true
		case freqAttrNo80MHz:
			f.No80MHz = true
		case freqAttrNo160MHz:
			f.No160MHz = true
		case freqAttrDFSState:
			state := ad.Uint32()
			f.DFS = &DFS{State: state}
		}
	}

	return f, ad.Err()
}
