package wifi

import (
	"encoding/binary"
	"fmt"
)

// eapolKeyHeaderLen is the fixed portion of an EAPOL-Key frame, before the
// variable-length key data, mirroring the packed EAPOLKey struct in
// wifi.cc (protocol version/packet type/length/descriptor type/key
// information/key length/replay counter/nonce/IV/RSC/ID/MIC/key data
// length).
const eapolKeyHeaderLen = 1 + 1 + 2 + 1 + 2 + 2 + 8 + 32 + 16 + 8 + 8 + 16 + 2

// keyInformation is the 2-byte EAPOL-Key "Key Information" bitfield, laid
// out big-endian per IEEE 802.11-2016 §12.7.2, grounded on the bit order of
// eap::KeyInformation in original_source/src/eap.hh.
type keyInformation struct {
	DescriptorVersion uint8 // bits 0-2
	TypePairwise      bool  // bit 3
	KeyIndex          uint8 // bits 4-5
	Install           bool  // bit 6
	Ack               bool  // bit 7
	MIC               bool  // bit 8
	Secure            bool  // bit 9
	Error             bool  // bit 10
	Request           bool  // bit 11
	EncryptedKeyData  bool  // bit 12
	SMKMessage        bool  // bit 13
}

func (ki keyInformation) encode() uint16 {
	var v uint16

	v |= uint16(ki.DescriptorVersion&0x7) << 0
	if ki.TypePairwise {
		v |= 1 << 3
	}
	v |= uint16(ki.KeyIndex&0x3) << 4
	if ki.Install {
		v |= 1 << 6
	}
	if ki.Ack {
		v |= 1 << 7
	}
	if ki.MIC {
		v |= 1 << 8
	}
	if ki.Secure {
		v |= 1 << 9
	}
	if ki.Error {
		v |= 1 << 10
	}
	if ki.Request {
		v |= 1 << 11
	}
	if ki.EncryptedKeyData {
		v |= 1 << 12
	}
	if ki.SMKMessage {
		v |= 1 << 13
	}

	return v
}

func decodeKeyInformation(v uint16) keyInformation {
	return keyInformation{
		DescriptorVersion: uint8(v & 0x7),
		TypePairwise:      v&(1<<3) != 0,
		KeyIndex:          uint8((v >> 4) & 0x3),
		Install:           v&(1<<6) != 0,
		Ack:               v&(1<<7) != 0,
		MIC:               v&(1<<8) != 0,
		Secure:            v&(1<<9) != 0,
		Error:             v&(1<<10) != 0,
		Request:           v&(1<<11) != 0,
		EncryptedKeyData:  v&(1<<12) != 0,
		SMKMessage:        v&(1<<13) != 0,
	}
}

// eapolKey is a decoded EAPOL-Key frame, grounded on the packed EAPOLKey
// struct in wifi.cc. KeyData is whatever followed the fixed header.
type eapolKey struct {
	KeyInformation keyInformation
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	KeyIV          [16]byte
	KeyRSC         [8]byte
	KeyID          [8]byte
	KeyMIC         [16]byte
	KeyData        []byte
}

// decodeEAPOLKey parses and structurally validates buf as an EAPOL-Key
// frame, checking the fixed packet type (3, Key), descriptor type (2, RSN),
// and the two length fields against the actual buffer size, per
// EAPOLKey::FromSpan in wifi.cc.
func decodeEAPOLKey(buf []byte) (k *eapolKey, err error) {
	if len(buf) < eapolKeyHeaderLen {
		return nil, fmt.Errorf("wifi: eapol-key: frame too small (%d bytes)", len(buf))
	}

	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length) != len(buf)-4 {
		return nil, fmt.Errorf("wifi: eapol-key: wrong packet body length: header says %d, have %d", length, len(buf)-4)
	}

	packetType := buf[1]
	if packetType != 3 {
		return nil, fmt.Errorf("wifi: eapol-key: packet type %d, want 3 (Key)", packetType)
	}

	descriptorType := buf[4]
	if descriptorType != 2 {
		return nil, fmt.Errorf("wifi: eapol-key: descriptor type %d, want 2 (RSN)", descriptorType)
	}

	k = &eapolKey{
		KeyInformation: decodeKeyInformation(binary.BigEndian.Uint16(buf[5:7])),
		KeyLength:      binary.BigEndian.Uint16(buf[7:9]),
		ReplayCounter:  binary.BigEndian.Uint64(buf[9:17]),
	}
	copy(k.Nonce[:], buf[17:49])
	copy(k.KeyIV[:], buf[49:65])
	copy(k.KeyRSC[:], buf[65:73])
	copy(k.KeyID[:], buf[73:81])
	copy(k.KeyMIC[:], buf[81:97])

	keyDataLength := binary.BigEndian.Uint16(buf[97:99])
	if int(keyDataLength) != len(buf)-eapolKeyHeaderLen {
		return nil, fmt.Errorf("wifi: eapol-key: wrong key data length: header says %d, have %d", keyDataLength, len(buf)-eapolKeyHeaderLen)
	}
	k.KeyData = buf[eapolKeyHeaderLen:]

	return k, nil
}

// encodeEAPOLKey serializes k into a complete EAPOL-Key frame, leaving
// KeyMIC as the caller supplied it (zero, if the MIC has yet to be
// computed).
func encodeEAPOLKey(k *eapolKey) []byte {
	buf := make([]byte, eapolKeyHeaderLen+len(k.KeyData))

	buf[0] = 2 // IEEE 802.1X-2004
	buf[1] = 3 // Key
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)-4))
	buf[4] = 2 // Key Descriptor Type (RSN)
	binary.BigEndian.PutUint16(buf[5:7], k.KeyInformation.encode())
	binary.BigEndian.PutUint16(buf[7:9], k.KeyLength)
	binary.BigEndian.PutUint64(buf[9:17], k.ReplayCounter)
	copy(buf[17:49], k.Nonce[:])
	copy(buf[49:65], k.KeyIV[:])
	copy(buf[65:73], k.KeyRSC[:])
	copy(buf[73:81], k.KeyID[:])
	copy(buf[81:97], k.KeyMIC[:])
	binary.BigEndian.PutUint16(buf[97:99], uint16(len(k.KeyData)))
	copy(buf[99:], k.KeyData)

	return buf
}

// checkMIC verifies frame's Key MIC field against HMAC-SHA1(kckKey, frame)
// computed with the MIC field zeroed, per EAPOLKey::CheckMIC in wifi.cc.
func checkMIC(kckKey []byte, frame []byte, mic [16]byte) bool {
	zeroed := make([]byte, len(frame))
	copy(zeroed, frame)
	for i := 81; i < 97; i++ {
		zeroed[i] = 0
	}

	expected := computeMIC(kckKey, zeroed)

	return expected == mic
}
