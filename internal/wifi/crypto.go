// Package wifi implements a WPA2-Personal access point: beacon construction,
// channel selection, and the 4-way handshake, grounded on
// original_source/src/wifi.cc.
package wifi

import (
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// derivePSK converts a WPA2-Personal passphrase into the 256-bit PSK used as
// the PRF key for PTK derivation, per IEEE 802.11-2016 §J.4.1.
func derivePSK(passphrase, ssid string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
}

// prf is the IEEE 802.11 PRF (Pseudo-Random Function) used to derive the
// PTK, iterating HMAC-SHA1 over label||0x00||data||counter per 160-bit
// chunk, matching the reference implementation's PRF in wifi.cc.
func prf(out []byte, key []byte, label string, data []byte) {
	n := (len(out) + sha1.Size - 1) / sha1.Size

	for i := 0; i < n; i++ {
		m := hmac.New(sha1.New, key)
		m.Write([]byte(label))
		m.Write([]byte{0})
		m.Write(data)
		m.Write([]byte{byte(i)})
		sum := m.Sum(nil)

		copy(out[i*sha1.Size:], sum)
	}
}

// derivePTK computes the 48-byte Pairwise Transient Key from the PSK, the
// two station MAC addresses, and the two handshake nonces. The MAC pair and
// nonce pair are each ordered lexicographically (min first), matching PTK
// in wifi.cc.
func derivePTK(psk []byte, apMAC, staMAC [6]byte, aNonce, sNonce [32]byte) (ptk [48]byte) {
	var msg [6 + 6 + 32 + 32]byte

	if bytes.Compare(apMAC[:], staMAC[:]) < 0 {
		copy(msg[0:6], apMAC[:])
		copy(msg[6:12], staMAC[:])
	} else {
		copy(msg[0:6], staMAC[:])
		copy(msg[6:12], apMAC[:])
	}

	if bytes.Compare(aNonce[:], sNonce[:]) < 0 {
		copy(msg[12:44], aNonce[:])
		copy(msg[44:76], sNonce[:])
	} else {
		copy(msg[12:44], sNonce[:])
		copy(msg[44:76], aNonce[:])
	}

	prf(ptk[:], psk, "Pairwise key expansion", msg[:])

	return ptk
}

// KCK, KEK and TK are the three 16-byte sub-keys of a PTK: KCK authenticates
// EAPOL-Key frames (MIC), KEK encrypts key data (AES key wrap), TK is
// installed as the pairwise CCMP session key.
func kck(ptk [48]byte) []byte { return ptk[0:16] }
func kek(ptk [48]byte) []byte { return ptk[16:32] }
func tk(ptk [48]byte) []byte  { return ptk[32:48] }

// computeMIC returns the 16-byte HMAC-SHA1 MIC of frame, as used over an
// EAPOL-Key body with its Key MIC field zeroed.
func computeMIC(key, frame []byte) [16]byte {
	m := hmac.New(sha1.New, key)
	m.Write(frame)
	sum := m.Sum(nil)

	var mic [16]byte
	copy(mic[:], sum[:16])

	return mic
}

// aesKeyWrap implements RFC 3394 AES Key Wrap, used to encrypt the GTK KDE
// carried in EAPOL-Key message 3/4. plaintext must be a multiple of 8 bytes.
func aesKeyWrap(kek, plaintext []byte) (wrapped []byte, err error) {
	if len(plaintext)%8 != 0 || len(plaintext) == 0 {
		return nil, fmt.Errorf("wifi: key wrap: plaintext length %d not a non-zero multiple of 8", len(plaintext))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("wifi: key wrap: %w", err)
	}

	n := len(plaintext) / 8
	r := make([][8]byte, n)
	for i := range r {
		copy(r[i][:], plaintext[i*8:(i+1)*8])
	}

	var a [8]byte
	for i := range a {
		a[i] = 0xA6
	}

	var buf [16]byte
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[0:8], a[:])
			copy(buf[8:16], r[i-1][:])
			block.Encrypt(buf[:], buf[:])

			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)
			for k := range a {
				a[k] = buf[k] ^ tb[k]
			}
			copy(r[i-1][:], buf[8:16])
		}
	}

	out := make([]byte, 8+len(plaintext))
	copy(out[0:8], a[:])
	for i := range r {
		copy(out[8+i*8:], r[i][:])
	}

	return out, nil
}

// aesKeyUnwrap reverses [aesKeyWrap], returning an error if the default
// integrity check value A = 0xA6A6A6A6A6A6A6A6 does not verify.
func aesKeyUnwrap(kek, wrapped []byte) (plaintext []byte, err error) {
	if len(wrapped) < 16 || len(wrapped)%8 != 0 {
		return nil, fmt.Errorf("wifi: key unwrap: invalid wrapped length %d", len(wrapped))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("wifi: key unwrap: %w", err)
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[0:8])

	r := make([][8]byte, n)
	for i := range r {
		copy(r[i][:], wrapped[8+i*8:16+i*8])
	}

	var buf [16]byte
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)

			var xored [8]byte
			for k := range a {
				xored[k] = a[k] ^ tb[k]
			}

			copy(buf[0:8], xored[:])
			copy(buf[8:16], r[i-1][:])
			block.Decrypt(buf[:], buf[:])

			copy(a[:], buf[0:8])
			copy(r[i-1][:], buf[8:16])
		}
	}

	for _, b := range a {
		if b != 0xA6 {
			return nil, fmt.Errorf("wifi: key unwrap: integrity check failed")
		}
	}

	plaintext = make([]byte, 0, n*8)
	for i := range r {
		plaintext = append(plaintext, r[i][:]...)
	}

	return plaintext, nil
}
