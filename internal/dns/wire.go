// Package dns implements the caching/forwarding DNS proxy and minimal
// authoritative resolver described in spec.md §4.7: a hand-rolled RFC 1035
// wire codec (grounded on original_source/src/dns.cc's Header/Question/
// Record layout, not github.com/miekg/dns — spec.md §9 requires the codec
// be hand-written), a Pending/Ready cache, and the LAN server / WAN client
// sockets that share it.
package dns

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 12-byte RFC 1035 message header. The bit-field layout
// of the flags word (QR/Opcode/AA/TC/RD/RA/Z/RCODE) matches the wire order
// exactly; Go has no native bit-field syntax so it is packed/unpacked by
// hand in [DecodeHeader]/[Header.Encode].
type Header struct {
	ID      uint16
	QR      bool // query (false) or response (true)
	Opcode  uint8
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	RCode   uint8
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Opcodes (RFC 1035 §4.1.1).
const (
	OpQuery  = 0
	OpIQuery = 1
	OpStatus = 2
)

// Response codes (RFC 1035 §4.1.1).
const (
	RCodeNoError        = 0
	RCodeFormatError    = 1
	RCodeServerFailure  = 2
	RCodeNameError      = 3
	RCodeNotImplemented = 4
	RCodeRefused        = 5
)

// Record types this proxy cares about (RFC 1035 §3.2.2). Anything else
// round-trips through [RData] untouched.
const (
	TypeA     = 1
	TypeNS    = 2
	TypeCNAME = 5
	TypeSOA   = 6
	TypePTR   = 12
	TypeMX    = 15
	TypeTXT   = 16
	TypeAAAA  = 28

	ClassIN = 1
)

const headerLen = 12

// DecodeHeader unpacks the first 12 bytes of buf.
func DecodeHeader(buf []byte) (h Header, err error) {
	if len(buf) < headerLen {
		return Header{}, fmt.Errorf("dns: header: need %d bytes, got %d", headerLen, len(buf))
	}

	flags := binary.BigEndian.Uint16(buf[2:4])
	h = Header{
		ID:      binary.BigEndian.Uint16(buf[0:2]),
		QR:      flags&0x8000 != 0,
		Opcode:  uint8(flags>>11) & 0xF,
		AA:      flags&0x0400 != 0,
		TC:      flags&0x0200 != 0,
		RD:      flags&0x0100 != 0,
		RA:      flags&0x0080 != 0,
		RCode:   uint8(flags) & 0xF,
		QDCount: binary.BigEndian.Uint16(buf[4:6]),
		ANCount: binary.BigEndian.Uint16(buf[6:8]),
		NSCount: binary.BigEndian.Uint16(buf[8:10]),
		ARCount: binary.BigEndian.Uint16(buf[10:12]),
	}

	return h, nil
}

// Encode appends h's 12-byte wire form to buf.
func (h Header) Encode(buf []byte) []byte {
	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0xF) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.RCode & 0xF)

	var tmp [headerLen]byte
	binary.BigEndian.PutUint16(tmp[0:2], h.ID)
	binary.BigEndian.PutUint16(tmp[2:4], flags)
	binary.BigEndian.PutUint16(tmp[4:6], h.QDCount)
	binary.BigEndian.PutUint16(tmp[6:8], h.ANCount)
	binary.BigEndian.PutUint16(tmp[8:10], h.NSCount)
	binary.BigEndian.PutUint16(tmp[10:12], h.ARCount)

	return append(buf, tmp[:]...)
}

// Question is one entry of the question section, and doubles as the cache
// key (spec.md §4.7 "Hash set keyed by Question").
type Question struct {
	Name  string // lowercased, no trailing dot
	Type  uint16
	Class uint16
}

// Record is one resource record: a question triple plus TTL and payload.
type Record struct {
	Question
	TTL   uint32
	RData []byte // decompressed, canonical payload (never a compression pointer)
}

// Message is a fully decoded DNS packet.
type Message struct {
	Header
	Questions  []Question
	Answers    []Record
	Authority  []Record
	Additional []Record
}

const maxLabelLen = 63
const maxNameLen = 255
const maxPointerHops = 128

// decodeName reads a domain name starting at off, returning the name (dot
// joined, no trailing dot, lowercased) and the offset just past it in the
// *original* message (i.e. past the pointer if one was followed). Per
// spec.md §4.7 and §8, this supports RFC 1035 message compression on input,
// forbids jumping forward (only to an already-visited, strictly smaller
// offset) to rule out pointer loops, and bounds every read against len(buf).
func decodeName(buf []byte, off int) (name string, next int, err error) {
	var labels []string
	pos := off
	endPos := -1 // offset just past the name in the caller's stream, set once
	hops := 0

	for {
		if pos >= len(buf) {
			return "", 0, fmt.Errorf("dns: name: read past end of message at offset %d", pos)
		}

		lead := buf[pos]
		switch {
		case lead == 0:
			if endPos == -1 {
				endPos = pos + 1
			}

			name = joinLabels(labels)
			if len(name) > maxNameLen {
				return "", 0, fmt.Errorf("dns: name: %d bytes exceeds %d", len(name), maxNameLen)
			}

			return name, endPos, nil

		case lead&0xC0 == 0xC0:
			if pos+1 >= len(buf) {
				return "", 0, fmt.Errorf("dns: name: truncated compression pointer at offset %d", pos)
			}
			if endPos == -1 {
				endPos = pos + 2
			}

			ptr := int(lead&0x3F)<<8 | int(buf[pos+1])
			if ptr >= pos {
				return "", 0, fmt.Errorf("dns: name: forward or self-referential pointer %d >= %d", ptr, pos)
			}

			hops++
			if hops > maxPointerHops {
				return "", 0, fmt.Errorf("dns: name: too many compression hops")
			}

			pos = ptr

		case lead&0xC0 != 0:
			return "", 0, fmt.Errorf("dns: name: reserved label length bits at offset %d", pos)

		default:
			labelLen := int(lead)
			if labelLen > maxLabelLen {
				return "", 0, fmt.Errorf("dns: name: label length %d exceeds %d", labelLen, maxLabelLen)
			}
			if pos+1+labelLen > len(buf) {
				return "", 0, fmt.Errorf("dns: name: label runs past end of message")
			}

			labels = append(labels, string(buf[pos+1:pos+1+labelLen]))
			pos += 1 + labelLen
		}
	}
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += "."
		}
		out += lowerASCII(l)
	}

	return out
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}

// encodeName appends name's length-prefixed-label wire form to buf,
// terminated by a zero byte. Per spec.md §4.7, re-encoding never uses
// compression: every name is written out in full.
func encodeName(buf []byte, name string) ([]byte, error) {
	if name == "" {
		return append(buf, 0), nil
	}

	start := 0
	for i := 0; i <= len(name); i++ {
		if i < len(name) && name[i] != '.' {
			continue
		}

		label := name[start:i]
		if len(label) == 0 || len(label) > maxLabelLen {
			return nil, fmt.Errorf("dns: name: invalid label length %d in %q", len(label), name)
		}

		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
		start = i + 1
	}

	return append(buf, 0), nil
}

// decodeQuestion reads one question section entry starting at off.
func decodeQuestion(buf []byte, off int) (q Question, next int, err error) {
	name, next, err := decodeName(buf, off)
	if err != nil {
		return Question{}, 0, err
	}
	if next+4 > len(buf) {
		return Question{}, 0, fmt.Errorf("dns: question: truncated type/class")
	}

	q = Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[next : next+2]),
		Class: binary.BigEndian.Uint16(buf[next+2 : next+4]),
	}

	return q, next + 4, nil
}

func encodeQuestion(buf []byte, q Question) ([]byte, error) {
	buf, err := encodeName(buf, q.Name)
	if err != nil {
		return nil, err
	}

	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[0:2], q.Type)
	binary.BigEndian.PutUint16(tmp[2:4], q.Class)

	return append(buf, tmp[:]...), nil
}

// decodeRecord reads one resource record starting at off. CNAME/NS/PTR/SOA
// rdata containing embedded names is decompressed in place so a later
// re-encode is byte-canonical, per spec.md §8's CNAME/SOA round-trip law.
func decodeRecord(buf []byte, off int) (r Record, next int, err error) {
	name, pos, err := decodeName(buf, off)
	if err != nil {
		return Record{}, 0, err
	}
	if pos+10 > len(buf) {
		return Record{}, 0, fmt.Errorf("dns: record: truncated fixed fields")
	}

	rtype := binary.BigEndian.Uint16(buf[pos : pos+2])
	class := binary.BigEndian.Uint16(buf[pos+2 : pos+4])
	ttl := binary.BigEndian.Uint32(buf[pos+4 : pos+8])
	rdlen := int(binary.BigEndian.Uint16(buf[pos+8 : pos+10]))
	pos += 10

	if pos+rdlen > len(buf) {
		return Record{}, 0, fmt.Errorf("dns: record: rdata runs past end of message")
	}
	rdataStart := pos
	rdataEnd := pos + rdlen

	rdata, decErr := decodeRData(buf, rtype, rdataStart, rdataEnd)
	if decErr != nil {
		return Record{}, 0, decErr
	}

	r = Record{
		Question: Question{Name: name, Type: rtype, Class: class},
		TTL:      ttl,
		RData:    rdata,
	}

	return r, rdataEnd, nil
}

// decodeRData decompresses name-bearing rdata (CNAME, NS, PTR, the two
// names inside SOA) into a canonical, uncompressed form; every other
// record type is copied verbatim.
func decodeRData(buf []byte, rtype uint16, start, end int) (out []byte, err error) {
	switch rtype {
	case TypeCNAME, TypeNS, TypePTR:
		name, next, decErr := decodeName(buf, start)
		if decErr != nil {
			return nil, decErr
		}
		if next > end {
			return nil, fmt.Errorf("dns: record: name overruns rdata bounds")
		}

		return encodeName(nil, name)

	case TypeSOA:
		mname, pos, decErr := decodeName(buf, start)
		if decErr != nil {
			return nil, decErr
		}
		rname, pos2, decErr := decodeName(buf, pos)
		if decErr != nil {
			return nil, decErr
		}
		if pos2+20 > end {
			return nil, fmt.Errorf("dns: soa: truncated fixed fields")
		}

		out, err = encodeName(nil, mname)
		if err != nil {
			return nil, err
		}
		out, err = encodeName(out, rname)
		if err != nil {
			return nil, err
		}

		return append(out, buf[pos2:pos2+20]...), nil

	default:
		return append([]byte(nil), buf[start:end]...), nil
	}
}

func encodeRecord(buf []byte, r Record) ([]byte, error) {
	buf, err := encodeQuestion(buf, r.Question)
	if err != nil {
		return nil, err
	}

	var tmp [6]byte
	binary.BigEndian.PutUint32(tmp[0:4], r.TTL)
	binary.BigEndian.PutUint16(tmp[4:6], uint16(len(r.RData)))

	buf = append(buf, tmp[:]...)

	return append(buf, r.RData...), nil
}

// Decode parses a complete DNS message.
func Decode(buf []byte) (m *Message, err error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	m = &Message{Header: h}
	off := headerLen

	for i := uint16(0); i < h.QDCount; i++ {
		var q Question
		q, off, err = decodeQuestion(buf, off)
		if err != nil {
			return nil, fmt.Errorf("dns: question %d: %w", i, err)
		}
		m.Questions = append(m.Questions, q)
	}

	for _, n := range []struct {
		count uint16
		dst   *[]Record
	}{
		{h.ANCount, &m.Answers},
		{h.NSCount, &m.Authority},
		{h.ARCount, &m.Additional},
	} {
		for i := uint16(0); i < n.count; i++ {
			var r Record
			r, off, err = decodeRecord(buf, off)
			if err != nil {
				return nil, fmt.Errorf("dns: record %d: %w", i, err)
			}
			*n.dst = append(*n.dst, r)
		}
	}

	return m, nil
}

// Encode serializes m in canonical (never-compressed) form.
func Encode(m *Message) (buf []byte, err error) {
	h := m.Header
	h.QDCount = uint16(len(m.Questions))
	h.ANCount = uint16(len(m.Answers))
	h.NSCount = uint16(len(m.Authority))
	h.ARCount = uint16(len(m.Additional))

	buf = h.Encode(make([]byte, 0, headerLen+64))

	for _, q := range m.Questions {
		buf, err = encodeQuestion(buf, q)
		if err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Record{m.Answers, m.Authority, m.Additional} {
		for _, r := range section {
			buf, err = encodeRecord(buf, r)
			if err != nil {
				return nil, err
			}
		}
	}

	return buf, nil
}
