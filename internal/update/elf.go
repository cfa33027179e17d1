package update

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// versionSectionName and sigSectionName are the two ELF notes an update
// image must carry, mirroring ".note.maf.version" and
// ".note.maf.sig.ed25519" from original_source/src/update.cc, renamed for
// this project.
const (
	versionSectionName = ".note.gatekeeper.version"
	sigSectionName     = ".note.gatekeeper.sig.ed25519"
)

// ed25519SignatureSize is the fixed size of an Ed25519 signature (R || S).
const ed25519SignatureSize = 64

// note is one parsed Elf64_Nhdr record: a 4-byte-aligned name and
// descriptor, per the generic ELF note format (not specific to any one
// note owner).
type note struct {
	typ  uint32
	name string
	desc []byte
}

// readNotes parses every note record out of a SHT_NOTE section's raw bytes.
func readNotes(data []byte) (notes []note, err error) {
	for len(data) > 0 {
		if len(data) < 12 {
			return nil, fmt.Errorf("update: truncated note header")
		}

		nameSz := binary.LittleEndian.Uint32(data[0:4])
		descSz := binary.LittleEndian.Uint32(data[4:8])
		typ := binary.LittleEndian.Uint32(data[8:12])
		data = data[12:]

		name, data2, err := takeAligned(data, nameSz)
		if err != nil {
			return nil, fmt.Errorf("update: note name: %w", err)
		}
		data = data2

		desc, data3, err := takeAligned(data, descSz)
		if err != nil {
			return nil, fmt.Errorf("update: note desc: %w", err)
		}
		data = data3

		notes = append(notes, note{typ: typ, name: string(bytes.TrimRight(name, "\x00")), desc: desc})
	}

	return notes, nil
}

// takeAligned consumes n bytes from data plus zero-padding up to the next
// 4-byte boundary, as ELF notes require.
func takeAligned(data []byte, n uint32) (taken, rest []byte, err error) {
	if uint64(n) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("field length %d exceeds remaining %d bytes", n, len(data))
	}

	taken = data[:n]
	padded := (n + 3) &^ 3
	if uint64(padded) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("padded field length %d exceeds remaining %d bytes", padded, len(data))
	}

	return taken, data[padded:], nil
}

// encodeNote builds a single SHT_NOTE section's raw bytes for (name, typ,
// desc), the inverse of [readNotes]. Used by tests to construct synthetic
// update images.
func encodeNote(name string, typ uint32, desc []byte) []byte {
	nameBytes := append([]byte(name), 0)

	var buf bytes.Buffer
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(nameBytes)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(desc)))
	binary.LittleEndian.PutUint32(hdr[8:12], typ)
	buf.Write(hdr[:])
	buf.Write(nameBytes)
	buf.Write(make([]byte, padLen(len(nameBytes))))
	buf.Write(desc)
	buf.Write(make([]byte, padLen(len(desc))))

	return buf.Bytes()
}

func padLen(n int) int {
	return (4 - n%4) % 4
}

// findNoteDesc locates the first note in the named section and returns its
// descriptor bytes, along with the descriptor's absolute byte offset within
// the file (needed by the caller to zero the signature in place before
// verifying).
func findNoteDesc(f *elf.File, sectionName string) (desc []byte, fileOffset int64, err error) {
	sec := f.Section(sectionName)
	if sec == nil {
		return nil, 0, fmt.Errorf("update: section %q not found", sectionName)
	}

	data, err := sec.Data()
	if err != nil {
		return nil, 0, fmt.Errorf("update: reading section %q: %w", sectionName, err)
	}
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("update: section %q too small for a note header", sectionName)
	}

	nameSz := binary.LittleEndian.Uint32(data[0:4])
	descSz := binary.LittleEndian.Uint32(data[4:8])

	namePadded := (nameSz + 3) &^ 3
	descOff := int64(sec.Offset) + 12 + int64(namePadded)

	if descOff+int64(descSz) > int64(sec.Offset)+int64(len(data)) {
		return nil, 0, fmt.Errorf("update: section %q: descriptor out of bounds", sectionName)
	}

	descStart := 12 + int64(namePadded)

	return data[descStart : descStart+int64(descSz)], descOff, nil
}
