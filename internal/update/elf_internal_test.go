package update

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseTestELF(t *testing.T, image []byte) (*elf.File, error) {
	t.Helper()

	return elf.NewFile(bytes.NewReader(image))
}

// buildTestELF assembles a minimal valid ELF64 little-endian file with one
// SHT_NOTE section per entry in notes (name -> note descriptor bytes),
// enough for [debug/elf.NewFile] to parse and for [findNoteDesc] to locate
// each section by name. This stands in for a real build toolchain's ELF
// output, which this test suite has no way to invoke.
func buildTestELF(t *testing.T, notes map[string][]byte) []byte {
	t.Helper()

	const (
		ehdrSize = 64
		shdrSize = 64
	)

	type section struct {
		name string
		typ  uint32
		data []byte
	}

	secs := []section{{name: "", typ: 0, data: nil}} // SHT_NULL
	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)

	nameOffsets := map[string]uint32{}
	addName := func(name string) uint32 {
		off := uint32(shstrtab.Len())
		shstrtab.WriteString(name)
		shstrtab.WriteByte(0)
		nameOffsets[name] = off

		return off
	}

	addName(".shstrtab")
	for name, desc := range notes {
		addName(name)
		secs = append(secs, section{name: name, typ: 7, data: encodeNote("gatekeeper", 1, desc)})
	}
	secs = append(secs, section{name: ".shstrtab", typ: 3, data: shstrtab.Bytes()})

	// Lay out section data right after the ELF header.
	offsets := make([]uint32, len(secs))
	cur := uint32(ehdrSize)
	for i, s := range secs {
		offsets[i] = cur
		cur += uint32(len(s.data))
		cur = (cur + 3) &^ 3 // keep everything 4-byte aligned
	}
	shoff := cur

	var buf bytes.Buffer

	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident[:])

	write16 := func(v uint16) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	write32 := func(v uint32) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	write64 := func(v uint64) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	write16(3)       // e_type = ET_DYN
	write16(62)      // e_machine = EM_X86_64
	write32(1)       // e_version
	write64(0)       // e_entry
	write64(0)       // e_phoff
	write64(uint64(shoff)) // e_shoff
	write32(0)       // e_flags
	write16(ehdrSize)
	write16(0) // e_phentsize
	write16(0) // e_phnum
	write16(shdrSize)
	write16(uint16(len(secs)))     // e_shnum
	write16(uint16(len(secs) - 1)) // e_shstrndx (last section)

	require.Equal(t, ehdrSize, buf.Len())

	for i, s := range secs {
		buf.Write(make([]byte, int(offsets[i])-buf.Len()))
		buf.Write(s.data)
	}
	buf.Write(make([]byte, int(shoff)-buf.Len()))

	for i, s := range secs {
		write32(nameOffsets[s.name])
		write32(s.typ)
		write64(0) // sh_flags
		write64(0) // sh_addr
		write64(uint64(offsets[i]))
		write64(uint64(len(s.data)))
		write32(0) // sh_link
		write32(0) // sh_info
		write64(1) // sh_addralign
		write64(0) // sh_entsize
	}

	return buf.Bytes()
}

func TestNoteRoundTrip(t *testing.T) {
	desc := []byte("v1.2.3-4-abcdef\x00")
	raw := encodeNote("gatekeeper", 1, desc)

	notes, err := readNotes(raw)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "gatekeeper", notes[0].name)
	require.Equal(t, uint32(1), notes[0].typ)
	require.Equal(t, desc, notes[0].desc)
}

func TestFindNoteDesc(t *testing.T) {
	versionDesc := []byte("v1.2.3-4-abcdef\x00")
	sigDesc := make([]byte, ed25519SignatureSize)
	for i := range sigDesc {
		sigDesc[i] = byte(i)
	}

	image := buildTestELF(t, map[string][]byte{
		versionSectionName: versionDesc,
		sigSectionName:     sigDesc,
	})

	f, err := parseTestELF(t, image)
	require.NoError(t, err)
	defer f.Close()

	gotVersion, _, err := findNoteDesc(f, versionSectionName)
	require.NoError(t, err)
	require.Equal(t, versionDesc, gotVersion)

	gotSig, sigOff, err := findNoteDesc(f, sigSectionName)
	require.NoError(t, err)
	require.Equal(t, sigDesc, gotSig)

	// Zeroing the signature bytes at sigOff in the original image must hit
	// exactly the signature descriptor, matching update.cc's "blank the
	// signature before verifying" step.
	for i := range gotSig {
		require.Equal(t, sigDesc[i], image[sigOff+int64(i)])
	}
}
