package image

import (
	"encoding/binary"
	"testing"

	"github.com/smoynes/rv32ima/internal/hart"
)

func fakeDTB(cmdline string, ramSize uint32) []byte {
	dtb := make([]byte, ramSizeOffset+4)

	at := cmdlineOffset
	n := copy(dtb[at:at+cmdlineMaxLen], cmdline)

	for i := at + n; i < at+cmdlineMaxLen; i++ {
		dtb[i] = 0xff // distinguishable from the zero-fill patchCmdline writes
	}

	binary.BigEndian.PutUint32(dtb[ramSizeOffset:], ramSize)

	return dtb
}

func TestLoadToPlacesKernelAndDTB(t *testing.T) {
	t.Parallel()

	kernel := []byte{0x01, 0x02, 0x03, 0x04}
	dtb := fakeDTB("console=ttyS0", ramSizeSentinel)

	h := hart.New(4096)
	img := New(kernel, dtb, "console=ttyS0")

	entry, dtbAddr, err := img.LoadTo(h)
	if err != nil {
		t.Fatalf("LoadTo: %v", err)
	}

	if entry != hart.RAMBase {
		t.Errorf("entry: want %#x, got %#x", hart.RAMBase, entry)
	}

	wantDTBOffset := 4096 - len(dtb)
	if dtbAddr != hart.RAMBase+hart.Word(wantDTBOffset) {
		t.Errorf("dtbAddr: want %#x, got %#x", hart.RAMBase+hart.Word(wantDTBOffset), dtbAddr)
	}

	ram := h.Mem.RAM()

	for i, b := range kernel {
		if ram[i] != b {
			t.Errorf("kernel byte %d: want %#x, got %#x", i, b, ram[i])
		}
	}

	gotRAMSize := binary.BigEndian.Uint32(ram[wantDTBOffset+ramSizeOffset:])
	if int(gotRAMSize) != wantDTBOffset {
		t.Errorf("patched RAM size: want %d, got %d", wantDTBOffset, gotRAMSize)
	}
}

func TestLoadToRejectsOverlap(t *testing.T) {
	t.Parallel()

	h := hart.New(64)
	kernel := make([]byte, 48)
	dtb := fakeDTB("", ramSizeSentinel)

	img := New(kernel, dtb, "")

	if _, _, err := img.LoadTo(h); err == nil {
		t.Fatal("expected overlap error, got nil")
	}
}

func TestLoadToRejectsOversizedKernel(t *testing.T) {
	t.Parallel()

	h := hart.New(16)
	kernel := make([]byte, 17)

	img := New(kernel, fakeDTB("", ramSizeSentinel), "")

	if _, _, err := img.LoadTo(h); err == nil {
		t.Fatal("expected kernel-too-large error, got nil")
	}
}

func TestPatchCmdlineTruncatesAndZeroFills(t *testing.T) {
	t.Parallel()

	longCmdline := "this command line is deliberately far longer than the fifty-four byte reserved bootargs slot"

	h := hart.New(4096)
	dtb := fakeDTB("placeholder", ramSizeSentinel)
	img := New([]byte{0xde, 0xad, 0xbe, 0xef}, dtb, longCmdline)

	_, dtbAddr, err := img.LoadTo(h)
	if err != nil {
		t.Fatalf("LoadTo: %v", err)
	}

	ram := h.Mem.RAM()
	dtbOffset := int(dtbAddr - hart.RAMBase)
	at := dtbOffset + cmdlineOffset

	got := string(ram[at : at+cmdlineMaxLen])
	want := longCmdline[:cmdlineMaxLen]

	if got != want {
		t.Errorf("cmdline: want %q, got %q", want, got)
	}
}

func TestPatchRAMSizeLeavesCustomDTBAlone(t *testing.T) {
	t.Parallel()

	h := hart.New(4096)
	dtb := fakeDTB("", 0x1234) // not the sentinel
	img := New([]byte{0x00}, dtb, "")

	_, dtbAddr, err := img.LoadTo(h)
	if err != nil {
		t.Fatalf("LoadTo: %v", err)
	}

	ram := h.Mem.RAM()
	dtbOffset := int(dtbAddr - hart.RAMBase)

	got := binary.BigEndian.Uint32(ram[dtbOffset+ramSizeOffset:])
	if got != 0x1234 {
		t.Errorf("ram size field: want untouched 0x1234, got %#x", got)
	}
}

func TestLoadToThenResetSetsEntryPoint(t *testing.T) {
	t.Parallel()

	h := hart.New(4096)
	dtb := fakeDTB("", ramSizeSentinel)
	img := New([]byte{0x13, 0x00, 0x00, 0x00}, dtb, "")

	entry, dtbAddr, err := img.LoadTo(h)
	if err != nil {
		t.Fatalf("LoadTo: %v", err)
	}

	h.Reset(entry, dtbAddr)

	if h.PC() != hart.RAMBase {
		t.Errorf("pc: want %#x, got %#x", hart.RAMBase, h.PC())
	}
}
