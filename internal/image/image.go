// Package image builds a guest RAM image: a kernel binary and a flattened
// device tree, laid out and patched in place, so unmodified SV32
// Linux/XV6-class kernels boot unchanged.
package image

import (
	"encoding/binary"
	"fmt"

	"github.com/smoynes/rv32ima/internal/hart"
	"github.com/smoynes/rv32ima/internal/log"
)

// cmdlineOffset and ramSizeOffset are byte offsets into the DTB blob that get
// patched in place; ramSizeSentinel marks a DTB built with a placeholder
// memory node the loader is expected to fix up.
const (
	cmdlineOffset   = 0xc0
	cmdlineMaxLen   = 54
	ramSizeOffset   = 0x13c
	ramSizeSentinel = 0x03ffc000
)

// Image is the guest-memory payload: a kernel image and a device tree blob,
// plus the kernel command line to splice into the DTB.
type Image struct {
	Kernel  []byte
	DTB     []byte
	Cmdline string

	log *log.Logger
}

// New creates an Image from a kernel binary and a device tree blob.
func New(kernel, dtb []byte, cmdline string) *Image {
	return &Image{
		Kernel:  kernel,
		DTB:     dtb,
		Cmdline: cmdline,
		log:     log.DefaultLogger(),
	}
}

// LoadTo copies the kernel to the base of RAM and the device tree near the
// top, patches the command line and (for the default DTB only) the RAM-size
// field, and returns the entry point and DTB address for [hart.Hart.Reset].
func (img *Image) LoadTo(h *hart.Hart) (entry, dtbAddr hart.Word, err error) {
	ram := h.Mem.RAM()
	ramSize := len(ram)

	if len(img.Kernel) > ramSize {
		return 0, 0, fmt.Errorf("image: kernel (%d bytes) larger than RAM (%d bytes)", len(img.Kernel), ramSize)
	}

	dtbOffset := ramSize - len(img.DTB)

	if dtbOffset < len(img.Kernel) {
		return 0, 0, fmt.Errorf("image: kernel and device tree overlap in %d bytes of RAM", ramSize)
	}

	copy(ram, img.Kernel)
	copy(ram[dtbOffset:], img.DTB)

	img.patchCmdline(ram, dtbOffset)
	img.patchRAMSize(ram, dtbOffset)

	img.log.Debug("loaded image",
		"kernel_bytes", len(img.Kernel),
		"dtb_bytes", len(img.DTB),
		"dtb_offset", dtbOffset,
	)

	return hart.RAMBase, hart.RAMBase + hart.Word(dtbOffset), nil
}

// patchCmdline splices the kernel command line into the DTB's reserved
// bootargs slot, truncating to its 54-byte limit.
func (img *Image) patchCmdline(ram []byte, dtbOffset int) {
	if img.Cmdline == "" || len(img.DTB) < cmdlineOffset+cmdlineMaxLen {
		return
	}

	at := dtbOffset + cmdlineOffset

	n := copy(ram[at:at+cmdlineMaxLen], img.Cmdline)

	for i := at + n; i < at+cmdlineMaxLen; i++ {
		ram[i] = 0
	}
}

// patchRAMSize overwrites the DTB's memory-size field with the actual offset
// of the DTB in RAM (the amount of RAM available below it), but only when
// the field still holds the sentinel the skeleton DTB ships with -- a custom
// DTB supplied by the caller is left untouched.
func (img *Image) patchRAMSize(ram []byte, dtbOffset int) {
	if len(img.DTB) < ramSizeOffset+4 {
		return
	}

	at := dtbOffset + ramSizeOffset

	if binary.BigEndian.Uint32(ram[at:at+4]) != ramSizeSentinel {
		return
	}

	binary.BigEndian.PutUint32(ram[at:at+4], uint32(dtbOffset))
}
