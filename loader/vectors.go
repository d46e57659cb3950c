package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrShortImage is returned when an image is too small to hold the vector
// table.
var ErrShortImage = errors.New("image too short for vector table")

// NumVectors is the number of vector table entries parsed from an image.
const NumVectors = 18

// VectorTableSize is the size of the parsed vector table in bytes.
const VectorTableSize = NumVectors * 4

// Vector table indices.
const (
	VectorInitialSP = 0
	VectorReset     = 1
	VectorNMI       = 2
	VectorHardFault = 3
	VectorSVC       = 11
	VectorPendSV    = 14
	VectorSysTick   = 15
	VectorWDT       = 16
	VectorRadio     = 17
)

// VectorNames names the entries of the vector table in order.
var VectorNames = [NumVectors]string{
	"initial_sp",
	"reset",
	"nmi",
	"hardfault",
	"mgnmem",
	"busfault",
	"usefault",
	"reserved1",
	"reserved2",
	"reserved3",
	"reserved4",
	"svc",
	"dbgmon",
	"reserved5",
	"pendsv",
	"systick",
	"wdt",
	"radio",
}

// VectorTable holds the first 18 words of a Cortex-M image.
type VectorTable struct {
	Entries [NumVectors]uint32
}

// ParseVectorTable decodes the little-endian vector table at the start of
// content.
func ParseVectorTable(content []byte) (*VectorTable, error) {
	if len(content) < VectorTableSize {
		return nil, fmt.Errorf("%d bytes: %w", len(content), ErrShortImage)
	}

	vt := &VectorTable{}
	for i := range vt.Entries {
		vt.Entries[i] = binary.LittleEndian.Uint32(content[4*i:])
	}

	return vt, nil
}

// Handler returns entry n and whether n is inside the table.
func (vt *VectorTable) Handler(n int) (uint32, bool) {
	if n < 0 || n >= NumVectors {
		return 0, false
	}
	return vt.Entries[n], true
}

// InitialSP returns the initial main stack pointer.
func (vt *VectorTable) InitialSP() uint32 {
	return vt.Entries[VectorInitialSP]
}

// Reset returns the reset handler address.
func (vt *VectorTable) Reset() uint32 {
	return vt.Entries[VectorReset]
}

// Lookup returns the entry with the given name.
func (vt *VectorTable) Lookup(name string) (uint32, bool) {
	for i, n := range VectorNames {
		if n == name {
			return vt.Entries[i], true
		}
	}
	return 0, false
}

func (vt *VectorTable) String() string {
	var sb strings.Builder
	for i, name := range VectorNames {
		fmt.Fprintf(&sb, "%2d %-10s 0x%08x\n", i, name, vt.Entries[i])
	}
	return sb.String()
}
