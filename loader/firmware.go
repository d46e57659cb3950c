// Package loader provides firmware image loading for Cortex-M targets.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"sort"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// PageSize is the granularity the flash mapping is rounded up to.
const PageSize = 1024

// Segment represents a loadable piece of a firmware image.
type Segment struct {
	// Addr is the address where this segment should be loaded.
	Addr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Firmware is a firmware image ready to be written into emulated memory.
type Firmware struct {
	// Base is the lowest loaded address. The vector table lives here.
	Base uint32
	// Segments holds the loadable segments in address order.
	Segments []Segment
	// Vectors is the exception vector table found at Base.
	Vectors *VectorTable
}

// Size returns the number of bytes from Base to the end of the highest
// segment.
func (f *Firmware) Size() uint32 {
	var end uint32
	for _, seg := range f.Segments {
		segEnd := seg.Addr + uint32(len(seg.Data))
		if segEnd > end {
			end = segEnd
		}
	}

	if end < f.Base {
		return 0
	}
	return end - f.Base
}

// MappedSize returns Size rounded up to a whole number of pages.
func (f *Firmware) MappedSize() uint32 {
	return AlignUp(f.Size(), PageSize)
}

// End returns the first address past the image. Execution that reaches it
// has run off the end of the firmware.
func (f *Firmware) End() uint32 {
	return f.Base + f.Size()
}

// Image flattens the segments into one contiguous byte slice starting at
// Base. Gaps are zero.
func (f *Firmware) Image() []byte {
	image := make([]byte, f.Size())
	for _, seg := range f.Segments {
		copy(image[seg.Addr-f.Base:], seg.Data)
	}
	return image
}

// AlignUp rounds n up to a multiple of align.
func AlignUp(n, align uint32) uint32 {
	if n%align == 0 {
		return n
	}
	return (n/align + 1) * align
}

// LoadBinary loads a raw firmware image that is placed at base.
func LoadBinary(path string, base uint32) (*Firmware, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware: %w", err)
	}

	return FromBytes(content, base)
}

// FromBytes builds a Firmware from a raw image placed at base.
func FromBytes(content []byte, base uint32) (*Firmware, error) {
	vectors, err := ParseVectorTable(content)
	if err != nil {
		return nil, err
	}

	return &Firmware{
		Base: base,
		Segments: []Segment{{
			Addr:  base,
			Data:  content,
			Flags: SegmentFlagRead | SegmentFlagExecute,
		}},
		Vectors: vectors,
	}, nil
}

// LoadELF parses an ARM ELF32 executable. The image base is the lowest
// PT_LOAD address.
func LoadELF(path string) (*Firmware, error) {
	// Open the ELF file
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("not an ARM ELF file (machine type: %v)", f.Machine)
	}

	fw := &Firmware{}

	// Load the PT_LOAD segments with file contents. Segments that are only
	// zero-initialized RAM are left to the memory map.
	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD || phdr.Filesz == 0 {
			continue
		}

		data := make([]byte, phdr.Filesz)
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Paddr, err)
		}
		if uint64(n) != phdr.Filesz {
			return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
				phdr.Paddr, n, phdr.Filesz)
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		// initialized data is stored at its load address in flash
		fw.Segments = append(fw.Segments, Segment{
			Addr:  uint32(phdr.Paddr),
			Data:  data,
			Flags: flags,
		})
	}

	if len(fw.Segments) == 0 {
		return nil, fmt.Errorf("no loadable segments: %w", ErrShortImage)
	}

	sort.Slice(fw.Segments, func(i, j int) bool {
		return fw.Segments[i].Addr < fw.Segments[j].Addr
	})
	fw.Base = fw.Segments[0].Addr

	fw.Vectors, err = ParseVectorTable(fw.Image())
	if err != nil {
		return nil, err
	}

	return fw, nil
}

// Load loads a firmware file, detecting ELF images by their magic number.
// Raw images are placed at base; ELF images carry their own addresses.
func Load(path string, base uint32) (*Firmware, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware: %w", err)
	}

	magic := make([]byte, len(elf.ELFMAG))
	_, err = io.ReadFull(file, magic)
	_ = file.Close()

	if err == nil && string(magic) == elf.ELFMAG {
		return LoadELF(path)
	}

	return LoadBinary(path, base)
}
