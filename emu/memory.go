package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// ErrUnmapped is returned when an access touches an address outside every
// mapped region.
var ErrUnmapped = errors.New("unmapped memory access")

// ErrRegionOverlap is returned when a region overlaps an existing one.
var ErrRegionOverlap = errors.New("memory region overlaps an existing region")

// addressSpace is the size of the 32-bit physical address space.
const addressSpace = uint64(1) << 32

// Region is a contiguous mapped range of the address space.
type Region struct {
	Name string
	Base uint32
	Size uint64
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return uint64(r.Base) + r.Size
}

// Contains reports whether [addr, addr+n) lies inside the region.
func (r Region) Contains(addr uint32, n int) bool {
	return uint64(addr) >= uint64(r.Base) && uint64(addr)+uint64(n) <= r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("%s[0x%08x-0x%08x]", r.Name, r.Base, r.End()-1)
}

// Memory is the emulated physical memory. Bytes are held in an akita
// storage covering the whole 32-bit space; only mapped regions are
// accessible.
type Memory struct {
	storage *mem.Storage
	regions []Region
}

// NewMemory creates an empty memory with no mapped regions.
func NewMemory() *Memory {
	return &Memory{
		storage: mem.NewStorage(addressSpace),
	}
}

// Map makes a region accessible. Regions must not overlap.
func (m *Memory) Map(region Region) error {
	if region.Size == 0 || region.End() > addressSpace {
		return fmt.Errorf("invalid region %s", region)
	}

	for _, r := range m.regions {
		if uint64(region.Base) < r.End() && uint64(r.Base) < region.End() {
			return fmt.Errorf("%s and %s: %w", region, r, ErrRegionOverlap)
		}
	}

	m.regions = append(m.regions, region)
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].Base < m.regions[j].Base
	})

	return nil
}

// Regions returns the mapped regions in address order.
func (m *Memory) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

// IsMapped reports whether every byte of [addr, addr+n) is mapped.
func (m *Memory) IsMapped(addr uint32, n int) bool {
	if n <= 0 {
		return false
	}

	cur := uint64(addr)
	end := cur + uint64(n)
	for _, r := range m.regions {
		if cur >= uint64(r.Base) && cur < r.End() {
			cur = r.End()
			if cur >= end {
				return true
			}
		}
	}

	return false
}

// Read reads n bytes starting at addr.
func (m *Memory) Read(addr uint32, n int) ([]byte, error) {
	if !m.IsMapped(addr, n) {
		return nil, fmt.Errorf("read %d bytes at 0x%08x: %w", n, addr, ErrUnmapped)
	}

	return m.storage.Read(uint64(addr), uint64(n))
}

// Write writes data starting at addr.
func (m *Memory) Write(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if !m.IsMapped(addr, len(data)) {
		return fmt.Errorf("write %d bytes at 0x%08x: %w", len(data), addr, ErrUnmapped)
	}

	return m.storage.Write(uint64(addr), data)
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) (uint8, error) {
	data, err := m.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint32) (uint16, error) {
	data, err := m.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	data, err := m.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, value uint8) error {
	return m.Write(addr, []byte{value})
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return m.Write(addr, buf[:])
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return m.Write(addr, buf[:])
}
