package emu

import (
	"encoding/binary"
	"fmt"
)

// LoadStoreUnit implements data loads and stores. Every access is reported
// to the memory hooks before it is performed, so a hook may update memory
// that a load is about to observe.
type LoadStoreUnit struct {
	memory *Memory
	hooks  *[]MemHook
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// memory and hook list.
func NewLoadStoreUnit(memory *Memory, hooks *[]MemHook) *LoadStoreUnit {
	return &LoadStoreUnit{
		memory: memory,
		hooks:  hooks,
	}
}

func (lsu *LoadStoreUnit) notify(kind AccessKind, addr uint32, size int, value uint32) {
	for _, hook := range *lsu.hooks {
		hook(kind, addr, size, value)
	}
}

// Load reads a value of width bytes, optionally sign-extending it.
func (lsu *LoadStoreUnit) Load(addr uint32, width uint8, signed bool) (uint32, error) {
	lsu.notify(AccessRead, addr, int(width), 0)

	data, err := lsu.memory.Read(addr, int(width))
	if err != nil {
		return 0, err
	}

	switch width {
	case 1:
		if signed {
			return uint32(int32(int8(data[0]))), nil
		}
		return uint32(data[0]), nil
	case 2:
		v := binary.LittleEndian.Uint16(data)
		if signed {
			return uint32(int32(int16(v))), nil
		}
		return uint32(v), nil
	case 4:
		return binary.LittleEndian.Uint32(data), nil
	}

	return 0, fmt.Errorf("invalid access width %d", width)
}

// Store writes the low width bytes of value.
func (lsu *LoadStoreUnit) Store(addr uint32, width uint8, value uint32) error {
	switch width {
	case 1:
		value &= 0xff
	case 2:
		value &= 0xffff
	case 4:
	default:
		return fmt.Errorf("invalid access width %d", width)
	}

	lsu.notify(AccessWrite, addr, int(width), value)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return lsu.memory.Write(addr, buf[:width])
}
