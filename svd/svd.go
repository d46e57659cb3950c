// Package svd reads CMSIS-SVD device descriptions and serves them as an
// address lookup for the MMIO dispatcher.
package svd

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/nrfsim/mmio"
)

// Device is a parsed device description.
type Device struct {
	Name        string
	Peripherals []*Peripheral

	byAddr map[uint32]mmio.Entry
}

// Peripheral is one peripheral instance. Registers carry offsets relative
// to BaseAddress with clusters and arrays already expanded.
type Peripheral struct {
	Name          string
	DerivedFrom   string
	GroupName     string
	Description   string
	BaseAddress   uint32
	AddressBlocks []AddressBlock
	Interrupts    []Interrupt
	Registers     []Register
}

// AddressBlock is a range of the peripheral's address space.
type AddressBlock struct {
	Offset uint32
	Size   uint32
	Usage  string
}

// Interrupt is a peripheral interrupt line.
type Interrupt struct {
	Name  string
	Value int
}

// Register is a register with its offset from the peripheral base.
type Register struct {
	Name       string
	Offset     uint32
	ResetValue uint32
	Access     string
}

// Addr returns the absolute address of r within p.
func (p *Peripheral) Addr(r Register) uint32 {
	return p.BaseAddress + r.Offset
}

// Contains reports whether addr falls into one of p's address blocks.
func (p *Peripheral) Contains(addr uint32) bool {
	for _, b := range p.AddressBlocks {
		start := uint64(p.BaseAddress) + uint64(b.Offset)
		if uint64(addr) >= start && uint64(addr) < start+uint64(b.Size) {
			return true
		}
	}
	return false
}

// Peripheral returns the peripheral with the given name.
func (d *Device) Peripheral(name string) (*Peripheral, bool) {
	for _, p := range d.Peripherals {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Lookup implements mmio.Database. Only addresses of described registers
// match. When several peripherals describe the same address, the one
// declared first wins.
func (d *Device) Lookup(addr uint32) (mmio.Entry, bool) {
	e, ok := d.byAddr[addr]
	return e, ok
}

// Len returns the number of distinct register addresses.
func (d *Device) Len() int {
	return len(d.byAddr)
}

// Load parses the SVD file at path.
func Load(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dev, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dev, nil
}

// Parse reads an SVD document.
func Parse(r io.Reader) (*Device, error) {
	var doc xmlDevice
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding svd: %w", err)
	}

	dev := &Device{
		Name:   strings.TrimSpace(doc.Name),
		byAddr: make(map[uint32]mmio.Entry),
	}

	raw := make(map[string]*xmlPeripheral, len(doc.Peripherals))
	for i := range doc.Peripherals {
		raw[strings.TrimSpace(doc.Peripherals[i].Name)] = &doc.Peripherals[i]
	}

	for i := range doc.Peripherals {
		p, err := buildPeripheral(&doc.Peripherals[i], raw)
		if err != nil {
			return nil, err
		}
		dev.Peripherals = append(dev.Peripherals, p)
	}

	for _, p := range dev.Peripherals {
		for _, r := range p.Registers {
			addr := p.Addr(r)
			if _, taken := dev.byAddr[addr]; taken {
				continue
			}
			dev.byAddr[addr] = mmio.Entry{Device: p.Name, Register: r.Name, Addr: addr}
		}
	}

	return dev, nil
}

func buildPeripheral(xp *xmlPeripheral, raw map[string]*xmlPeripheral) (*Peripheral, error) {
	name := strings.TrimSpace(xp.Name)

	base, err := parseNumber(xp.BaseAddress)
	if err != nil {
		return nil, fmt.Errorf("peripheral %s base address: %w", name, err)
	}

	p := &Peripheral{
		Name:        name,
		DerivedFrom: strings.TrimSpace(xp.DerivedFrom),
		GroupName:   strings.TrimSpace(xp.GroupName),
		Description: collapse(xp.Description),
		BaseAddress: uint32(base),
	}

	for _, xi := range xp.Interrupts {
		v, err := strconv.Atoi(strings.TrimSpace(xi.Value))
		if err != nil {
			return nil, fmt.Errorf("peripheral %s interrupt %s: %w", name, xi.Name, err)
		}
		p.Interrupts = append(p.Interrupts, Interrupt{Name: strings.TrimSpace(xi.Name), Value: v})
	}

	// A derived peripheral inherits whatever it does not declare itself.
	blocks, regs := xp.AddressBlocks, xp.Registers
	cur := xp
	for depth := 0; (len(blocks) == 0 || regs == nil) && cur.DerivedFrom != ""; depth++ {
		parentName := strings.TrimSpace(cur.DerivedFrom)
		parent, ok := raw[parentName]
		if !ok {
			return nil, fmt.Errorf("peripheral %s derives from unknown %s", name, parentName)
		}
		if depth > len(raw) {
			return nil, fmt.Errorf("peripheral %s: derivedFrom cycle", name)
		}
		if len(blocks) == 0 {
			blocks = parent.AddressBlocks
		}
		if regs == nil {
			regs = parent.Registers
		}
		cur = parent
	}

	p.AddressBlocks, err = buildBlocks(blocks)
	if err != nil {
		return nil, fmt.Errorf("peripheral %s: %w", name, err)
	}
	if regs != nil {
		p.Registers, err = expandRegisters(regs, 0)
		if err != nil {
			return nil, fmt.Errorf("peripheral %s: %w", name, err)
		}
	}

	sort.SliceStable(p.Registers, func(i, j int) bool {
		return p.Registers[i].Offset < p.Registers[j].Offset
	})

	return p, nil
}

func buildBlocks(xbs []xmlAddressBlock) ([]AddressBlock, error) {
	blocks := make([]AddressBlock, 0, len(xbs))
	for _, xb := range xbs {
		off, err := parseNumber(xb.Offset)
		if err != nil {
			return nil, fmt.Errorf("address block offset: %w", err)
		}
		size, err := parseNumber(xb.Size)
		if err != nil {
			return nil, fmt.Errorf("address block size: %w", err)
		}
		blocks = append(blocks, AddressBlock{
			Offset: uint32(off),
			Size:   uint32(size),
			Usage:  strings.TrimSpace(xb.Usage),
		})
	}
	return blocks, nil
}

// expandRegisters flattens registers and clusters, unrolling dim arrays.
// Offsets are relative to the peripheral base.
func expandRegisters(xrs *xmlRegisters, base uint32) ([]Register, error) {
	var regs []Register

	for _, xr := range xrs.Registers {
		off, err := parseNumber(xr.AddressOffset)
		if err != nil {
			return nil, fmt.Errorf("register %s offset: %w", xr.Name, err)
		}
		reset, err := parseOptional(xr.ResetValue)
		if err != nil {
			return nil, fmt.Errorf("register %s reset value: %w", xr.Name, err)
		}

		names, step, err := expandDim(strings.TrimSpace(xr.Name), xr.dim)
		if err != nil {
			return nil, err
		}
		for i, n := range names {
			regs = append(regs, Register{
				Name:       n,
				Offset:     base + uint32(off) + uint32(i)*step,
				ResetValue: uint32(reset),
				Access:     strings.TrimSpace(xr.Access),
			})
		}
	}

	for _, xc := range xrs.Clusters {
		off, err := parseNumber(xc.AddressOffset)
		if err != nil {
			return nil, fmt.Errorf("cluster %s offset: %w", xc.Name, err)
		}

		names, step, err := expandDim(strings.TrimSpace(xc.Name), xc.dim)
		if err != nil {
			return nil, err
		}
		for i, n := range names {
			inner, err := expandRegisters(&xc.xmlRegisters, base+uint32(off)+uint32(i)*step)
			if err != nil {
				return nil, fmt.Errorf("cluster %s: %w", n, err)
			}
			for _, r := range inner {
				r.Name = n + "." + r.Name
				regs = append(regs, r)
			}
		}
	}

	return regs, nil
}

// expandDim returns the element names of a possibly dimensioned element
// and the address step between them.
func expandDim(name string, d dim) ([]string, uint32, error) {
	if strings.TrimSpace(d.Dim) == "" {
		return []string{name}, 0, nil
	}

	n, err := parseNumber(d.Dim)
	if err != nil {
		return nil, 0, fmt.Errorf("%s dim: %w", name, err)
	}
	step, err := parseOptional(d.DimIncrement)
	if err != nil {
		return nil, 0, fmt.Errorf("%s dimIncrement: %w", name, err)
	}

	indices, err := dimIndices(d.DimIndex, int(n))
	if err != nil {
		return nil, 0, fmt.Errorf("%s dimIndex: %w", name, err)
	}

	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = strings.Replace(name, "%s", idx, 1)
	}
	return names, uint32(step), nil
}

// dimIndices parses a dimIndex of the form "0-3" or "A,B,C". An empty
// dimIndex numbers the elements from 0.
func dimIndices(s string, n int) ([]string, error) {
	s = strings.TrimSpace(s)

	var out []string
	switch {
	case s == "":
		for i := 0; i < n; i++ {
			out = append(out, strconv.Itoa(i))
		}
	case strings.Contains(s, "-") && !strings.Contains(s, ","):
		lo, hi, _ := strings.Cut(s, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, err
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, err
		}
		for i := from; i <= to; i++ {
			out = append(out, strconv.Itoa(i))
		}
	default:
		for _, part := range strings.Split(s, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}

	if len(out) != n {
		return nil, fmt.Errorf("%d indices for dim %d", len(out), n)
	}
	return out, nil
}

// parseNumber parses an SVD scaled non-negative integer: decimal, 0x hex
// or #binary.
func parseNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return strconv.ParseUint(s[1:], 2, 64)
	}
	if strings.HasPrefix(s, "0X") {
		s = "0x" + s[2:]
	}
	return strconv.ParseUint(s, 0, 64)
}

func parseOptional(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return parseNumber(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
