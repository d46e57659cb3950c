package svd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Report groups observed MMIO addresses by the peripheral whose address
// blocks contain them.
type Report struct {
	// Peripherals lists matched peripheral names in first-seen order.
	Peripherals []string
	Matched     map[string][]uint32
	Unmatched   []uint32
}

// Analyze assigns each address to the first peripheral that contains it.
func Analyze(dev *Device, addrs []uint32) *Report {
	r := &Report{Matched: make(map[string][]uint32)}
	unmatched := make(map[uint32]bool)

	for _, addr := range addrs {
		p := dev.owner(addr)
		if p == nil {
			if !unmatched[addr] {
				unmatched[addr] = true
				r.Unmatched = append(r.Unmatched, addr)
			}
			continue
		}

		if _, seen := r.Matched[p.Name]; !seen {
			r.Peripherals = append(r.Peripherals, p.Name)
		}
		r.Matched[p.Name] = append(r.Matched[p.Name], addr)
	}

	return r
}

func (d *Device) owner(addr uint32) *Peripheral {
	for _, p := range d.Peripherals {
		if p.Contains(addr) {
			return p
		}
	}
	return nil
}

// WriteTo prints the report, one line per address.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	for _, name := range r.Peripherals {
		for _, addr := range r.Matched[name] {
			fmt.Fprintf(&b, "0x%08x -> %s\n", addr, name)
		}
	}
	fmt.Fprintf(&b, "peripherals: %s\n", strings.Join(r.Peripherals, " "))
	fmt.Fprintf(&b, "unmatched addresses: %d\n", len(r.Unmatched))
	for _, addr := range r.Unmatched {
		fmt.Fprintf(&b, "0x%08x\n", addr)
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// ReadAddressList reads one hexadecimal address per line. Blank lines and
// lines starting with # are skipped.
func ReadAddressList(r io.Reader) ([]uint32, error) {
	var addrs []uint32

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
		v, err := strconv.ParseUint(text, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		addrs = append(addrs, uint32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return addrs, nil
}
