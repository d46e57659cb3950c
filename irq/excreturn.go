// Package irq models Cortex-M exception entry and return: exception frame
// construction on the active stack, EXC_RETURN encoding and the stack of
// active handler frames.
package irq

// EXC_RETURN encoding.
const (
	// ExcReturnBase is the EXC_RETURN value for a return to thread mode
	// on MSP. Bits 2 and 4 are adjusted per entry.
	ExcReturnBase uint32 = 0xFFFFFFE9

	// ExcReturnMagic is the fixed upper part of every EXC_RETURN value.
	ExcReturnMagic uint32 = 0xFFFFFF00

	excReturnSPSel uint32 = 1 << 2
	excReturnNoFP  uint32 = 1 << 4
)

// EncodeExcReturn builds the EXC_RETURN value written to LR on entry. Bit 2
// records the stack in use; bit 4 is set when no floating-point context
// was saved.
func EncodeExcReturn(spsel, fpca bool) uint32 {
	v := ExcReturnBase
	if spsel {
		v |= excReturnSPSel
	}
	if fpca {
		v &^= excReturnNoFP
	} else {
		v |= excReturnNoFP
	}
	return v
}

// DecodeExcReturn extracts the stack selection and floating-point context
// flags from an EXC_RETURN value.
func DecodeExcReturn(v uint32) (spsel, fpca bool) {
	return v&excReturnSPSel != 0, v&excReturnNoFP == 0
}

// IsExcReturn reports whether v lies in the reserved EXC_RETURN range.
func IsExcReturn(v uint32) bool {
	return v&ExcReturnMagic == ExcReturnMagic
}
