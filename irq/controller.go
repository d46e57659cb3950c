package irq

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/nrfsim/emu"
)

// ErrNoHandler is returned when an interrupt is raised whose vector table
// entry is zero or outside the table.
var ErrNoHandler = errors.New("no handler for interrupt")

// Vectors provides handler addresses by exception number.
type Vectors interface {
	Handler(n int) (uint32, bool)
}

// Frame describes one active exception: the handler that was entered and
// the metadata needed to unwind it.
type Frame struct {
	IRQ       int
	Handler   uint32
	ExcReturn uint32

	// SP is the stack pointer after the frame was pushed.
	SP    uint32
	SPSel bool
	FPCA  bool

	// ReturnPC is the address execution resumes at after the handler.
	ReturnPC uint32
}

// Controller performs exception entry and return against a machine's
// registers and memory. It is not safe for concurrent use; all calls come
// from the goroutine driving the substrate.
type Controller struct {
	machine emu.Machine
	vectors Vectors
	frames  []Frame
	log     logr.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates an interrupt controller.
func NewController(machine emu.Machine, vectors Vectors, opts ...Option) *Controller {
	c := &Controller{
		machine: machine,
		vectors: vectors,
		log:     logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Enter takes exception irq. The stack and frame format are chosen from
// CONTROL as it is at this instant. The context is pushed, LR receives
// the EXC_RETURN value, IPSR is set to irq and PC to the handler.
func (c *Controller) Enter(irq int) (Frame, error) {
	handler, ok := c.vectors.Handler(irq)
	if !ok || handler == 0 {
		return Frame{}, fmt.Errorf("irq %d: %w", irq, ErrNoHandler)
	}

	control := c.machine.ReadReg(emu.CONTROL)
	spsel := control&emu.ControlSPSEL != 0
	fpca := control&emu.ControlFPCA != 0

	frame := Frame{
		IRQ:       irq,
		Handler:   handler,
		ExcReturn: EncodeExcReturn(spsel, fpca),
		SPSel:     spsel,
		FPCA:      fpca,
		ReturnPC:  c.machine.ReadReg(emu.PC),
	}

	sp, err := pushContext(c.machine, spsel, fpca)
	if err != nil {
		return Frame{}, fmt.Errorf("irq %d: %w", irq, err)
	}
	frame.SP = sp

	c.machine.WriteReg(emu.LR, frame.ExcReturn)
	c.machine.WriteReg(emu.IPSR, uint32(irq))
	c.machine.WriteReg(emu.PC, handler)

	c.frames = append(c.frames, frame)

	c.log.Info("entering interrupt",
		"irq", irq,
		"spsel", spsel,
		"fpca", fpca,
		"handler", hex(handler),
		"sp", hex(sp),
		"depth", len(c.frames))

	return frame, nil
}

// Return unwinds the most recent exception. target is the address control
// flow was sent to.
//
// A target in the EXC_RETURN range is decoded directly, since it is the
// EXC_RETURN value the handler branched to. Otherwise LR is used when it
// holds an EXC_RETURN value, and live CONTROL as a last resort.
func (c *Controller) Return(target uint32) (Frame, error) {
	lr := c.machine.ReadReg(emu.LR)
	ipsr := int(c.machine.ReadReg(emu.IPSR))

	var spsel, fpca bool
	var excReturn uint32
	switch {
	case IsExcReturn(target):
		excReturn = target | 1
		spsel, fpca = DecodeExcReturn(excReturn)
	case IsExcReturn(lr):
		excReturn = lr
		spsel, fpca = DecodeExcReturn(lr)
	default:
		control := c.machine.ReadReg(emu.CONTROL)
		spsel = control&emu.ControlSPSEL != 0
		fpca = control&emu.ControlFPCA != 0
		c.log.Info("return without EXC_RETURN, using CONTROL",
			"warning", true,
			"target", hex(target),
			"lr", hex(lr),
			"spsel", spsel,
			"fpca", fpca)
	}

	frame, tracked := c.popFrame()
	if !tracked {
		frame = Frame{IRQ: ipsr, ExcReturn: excReturn}
	} else if excReturn != 0 && frame.ExcReturn != excReturn {
		c.log.Info("return does not match active frame",
			"warning", true,
			"irq", frame.IRQ,
			"expected", hex(frame.ExcReturn),
			"got", hex(excReturn))
	}

	sp, err := popContext(c.machine, spsel, fpca)
	if err != nil {
		return Frame{}, fmt.Errorf("return from irq %d: %w", frame.IRQ, err)
	}

	nPriv := c.machine.ReadReg(emu.CONTROL) & emu.ControlNPRIV
	control := nPriv
	if spsel {
		control |= emu.ControlSPSEL
	}
	if fpca {
		control |= emu.ControlFPCA
	}
	c.machine.WriteReg(emu.CONTROL, control)

	frame.SPSel = spsel
	frame.FPCA = fpca
	frame.ReturnPC = c.machine.ReadReg(emu.PC)

	c.log.Info("returning from interrupt",
		"irq", frame.IRQ,
		"spsel", spsel,
		"fpca", fpca,
		"pc", hex(frame.ReturnPC),
		"sp", hex(sp),
		"depth", len(c.frames))

	return frame, nil
}

func (c *Controller) popFrame() (Frame, bool) {
	if len(c.frames) == 0 {
		return Frame{}, false
	}

	frame := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return frame, true
}

// Depth returns the number of active exceptions.
func (c *Controller) Depth() int {
	return len(c.frames)
}

// Active returns the innermost active exception.
func (c *Controller) Active() (Frame, bool) {
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Frames returns the active exceptions, outermost first.
func (c *Controller) Frames() []Frame {
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
