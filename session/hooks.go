package session

import (
	"fmt"

	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/periph"
)

// fail records the first error raised inside a hook and halts execution.
func (s *Session) fail(err error) {
	if s.hookErr == nil {
		s.hookErr = err
	}
	s.sub.Stop()
}

func (s *Session) onCode(addr, _ uint32) {
	if len(s.pending) > 0 {
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.resumed = noIRQ
		if _, err := s.ic.Enter(n); err != nil {
			s.fail(err)
		}
		return
	}

	resumed := s.resumed
	s.resumed = noIRQ

	if s.script == nil {
		return
	}
	if err := s.script.OnCode(addr, resumed); err != nil {
		s.fail(err)
	}
}

// onExcReturn runs when control flow enters the EXC_RETURN page: the
// handler branched to its EXC_RETURN value.
func (s *Session) onExcReturn(addr uint32) {
	frame, err := s.ic.Return(addr)
	if err != nil {
		s.fail(err)
		return
	}

	s.resumed = frame.IRQ

	if s.script == nil {
		return
	}
	if err := s.script.OnReturn(frame.IRQ); err != nil {
		s.fail(err)
	}
}

func (s *Session) onMemAccess(kind emu.AccessKind, addr uint32, size int, value uint32) {
	s.inAccess = true
	defer func() { s.inAccess = false }()

	s.dispatcher.Access(kind, addr, size, value)
}

func (s *Session) onInterrupt(excNo int) {
	pc := s.sub.ReadReg(emu.PC)

	switch excNo {
	case emu.ExcSVC:
		s.log.Info("exception raised", "exception", excNo, "pc", fmt.Sprintf("0x%08x", pc))
	case emu.ExcBKPT:
		s.log.Info("breakpoint reached, stopping", "pc", fmt.Sprintf("0x%08x", pc))
		s.sub.Stop()
	default:
		s.fail(fmt.Errorf("exception %d at 0x%08x: %w", excNo, pc, emu.ErrUndefined))
	}
}

func (s *Session) onTransmit(packet []byte) {
	s.log.Info("radio transmit", "packet", fmt.Sprintf("% x", packet))

	for _, fn := range s.txObservers {
		fn(packet)
	}

	if s.script == nil {
		return
	}
	if err := s.script.OnTx(packet); err != nil {
		s.fail(err)
	}
}

func (s *Session) onReceive() {
	s.log.Info("radio receiver enabled")

	if s.script == nil {
		return
	}
	if err := s.script.OnRx(); err != nil {
		s.fail(err)
	}
}

func (s *Session) onPins(change periph.PinChange, pins []int) {
	if s.script == nil {
		return
	}
	if err := s.script.OnPins(change, pins); err != nil {
		s.fail(err)
	}
}
