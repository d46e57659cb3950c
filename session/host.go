package session

import "github.com/sarchlab/nrfsim/periph"

// The methods below let scenario scripts act on the session.

// InjectPacket places a received packet at the radio's PACKETPTR.
func (s *Session) InjectPacket(packet []byte) error {
	return s.radio.InjectPacket(packet)
}

// Register returns the value of a device register.
func (s *Session) Register(device, name string) (uint32, bool) {
	d, ok := s.dispatcher.Device(device)
	if !ok {
		return 0, false
	}
	r, ok := d.Registers().ByName(name)
	if !ok {
		return 0, false
	}
	return r.Value, true
}

// SetRegister stores a device register without side effects.
func (s *Session) SetRegister(device, name string, value uint32) bool {
	d, ok := s.dispatcher.Device(device)
	if !ok {
		return false
	}
	r, ok := d.Registers().ByName(name)
	if !ok {
		return false
	}
	r.Value = value
	return true
}

// SetRadioState forces the radio state.
func (s *Session) SetRadioState(state periph.RadioState) {
	s.radio.SetState(state)
}

// Stop halts a running Run at the next instruction.
func (s *Session) Stop() {
	s.sub.Stop()
}
