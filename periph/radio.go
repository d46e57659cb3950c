package periph

import (
	"errors"

	"github.com/sarchlab/nrfsim/emu"
)

// ErrNullPacketPtr is returned when a packet is injected while PACKETPTR
// is zero.
var ErrNullPacketPtr = errors.New("radio PACKETPTR is null")

// RadioState is the value of the radio STATE register.
type RadioState uint32

// Radio states.
const (
	RadioDisabled   RadioState = 0
	RadioRxRampUp   RadioState = 1
	RadioRxIdle     RadioState = 2
	RadioRx         RadioState = 3
	RadioRxDisabled RadioState = 4
	RadioTxRampUp   RadioState = 9
	RadioTxIdle     RadioState = 10
	RadioTx         RadioState = 11
	RadioTxDisabled RadioState = 12
)

var radioStateNames = map[RadioState]string{
	RadioDisabled:   "Disabled",
	RadioRxRampUp:   "RxRampUp",
	RadioRxIdle:     "RxIdle",
	RadioRx:         "Rx",
	RadioRxDisabled: "RxDisabled",
	RadioTxRampUp:   "TxRampUp",
	RadioTxIdle:     "TxIdle",
	RadioTx:         "Tx",
	RadioTxDisabled: "TxDisabled",
}

func (s RadioState) String() string {
	if name, ok := radioStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether s is one of the defined states.
func (s RadioState) Valid() bool {
	_, ok := radioStateNames[s]
	return ok
}

// TransmitFunc receives a packet the firmware asked to send: the length
// byte followed by the payload.
type TransmitFunc func(packet []byte)

// ReceiveFunc is called when the firmware enables the receiver.
type ReceiveFunc func()

// Radio models the 2.4 GHz radio. Packets are exchanged with emulated
// memory at PACKETPTR; every transfer completes instantly.
type Radio struct {
	device

	mem emu.MemoryAccess

	txEn, rxEn, start, stop, disable               *Register
	eventsReady, eventsAddress, eventsPayload      *Register
	eventsEnd, eventsDisabled, packetPtr, stateReg *Register

	onTransmit TransmitFunc
	onReceive  ReceiveFunc
}

// NewRadio creates the RADIO peripheral at base. Packets are read from
// and written to mem.
func NewRadio(base uint32, mem emu.MemoryAccess, opts ...Option) (*Radio, error) {
	d, err := newDevice("RADIO", base, buildOptions(opts), []Register{
		{Name: "TASKS_TXEN", Addr: base + 0x000},
		{Name: "TASKS_RXEN", Addr: base + 0x004},
		{Name: "TASKS_START", Addr: base + 0x008},
		{Name: "TASKS_STOP", Addr: base + 0x00C},
		{Name: "TASKS_DISABLE", Addr: base + 0x010},
		{Name: "EVENTS_READY", Addr: base + 0x100},
		{Name: "EVENTS_ADDRESS", Addr: base + 0x104},
		{Name: "EVENTS_PAYLOAD", Addr: base + 0x108},
		{Name: "EVENTS_END", Addr: base + 0x10C},
		{Name: "EVENTS_DISABLED", Addr: base + 0x110},
		{Name: "SHORTS", Addr: base + 0x200},
		{Name: "INTENSET", Addr: base + 0x304},
		{Name: "INTENCLR", Addr: base + 0x308},
		{Name: "CRCSTATUS", Addr: base + 0x400, Reset: 1},
		{Name: "PACKETPTR", Addr: base + 0x504},
		{Name: "FREQUENCY", Addr: base + 0x508},
		{Name: "TXPOWER", Addr: base + 0x50C},
		{Name: "MODE", Addr: base + 0x510},
		{Name: "PCNF0", Addr: base + 0x514},
		{Name: "PCNF1", Addr: base + 0x518},
		{Name: "BASE0", Addr: base + 0x51C},
		{Name: "BASE1", Addr: base + 0x520},
		{Name: "PREFIX0", Addr: base + 0x524},
		{Name: "PREFIX1", Addr: base + 0x528},
		{Name: "TXADDRESS", Addr: base + 0x52C},
		{Name: "RXADDRESS", Addr: base + 0x530},
		{Name: "CRCCNF", Addr: base + 0x534},
		{Name: "CRCPOLY", Addr: base + 0x538},
		{Name: "CRCINIT", Addr: base + 0x53C},
		{Name: "STATE", Addr: base + 0x550},
		{Name: "DATAWHITEIV", Addr: base + 0x554},
		{Name: "BCC", Addr: base + 0x560},
		{Name: "MODECNF0", Addr: base + 0x650},
		{Name: "POWER", Addr: base + 0xFFC, Reset: 1},
	})
	if err != nil {
		return nil, err
	}

	r := &Radio{device: d, mem: mem}
	r.txEn = r.regs.reg("TASKS_TXEN")
	r.rxEn = r.regs.reg("TASKS_RXEN")
	r.start = r.regs.reg("TASKS_START")
	r.stop = r.regs.reg("TASKS_STOP")
	r.disable = r.regs.reg("TASKS_DISABLE")
	r.eventsReady = r.regs.reg("EVENTS_READY")
	r.eventsAddress = r.regs.reg("EVENTS_ADDRESS")
	r.eventsPayload = r.regs.reg("EVENTS_PAYLOAD")
	r.eventsEnd = r.regs.reg("EVENTS_END")
	r.eventsDisabled = r.regs.reg("EVENTS_DISABLED")
	r.packetPtr = r.regs.reg("PACKETPTR")
	r.stateReg = r.regs.reg("STATE")

	return r, nil
}

// OnTransmit sets the callback for TASKS_TXEN, replacing any previous
// one. A nil fn removes it.
func (r *Radio) OnTransmit(fn TransmitFunc) {
	r.onTransmit = fn
}

// OnReceive sets the callback for TASKS_RXEN, replacing any previous one.
// A nil fn removes it.
func (r *Radio) OnReceive(fn ReceiveFunc) {
	r.onReceive = fn
}

// State returns the current radio state.
func (r *Radio) State() RadioState {
	return RadioState(r.stateReg.Value)
}

// SetState forces the radio state.
func (r *Radio) SetState(s RadioState) {
	r.stateReg.Value = uint32(s)
}

// PacketPtr returns the packet buffer address.
func (r *Radio) PacketPtr() uint32 {
	return r.packetPtr.Value
}

// InjectPacket writes a received packet into the buffer at PACKETPTR.
func (r *Radio) InjectPacket(packet []byte) error {
	ptr := r.packetPtr.Value
	if ptr == 0 {
		r.log.Info("cannot inject packet, PACKETPTR is null", "warning", true)
		return ErrNullPacketPtr
	}

	if err := r.mem.WriteMem(ptr, packet); err != nil {
		return err
	}

	r.log.Info("injected radio packet", "bytes", len(packet), "packetptr", hex(ptr))
	return nil
}

// Write implements Device.
func (r *Radio) Write(addr, value uint32) {
	r.regs.SetByAddress(addr, value)

	switch addr {
	case r.txEn.Addr:
		r.transmit()
	case r.rxEn.Addr:
		r.SetState(RadioRxIdle)
		r.eventsReady.Value = 1
		if r.onReceive != nil {
			r.onReceive()
		}
	case r.start.Addr:
		r.startTransfer()
	case r.stop.Addr:
		r.stopTransfer()
	case r.disable.Addr:
		r.SetState(RadioDisabled)
		r.eventsDisabled.Value = 1
	}
}

// transmit reads the packet at PACKETPTR, a length byte followed by that
// many payload bytes, and hands it to the transmit callbacks.
func (r *Radio) transmit() {
	ptr := r.packetPtr.Value
	if ptr == 0 {
		r.log.Info("transmit requested with null PACKETPTR", "warning", true)
		return
	}

	header, err := r.mem.ReadMem(ptr, 1)
	if err != nil {
		r.log.Error(err, "reading packet length", "packetptr", hex(ptr))
		return
	}

	size := int(header[0])
	packet, err := r.mem.ReadMem(ptr, size+1)
	if err != nil {
		r.log.Error(err, "reading packet", "packetptr", hex(ptr), "size", size)
		return
	}

	r.SetState(RadioTxIdle)
	r.eventsReady.Value = 1

	r.log.Info("radio packet transmit requested", "size", size, "payload", packet[1:])

	if r.onTransmit != nil {
		r.onTransmit(packet)
	}
}

// startTransfer completes a transfer in the current direction at once and
// returns to idle.
func (r *Radio) startTransfer() {
	switch r.State() {
	case RadioTxIdle, RadioRxIdle:
		r.eventsAddress.Value = 1
		r.eventsPayload.Value = 1
		r.eventsEnd.Value = 1
	}
}

func (r *Radio) stopTransfer() {
	switch r.State() {
	case RadioTx:
		r.SetState(RadioTxIdle)
	case RadioRx:
		r.SetState(RadioRxIdle)
	}
}
