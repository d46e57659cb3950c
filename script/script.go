// Package script runs Lua scenario scripts that observe the firmware and
// drive the simulated peripherals.
//
// A script calls watch(addr) for every instruction address it wants to
// see and may define any of these callbacks:
//
//	on_code(addr, resumed_irq)  before a watched instruction executes
//	on_return(irq)              after an interrupt handler returned
//	on_tx(packet)               when the radio transmits
//	on_rx()                     when the radio receiver is enabled
//	on_pins(kind, pins)         when GPIO output pins change
//
// resumed_irq is the interrupt whose return resumed execution at addr, or
// nil.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/nrfsim/periph"
)

// Host is what a script can act on.
type Host interface {
	Raise(irq int) error
	InjectPacket(packet []byte) error
	Register(device, name string) (uint32, bool)
	SetRegister(device, name string, value uint32) bool
	SetRadioState(state periph.RadioState)
	Stop()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger that receives the script's log() output.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine is a Lua interpreter bound to a Host. It is not safe for
// concurrent use; every callback runs on the execution goroutine.
type Engine struct {
	state   *lua.LState
	host    Host
	log     logr.Logger
	watches map[uint32]bool

	// hostErr is the last error a Host method returned to a script.
	hostErr error
}

// New creates an engine with the scenario API installed.
func New(host Host, opts ...Option) *Engine {
	e := &Engine{
		state:   lua.NewState(),
		host:    host,
		log:     logr.Discard(),
		watches: make(map[uint32]bool),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.install()

	return e
}

// Close releases the interpreter.
func (e *Engine) Close() {
	e.state.Close()
}

// SetContext makes running Lua code abort once ctx is done.
func (e *Engine) SetContext(ctx context.Context) {
	e.state.SetContext(ctx)
}

// ClearContext undoes SetContext.
func (e *Engine) ClearContext() {
	e.state.RemoveContext()
}

// LoadFile runs the script at path, which typically defines callbacks.
func (e *Engine) LoadFile(path string) error {
	if err := e.state.DoFile(path); err != nil {
		return fmt.Errorf("loading script %s: %w", path, e.cause(err))
	}
	return nil
}

// LoadString runs src.
func (e *Engine) LoadString(src string) error {
	if err := e.state.DoString(src); err != nil {
		return fmt.Errorf("loading script: %w", e.cause(err))
	}
	return nil
}

// Watched reports whether the script asked to see addr.
func (e *Engine) Watched(addr uint32) bool {
	return e.watches[addr&^1]
}

// OnCode calls on_code for a watched address. resumed is the interrupt
// whose return led here, or -1.
func (e *Engine) OnCode(addr uint32, resumed int) error {
	if !e.Watched(addr) {
		return nil
	}

	irq := lua.LValue(lua.LNil)
	if resumed >= 0 {
		irq = lua.LNumber(resumed)
	}
	return e.call("on_code", lua.LNumber(addr), irq)
}

// OnReturn calls on_return.
func (e *Engine) OnReturn(irq int) error {
	return e.call("on_return", lua.LNumber(irq))
}

// OnTx calls on_tx with the transmitted packet as a string.
func (e *Engine) OnTx(packet []byte) error {
	return e.call("on_tx", lua.LString(packet))
}

// OnRx calls on_rx.
func (e *Engine) OnRx() error {
	return e.call("on_rx")
}

// OnPins calls on_pins with "set" or "cleared" and a table of pin numbers.
func (e *Engine) OnPins(change periph.PinChange, pins []int) error {
	t := e.state.NewTable()
	for _, p := range pins {
		t.Append(lua.LNumber(p))
	}
	return e.call("on_pins", lua.LString(change.String()), t)
}

func (e *Engine) call(name string, args ...lua.LValue) error {
	fn, ok := e.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}

	err := e.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	if err != nil {
		return fmt.Errorf("script %s: %w", name, e.cause(err))
	}
	return nil
}

// cause prefers the Host error that made the script fail, so callers can
// match it with errors.Is.
func (e *Engine) cause(err error) error {
	if e.hostErr == nil {
		return err
	}
	hostErr := e.hostErr
	e.hostErr = nil
	return hostErr
}

func (e *Engine) hostFailed(L *lua.LState, err error) {
	e.hostErr = err
	L.RaiseError("%s", err.Error())
}

func (e *Engine) install() {
	api := map[string]lua.LGFunction{
		"watch":         e.watch,
		"raise":         e.raise,
		"inject_packet": e.injectPacket,
		"reg_get":       e.regGet,
		"reg_set":       e.regSet,
		"radio_state":   e.radioState,
		"stop":          e.stop,
		"log":           e.logMsg,
	}
	for name, fn := range api {
		e.state.SetGlobal(name, e.state.NewFunction(fn))
	}
}

func checkWord(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func (e *Engine) watch(L *lua.LState) int {
	e.watches[checkWord(L, 1)&^1] = true
	return 0
}

func (e *Engine) raise(L *lua.LState) int {
	if err := e.host.Raise(L.CheckInt(1)); err != nil {
		e.hostFailed(L, err)
	}
	return 0
}

// injectPacket returns false when PACKETPTR is null.
func (e *Engine) injectPacket(L *lua.LState) int {
	err := e.host.InjectPacket([]byte(L.CheckString(1)))
	switch {
	case errors.Is(err, periph.ErrNullPacketPtr):
		L.Push(lua.LFalse)
	case err != nil:
		e.hostFailed(L, err)
	default:
		L.Push(lua.LTrue)
	}
	return 1
}

func (e *Engine) regGet(L *lua.LState) int {
	v, ok := e.host.Register(L.CheckString(1), L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (e *Engine) regSet(L *lua.LState) int {
	dev, name := L.CheckString(1), L.CheckString(2)
	if !e.host.SetRegister(dev, name, checkWord(L, 3)) {
		L.RaiseError("no register %s.%s", dev, name)
	}
	return 0
}

func (e *Engine) radioState(L *lua.LState) int {
	s := periph.RadioState(L.CheckInt(1))
	if !s.Valid() {
		L.RaiseError("invalid radio state %d", int(s))
	}
	e.host.SetRadioState(s)
	return 0
}

func (e *Engine) stop(L *lua.LState) int {
	e.host.Stop()
	return 0
}

func (e *Engine) logMsg(L *lua.LState) int {
	e.log.Info(L.CheckString(1), "source", "script")
	return 0
}
