// Package session drives a firmware image on an execution substrate with
// the simulated nRF52840 peripherals attached.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/nrfsim/config"
	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/irq"
	"github.com/sarchlab/nrfsim/loader"
	"github.com/sarchlab/nrfsim/mmio"
	"github.com/sarchlab/nrfsim/periph"
	"github.com/sarchlab/nrfsim/script"
	"github.com/sarchlab/nrfsim/svd"
)

// Exception return addresses reach the substrate as branches into this
// range.
const (
	ExcReturnPageBase uint32 = 0xFFFFF000
	ExcReturnPageEnd  uint32 = 0xFFFFFFFF
)

// noIRQ marks the absence of a resumed interrupt.
const noIRQ = -1

type options struct {
	log       logr.Logger
	db        mmio.Database
	scriptSrc string
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithDatabase replaces the address lookup built from the configuration.
func WithDatabase(db mmio.Database) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithScript runs the given Lua source instead of the configured script
// file.
func WithScript(src string) Option {
	return func(o *options) {
		o.scriptSrc = src
	}
}

// Session is one emulation run of a firmware image. All hooks run on the
// goroutine that calls Run.
type Session struct {
	id  xid.ID
	sub emu.Substrate
	fw  *loader.Firmware
	cfg *config.Config
	log logr.Logger

	clock  *periph.Clock
	gpio   *periph.GPIO
	rtc    *periph.RTC
	radio  *periph.Radio
	timer  *periph.Timer
	timers []*periph.Timer

	devices    []periph.Device
	dispatcher *mmio.Dispatcher
	ic         *irq.Controller
	script     *script.Engine

	// resumed is the interrupt whose return resumed execution, reported
	// once to the next code hook.
	resumed int
	hookErr error

	// inAccess is set while a memory hook runs. Interrupts raised then
	// wait in pending for the next instruction boundary.
	inAccess bool
	pending  []int

	txObservers []periph.TransmitFunc
}

// New builds a session: it maps memory, writes the firmware, creates the
// devices and installs the substrate hooks.
func New(
	sub emu.Substrate,
	fw *loader.Firmware,
	cfg *config.Config,
	opts ...Option,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if fw.Vectors == nil {
		return nil, fmt.Errorf("firmware has no vector table: %w", loader.ErrShortImage)
	}

	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:      xid.New(),
		sub:     sub,
		fw:      fw,
		cfg:     cfg,
		resumed: noIRQ,
	}
	s.log = o.log.WithValues("session", s.id.String())

	if err := s.mapMemory(); err != nil {
		return nil, err
	}
	if err := s.createDevices(); err != nil {
		return nil, err
	}

	db, err := s.database(o.db)
	if err != nil {
		return nil, err
	}

	s.dispatcher, err = mmio.NewDispatcher(db, sub, s.devices,
		mmio.WithLogger(s.log.WithName("mmio")))
	if err != nil {
		return nil, err
	}

	s.ic = irq.NewController(sub, fw.Vectors, irq.WithLogger(s.log.WithName("irq")))

	if err := s.loadScript(o.scriptSrc); err != nil {
		return nil, err
	}

	sub.OnCode(s.onCode)
	sub.OnMemAccess(s.onMemAccess)
	sub.OnBlock(ExcReturnPageBase, ExcReturnPageEnd, s.onExcReturn)
	sub.OnInterrupt(s.onInterrupt)

	s.radio.OnTransmit(s.onTransmit)
	s.radio.OnReceive(s.onReceive)
	s.gpio.OnPins(s.onPins)

	return s, nil
}

func (s *Session) mapMemory() error {
	flash := emu.Region{Name: "flash", Base: s.fw.Base, Size: uint64(s.fw.MappedSize())}
	if err := s.sub.MapRegion(flash); err != nil {
		return fmt.Errorf("mapping %s: %w", flash, err)
	}

	for _, r := range s.cfg.Memory {
		region := emu.Region{Name: r.Name, Base: r.Base, Size: r.Size}
		if err := s.sub.MapRegion(region); err != nil {
			return fmt.Errorf("mapping %s: %w", region, err)
		}
	}

	for _, seg := range s.fw.Segments {
		if err := s.sub.WriteMem(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("writing segment at 0x%08x: %w", seg.Addr, err)
		}
	}

	s.log.Info("firmware loaded",
		"base", fmt.Sprintf("0x%08x", s.fw.Base),
		"size", s.fw.Size(),
		"segments", len(s.fw.Segments))

	return nil
}

func (s *Session) createDevices() error {
	plog := periph.WithLogger(s.log.WithName("periph"))

	var err error
	if s.clock, err = periph.NewClock(periph.ClockBase, plog); err != nil {
		return err
	}
	if s.gpio, err = periph.NewGPIO(periph.P0Base, plog); err != nil {
		return err
	}
	if s.rtc, err = periph.NewRTC(periph.RTC1Base, plog); err != nil {
		return err
	}
	if s.radio, err = periph.NewRadio(periph.RadioBase, s.sub, plog); err != nil {
		return err
	}
	s.timer, err = periph.NewTimer("TIMER0", periph.Timer0Base, plog,
		periph.WithTickInterval(s.cfg.TickInterval),
		periph.WithJoinTimeout(s.cfg.JoinTimeout))
	if err != nil {
		return err
	}

	s.timers = []*periph.Timer{s.timer}
	s.devices = []periph.Device{s.clock, s.radio, s.timer, s.rtc, s.gpio}

	return nil
}

func (s *Session) database(db mmio.Database) (mmio.Database, error) {
	if db != nil {
		return db, nil
	}

	if s.cfg.SVD != "" {
		dev, err := svd.Load(s.cfg.SVD)
		if err != nil {
			return nil, err
		}
		s.log.Info("device description loaded", "device", dev.Name, "registers", dev.Len())
		return dev, nil
	}

	return mmio.NewRangeTable(s.devices...)
}

func (s *Session) loadScript(src string) error {
	if src == "" && s.cfg.Script == "" {
		return nil
	}

	s.script = script.New(s, script.WithLogger(s.log.WithName("script")))

	var err error
	if src != "" {
		err = s.script.LoadString(src)
	} else {
		err = s.script.LoadFile(s.cfg.Script)
	}
	if err != nil {
		s.script.Close()
		s.script = nil
		return err
	}

	return nil
}

// ID identifies the session in logs.
func (s *Session) ID() xid.ID {
	return s.id
}

// Run executes the firmware from its reset vector until execution
// reaches the end of the image, the instruction budget or the deadline
// is exhausted, or ctx is done. Reaching the deadline is not an error.
// Every timer is stopped before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	if s.script != nil {
		s.script.SetContext(ctx)
		defer s.script.ClearContext()
	}

	vt := s.fw.Vectors
	s.sub.WriteReg(emu.MSP, vt.InitialSP())
	s.pending = nil

	s.log.Info("run started",
		"reset", fmt.Sprintf("0x%08x", vt.Reset()),
		"sp", fmt.Sprintf("0x%08x", vt.InitialSP()),
		"until", fmt.Sprintf("0x%08x", s.fw.End()),
		"deadline", s.cfg.Deadline)

	err := s.sub.Run(ctx, vt.Reset(), s.fw.End(), s.cfg.MaxInstructions)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Info("deadline reached")
		err = nil
	}

	if s.hookErr != nil {
		err = s.hookErr
		s.hookErr = nil
	}
	if len(s.pending) > 0 {
		s.log.Info("run ended with interrupts pending", "irqs", s.pending)
		s.pending = nil
	}

	if stopErr := s.stopTimers(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}

	stats := s.dispatcher.Stats()
	s.log.Info("run finished",
		"pc", fmt.Sprintf("0x%08x", s.sub.ReadReg(emu.PC)),
		"mmio_reads", stats.Reads,
		"mmio_writes", stats.Writes,
		"active_irqs", s.ic.Depth())

	return err
}

// Close stops every timer and releases the script interpreter. It
// returns the error of any timer whose tick task did not exit.
func (s *Session) Close() error {
	err := s.stopTimers()

	if s.script != nil {
		s.script.Close()
		s.script = nil
	}

	return err
}

func (s *Session) stopTimers() error {
	var g errgroup.Group
	for _, t := range s.timers {
		g.Go(t.Stop)
	}
	return g.Wait()
}

// Raise enters interrupt n as the hardware would. Called from a memory
// access, such as a device callback, the interrupt is taken before the
// next instruction so that the access is not repeated after the handler
// returns. A missing handler is reported at once either way.
func (s *Session) Raise(n int) error {
	if !s.inAccess {
		_, err := s.ic.Enter(n)
		return err
	}

	if handler, ok := s.fw.Vectors.Handler(n); !ok || handler == 0 {
		return fmt.Errorf("irq %d: %w", n, irq.ErrNoHandler)
	}
	s.pending = append(s.pending, n)
	s.log.V(1).Info("interrupt pending", "irq", n)

	return nil
}

// OnTransmit registers an observer of every packet the radio transmits.
func (s *Session) OnTransmit(fn periph.TransmitFunc) {
	s.txObservers = append(s.txObservers, fn)
}

// Devices returns the modeled peripherals.
func (s *Session) Devices() []periph.Device {
	return s.devices
}

// Device returns a modeled peripheral by name.
func (s *Session) Device(name string) (periph.Device, bool) {
	return s.dispatcher.Device(name)
}

// Clock returns the CLOCK peripheral.
func (s *Session) Clock() *periph.Clock { return s.clock }

// GPIO returns the P0 port.
func (s *Session) GPIO() *periph.GPIO { return s.gpio }

// RTC returns RTC1.
func (s *Session) RTC() *periph.RTC { return s.rtc }

// Radio returns the RADIO peripheral.
func (s *Session) Radio() *periph.Radio { return s.radio }

// Timer returns TIMER0.
func (s *Session) Timer() *periph.Timer { return s.timer }

// Controller returns the interrupt controller.
func (s *Session) Controller() *irq.Controller { return s.ic }

// Dispatcher returns the MMIO dispatcher.
func (s *Session) Dispatcher() *mmio.Dispatcher { return s.dispatcher }

// Firmware returns the loaded image.
func (s *Session) Firmware() *loader.Firmware { return s.fw }
