package mmio_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/mmio"
	"github.com/sarchlab/nrfsim/periph"
)

// snapshot records every register value of every device.
func snapshot(devices []periph.Device) map[string]uint32 {
	values := map[string]uint32{}
	for _, d := range devices {
		for _, r := range d.Registers().Registers() {
			values[d.Name()+"."+r.Name] = r.Value
		}
	}
	return values
}

var _ = Describe("Dispatcher", func() {
	var (
		machine    *emu.Emulator
		gpio       *periph.GPIO
		clock      *periph.Clock
		timer      *periph.Timer
		devices    []periph.Device
		dispatcher *mmio.Dispatcher
	)

	BeforeEach(func() {
		machine = emu.NewEmulator()
		Expect(machine.MapRegion(emu.Region{Name: "sram", Base: 0x20000000, Size: 0x1000})).To(Succeed())
		Expect(machine.MapRegion(emu.Region{Name: "periph", Base: 0x40000000, Size: 0x40000})).To(Succeed())
		Expect(machine.MapRegion(emu.Region{Name: "gpio", Base: 0x50000000, Size: 0x1000})).To(Succeed())

		var err error
		clock, err = periph.NewClock(periph.ClockBase)
		Expect(err).NotTo(HaveOccurred())
		gpio, err = periph.NewGPIO(periph.P0Base)
		Expect(err).NotTo(HaveOccurred())
		rtc, err := periph.NewRTC(periph.RTC1Base)
		Expect(err).NotTo(HaveOccurred())
		radio, err := periph.NewRadio(periph.RadioBase, machine)
		Expect(err).NotTo(HaveOccurred())
		timer, err = periph.NewTimer("TIMER0", periph.Timer0Base)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(timer.Stop)

		devices = []periph.Device{clock, gpio, rtc, radio, timer}
		table, err := mmio.NewRangeTable(devices...)
		Expect(err).NotTo(HaveOccurred())

		dispatcher, err = mmio.NewDispatcher(table, machine, devices, mmio.WithLogger(GinkgoLogr))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject duplicate device names", func() {
		table, err := mmio.NewRangeTable(clock)
		Expect(err).NotTo(HaveOccurred())

		_, err = mmio.NewDispatcher(table, machine, []periph.Device{clock, clock})
		Expect(err).To(MatchError(mmio.ErrDuplicateDevice))
	})

	It("should mirror a register into memory on read", func() {
		dispatcher.Access(emu.AccessRead, periph.ClockBase+0x100, 4, 0)

		data, err := machine.ReadMem(periph.ClockBase+0x100, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte{1, 0, 0, 0}))
		Expect(dispatcher.Stats().Reads).To(Equal(uint64(1)))
	})

	It("should mirror the whole register for a byte read inside it", func() {
		clock.Registers().SetByAddress(periph.ClockBase+0x40C, 0x00010001)

		dispatcher.Access(emu.AccessRead, periph.ClockBase+0x40E, 1, 0)

		data, err := machine.ReadMem(periph.ClockBase+0x40C, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte{0x01, 0x00, 0x01, 0x00}))
		Expect(dispatcher.Stats().Reads).To(Equal(uint64(1)))
	})

	It("should leave memory alone for an unknown register in a device region", func() {
		Expect(machine.WriteMem(periph.ClockBase+0x800, []byte{0xAA, 0, 0, 0})).To(Succeed())

		dispatcher.Read(periph.ClockBase + 0x800)

		data, _ := machine.ReadMem(periph.ClockBase+0x800, 4)
		Expect(data).To(Equal([]byte{0xAA, 0, 0, 0}))
	})

	It("should let a device run its side effects on write", func() {
		var pins []int
		gpio.OnPins(func(_ periph.PinChange, p []int) { pins = p })

		dispatcher.Access(emu.AccessWrite, periph.P0Base+0x508, 4, 0b101)

		Expect(pins).To(Equal([]int{0, 2}))
		Expect(dispatcher.Stats().Writes).To(Equal(uint64(1)))
	})

	It("should ignore accesses no device owns", func() {
		Expect(machine.WriteMem(0x20000000, []byte{1, 2, 3, 4})).To(Succeed())
		before := snapshot(devices)

		dispatcher.Read(0x20000000)
		dispatcher.Write(0x20000000, 0xFFFFFFFF)
		dispatcher.Write(0x40003000, 0xFFFFFFFF)

		data, _ := machine.ReadMem(0x20000000, 4)
		Expect(data).To(Equal([]byte{1, 2, 3, 4}))
		Expect(snapshot(devices)).To(Equal(before))
		Expect(dispatcher.Stats()).To(Equal(mmio.Stats{Unowned: 3}))
	})

	It("should only change the owning device on write", func() {
		for _, owner := range devices {
			if owner == periph.Device(timer) {
				// TASKS_START would spawn the tick task
				continue
			}
			for _, reg := range owner.Registers().Registers() {
				before := snapshot(devices)

				dispatcher.Write(reg.Addr, 0x5A)

				after := snapshot(devices)
				for _, other := range devices {
					if other == owner {
						continue
					}
					for _, r := range other.Registers().Registers() {
						key := other.Name() + "." + r.Name
						Expect(after[key]).To(Equal(before[key]),
							"writing %s.%s changed %s", owner.Name(), reg.Name, key)
					}
				}
			}
		}
	})

	It("should start and stop a timer through its task registers", func() {
		dispatcher.Write(periph.Timer0Base+0x000, 1)
		Expect(timer.Running()).To(BeTrue())

		dispatcher.Write(periph.Timer0Base+0x004, 1)
		Expect(timer.Running()).To(BeFalse())
	})

	It("should expose the devices", func() {
		Expect(dispatcher.Devices()).To(HaveLen(5))

		d, ok := dispatcher.Device("RADIO")
		Expect(ok).To(BeTrue())
		Expect(d.Base()).To(Equal(uint32(periph.RadioBase)))

		_, ok = dispatcher.Device("UARTE0")
		Expect(ok).To(BeFalse())
	})
})
