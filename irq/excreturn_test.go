package irq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/irq"
)

var _ = Describe("EXC_RETURN", func() {
	DescribeTable("encoding",
		func(spsel, fpca bool, expected uint32) {
			Expect(irq.EncodeExcReturn(spsel, fpca)).To(Equal(expected))
		},
		Entry("MSP, no FP context", false, false, uint32(0xFFFFFFF9)),
		Entry("PSP, no FP context", true, false, uint32(0xFFFFFFFD)),
		Entry("MSP, FP context", false, true, uint32(0xFFFFFFE9)),
		Entry("PSP, FP context", true, true, uint32(0xFFFFFFED)),
	)

	DescribeTable("round trip",
		func(spsel, fpca bool) {
			s, f := irq.DecodeExcReturn(irq.EncodeExcReturn(spsel, fpca))
			Expect(s).To(Equal(spsel))
			Expect(f).To(Equal(fpca))
		},
		Entry("spsel=0 fpca=0", false, false),
		Entry("spsel=1 fpca=0", true, false),
		Entry("spsel=0 fpca=1", false, true),
		Entry("spsel=1 fpca=1", true, true),
	)

	It("should recognize the reserved range", func() {
		Expect(irq.IsExcReturn(0xFFFFFF00)).To(BeTrue())
		Expect(irq.IsExcReturn(0xFFFFFFF8)).To(BeTrue())
		Expect(irq.IsExcReturn(0xFFFFFEFF)).To(BeFalse())
		Expect(irq.IsExcReturn(0x000020AB)).To(BeFalse())
	})

	It("should report frame sizes", func() {
		Expect(irq.FrameSize(false)).To(Equal(uint32(32)))
		Expect(irq.FrameSize(true)).To(Equal(uint32(32 + 68)))
	})
})
