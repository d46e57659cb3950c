package svd_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/svd"
)

var _ = Describe("Analyze", func() {
	var dev *svd.Device

	BeforeEach(func() {
		var err error
		dev, err = svd.Parse(strings.NewReader(testSVD))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should group addresses by peripheral", func() {
		report := svd.Analyze(dev, []uint32{
			0x40008540, 0x40000100, 0x40008544, 0x60000000, 0x40000FFF, 0x60000000,
		})

		Expect(report.Peripherals).To(Equal([]string{"TIMER0", "CLOCK"}))
		Expect(report.Matched["TIMER0"]).To(Equal([]uint32{0x40008540, 0x40008544}))
		Expect(report.Matched["CLOCK"]).To(Equal([]uint32{0x40000100, 0x40000FFF}))
		Expect(report.Unmatched).To(Equal([]uint32{0x60000000}))
	})

	It("should treat the end of an address block as outside it", func() {
		report := svd.Analyze(dev, []uint32{0x4000A000})

		Expect(report.Unmatched).To(Equal([]uint32{0x4000A000}))
	})

	It("should print the report", func() {
		report := svd.Analyze(dev, []uint32{0x40000000, 0x70000000})

		var sb strings.Builder
		n, err := report.WriteTo(&sb)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(sb.Len())))
		Expect(sb.String()).To(Equal(
			"0x40000000 -> CLOCK\n" +
				"peripherals: CLOCK\n" +
				"unmatched addresses: 1\n" +
				"0x70000000\n"))
	})
})

var _ = Describe("ReadAddressList", func() {
	It("should parse hex addresses with and without a prefix", func() {
		addrs, err := svd.ReadAddressList(strings.NewReader(
			"40000100\n\n# comment\n0x50000504\n  0X40001000  \n"))

		Expect(err).NotTo(HaveOccurred())
		Expect(addrs).To(Equal([]uint32{0x40000100, 0x50000504, 0x40001000}))
	})

	It("should report the failing line", func() {
		_, err := svd.ReadAddressList(strings.NewReader("40000100\nnope\n"))

		Expect(err).To(MatchError(ContainSubstring("line 2")))
	})
})
