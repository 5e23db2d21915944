package adc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"adcore/hil/adc"
	"adcore/kernel"
)

var _ = Describe("App", func() {
	var app *App

	BeforeEach(func() {
		app = &App{}
	})

	DescribeTable("planSingleBuffer",
		func(callerLen, len1, len2, remaining int) {
			l1, l2 := app.planSingleBuffer(callerLen, BufferSamples, BufferSamples)
			Expect(l1).To(Equal(len1))
			Expect(l2).To(Equal(len2))
			Expect(app.remaining).To(Equal(remaining))
			Expect(app.outstanding).To(Equal(len1 + len2))
		},
		Entry("demand fits the first buffer", 256, 128, 0, 0),
		Entry("demand fits both buffers", 512, 128, 128, 0),
		Entry("demand exceeds both buffers", 1024, 128, 128, 256),
		Entry("odd byte is ignored", 9, 4, 0, 0),
	)

	DescribeTable("planContinuous",
		func(callerLen, nextLen, len1, len2, remaining, outstanding, nextOutstanding int) {
			l1, l2 := app.planContinuous(callerLen, nextLen, BufferSamples, BufferSamples)
			Expect(l1).To(Equal(len1))
			Expect(l2).To(Equal(len2))
			Expect(app.remaining).To(Equal(remaining))
			Expect(app.outstanding).To(Equal(outstanding))
			Expect(app.nextOutstanding).To(Equal(nextOutstanding))
		},
		Entry("second buffer starts on the next caller buffer", 200, 400, 100, 128, 0, 100, 128),
		Entry("next caller buffer is small", 256, 20, 128, 10, 0, 128, 10),
		Entry("demand fits both buffers", 512, 512, 128, 128, 0, 256, 0),
		Entry("demand exceeds both buffers", 1024, 512, 128, 128, 256, 256, 0),
	)

	It("should copy samples low byte first", func() {
		procs := kernel.NewProcesses(64)
		pid := procs.Spawn()
		buf, err := procs.NewBuffer(pid, kernel.MemoryBase, 8)
		Expect(err).NotTo(HaveOccurred())
		app.buf1 = buf

		app.copyIn(&adc.Buffer{Samples: []uint16{0x0102, 0xA0B0}}, 2)
		Expect(app.offset).To(Equal(4))
		app.copyIn(&adc.Buffer{Samples: []uint16{0x0304}}, 1)

		mem, _ := procs.ReadMemory(pid, kernel.MemoryBase, 8)
		Expect(mem).To(Equal([]byte{0x02, 0x01, 0xB0, 0xA0, 0x04, 0x03, 0, 0}))
	})

	It("should drop samples past the end of the caller buffer", func() {
		procs := kernel.NewProcesses(64)
		pid := procs.Spawn()
		buf, _ := procs.NewBuffer(pid, kernel.MemoryBase, 3)
		app.buf1 = buf

		app.copyIn(&adc.Buffer{Samples: []uint16{0x1111, 0x2222, 0x3333}}, 3)
		Expect(app.offset).To(Equal(6))

		mem, _ := procs.ReadMemory(pid, kernel.MemoryBase, 4)
		Expect(mem).To(Equal([]byte{0x11, 0x11, 0x22, 0}))
	})

	It("should reset the offset when swapping", func() {
		app.offset = 12
		app.swapActive()
		Expect(app.offset).To(BeZero())
		Expect(app.active()).To(BeIdenticalTo(&app.buf2))
		Expect(app.next()).To(BeIdenticalTo(&app.buf1))
	})
})
