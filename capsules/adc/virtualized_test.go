package adc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"adcore/hil/adc"
	"adcore/kernel"
)

var _ = Describe("Virtualized", func() {
	var (
		mockCtrl *gomock.Controller
		ch0, ch1 *MockAdcChannel
		procs    *kernel.Processes
		v        *Virtualized
		a, b, c  kernel.ProcessID
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		ch0 = NewMockAdcChannel(mockCtrl)
		ch1 = NewMockAdcChannel(mockCtrl)
		ch0.EXPECT().SetClient(gomock.Any())
		ch1.EXPECT().SetClient(gomock.Any())

		procs = kernel.NewProcesses(64)
		v = NewVirtualized([]adc.AdcChannel{ch0, ch1}, kernel.NewGrant[AppSys](procs, kernel.DriverNumADC))
		a = procs.Spawn()
		b = procs.Spawn()
		c = procs.Spawn()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report the channel count to anyone", func() {
		Expect(v.Command(CmdChannels, 0, 0, a)).To(Equal(kernel.SuccessU32(2)))
		Expect(v.Command(CmdChannels, 0, 0, b)).To(Equal(kernel.SuccessU32(2)))
	})

	It("should answer metadata per channel", func() {
		ch1.EXPECT().ResolutionBits().Return(uint(10))
		ch1.EXPECT().VoltageReferenceMV().Return(uint32(1800), true)

		Expect(v.Command(CmdResolutionBits, 1, 0, a)).To(Equal(kernel.SuccessU32(10)))
		Expect(v.Command(CmdVoltageReference, 1, 0, a)).To(Equal(kernel.SuccessU32(1800)))
		Expect(v.Command(CmdResolutionBits, 2, 0, a).Err).To(Equal(kernel.ErrNoDevice))
	})

	It("should not support buffered commands or buffers", func() {
		Expect(v.Command(CmdSampleBuffer, 0, 100, a).Err).To(Equal(kernel.ErrNoSupport))
		buf, _ := procs.NewBuffer(a, kernel.MemoryBase, 4)
		returned, err := v.AllowReadWrite(a, AllowPrimary, buf)
		Expect(err).To(Equal(kernel.ErrNoSupport))
		Expect(returned).To(Equal(buf))
	})

	It("should reject a channel out of range", func() {
		Expect(v.Command(CmdSample, 2, 0, a).Err).To(Equal(kernel.ErrNoDevice))
	})

	It("should reject channel numbers too large for an int", func() {
		for _, cmd := range []uint{CmdSample, CmdResolutionBits, CmdVoltageReference} {
			Expect(v.Command(cmd, ^uint(0), 0, a).Err).To(Equal(kernel.ErrNoDevice), "command %d", cmd)
		}
	})

	It("should move on when the hardware refuses a request after queueing it", func() {
		gomock.InOrder(
			ch0.EXPECT().Sample().Return(nil),
			ch1.EXPECT().Sample().Return(nil),
		)

		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 1, 0, b).IsSuccess()).To(BeTrue())

		v.SampleRejected(kernel.ErrOff)
		pid, ok := v.InFlight()
		Expect(ok).To(BeTrue())
		Expect(pid).To(Equal(b))
		Expect(procs.TakeUpcalls(a)).To(BeEmpty())

		v.SampleReady(6)
		Expect(procs.TakeUpcalls(b)).To(Equal([]kernel.Upcall{adcUpcall(0, 1, 6)}))

		v.SampleRejected(kernel.ErrOff)
		_, ok = v.InFlight()
		Expect(ok).To(BeFalse())
	})

	It("should dispatch immediately when idle", func() {
		ch1.EXPECT().Sample().Return(nil)
		Expect(v.Command(CmdSample, 1, 0, a)).To(Equal(kernel.Success()))

		pid, ok := v.InFlight()
		Expect(ok).To(BeTrue())
		Expect(pid).To(Equal(a))

		v.SampleReady(0x3FF)
		Expect(procs.TakeUpcalls(a)).To(Equal([]kernel.Upcall{adcUpcall(0, 1, 0x3FF)}))
		_, ok = v.InFlight()
		Expect(ok).To(BeFalse())
	})

	It("should surface a hardware rejection synchronously", func() {
		ch0.EXPECT().Sample().Return(kernel.ErrOff)
		Expect(v.Command(CmdSample, 0, 0, a).Err).To(Equal(kernel.ErrOff))
		_, ok := v.InFlight()
		Expect(ok).To(BeFalse())
	})

	It("should allow one queued request per process", func() {
		ch0.EXPECT().Sample().Return(nil)
		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())

		Expect(v.Command(CmdSample, 1, 0, b).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 0, 0, b).Err).To(Equal(kernel.ErrBusy))
		Expect(v.Waiting()).To(Equal(1))
	})

	It("should serve queued requests in order", func() {
		gomock.InOrder(
			ch0.EXPECT().Sample().Return(nil),
			ch1.EXPECT().Sample().Return(nil),
			ch0.EXPECT().Sample().Return(nil),
		)

		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 1, 0, c).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 0, 0, b).IsSuccess()).To(BeTrue())

		v.SampleReady(1)
		pid, _ := v.InFlight()
		Expect(pid).To(Equal(c))

		v.SampleReady(2)
		pid, _ = v.InFlight()
		Expect(pid).To(Equal(b))

		v.SampleReady(3)
		Expect(v.Waiting()).To(BeZero())

		Expect(procs.TakeUpcalls(a)).To(Equal([]kernel.Upcall{adcUpcall(0, 0, 1)}))
		Expect(procs.TakeUpcalls(c)).To(Equal([]kernel.Upcall{adcUpcall(0, 1, 2)}))
		Expect(procs.TakeUpcalls(b)).To(Equal([]kernel.Upcall{adcUpcall(0, 0, 3)}))
	})

	It("should skip requests of processes that went away", func() {
		gomock.InOrder(
			ch0.EXPECT().Sample().Return(nil),
			ch1.EXPECT().Sample().Return(nil),
		)

		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 0, 0, b).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 1, 0, c).IsSuccess()).To(BeTrue())
		Expect(procs.Kill(b)).To(Succeed())

		v.SampleReady(5)
		pid, _ := v.InFlight()
		Expect(pid).To(Equal(c))
	})

	It("should drop a queued request the hardware rejects", func() {
		gomock.InOrder(
			ch0.EXPECT().Sample().Return(nil),
			ch1.EXPECT().Sample().Return(kernel.ErrBusy),
			ch0.EXPECT().Sample().Return(nil),
		)

		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 1, 0, b).IsSuccess()).To(BeTrue())
		Expect(v.Command(CmdSample, 0, 0, c).IsSuccess()).To(BeTrue())

		v.SampleReady(9)
		pid, ok := v.InFlight()
		Expect(ok).To(BeTrue())
		Expect(pid).To(Equal(c))

		// The dropped process may queue again.
		Expect(v.Command(CmdSample, 1, 0, b).IsSuccess()).To(BeTrue())
		Expect(procs.TakeUpcalls(b)).To(BeEmpty())
	})

	It("should not deliver a sample for an owner that crashed", func() {
		ch0.EXPECT().Sample().Return(nil)
		Expect(v.Command(CmdSample, 0, 0, a).IsSuccess()).To(BeTrue())
		Expect(procs.Fault(a)).To(Succeed())

		v.SampleReady(4)
		_, ok := v.InFlight()
		Expect(ok).To(BeFalse())
		Expect(procs.TakeUpcalls(a)).To(BeEmpty())
	})
})
