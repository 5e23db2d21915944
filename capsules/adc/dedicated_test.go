package adc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"adcore/hil/adc"
	"adcore/kernel"
)

func adcUpcall(a0, a1, a2 uint) kernel.Upcall {
	return kernel.Upcall{
		Driver:    kernel.DriverNumADC,
		Subscribe: SubscribeADC,
		Args:      [3]uint{a0, a1, a2},
	}
}

var _ = Describe("Dedicated", func() {
	var (
		mockCtrl *gomock.Controller
		hw       *MockHighSpeedAdc
		procs    *kernel.Processes
		grant    *kernel.Grant[App]
		d        *Dedicated
		pid      kernel.ProcessID
	)

	allow := func(p kernel.ProcessID, allowNum uint, addr uint, length int) {
		buf, err := procs.NewBuffer(p, addr, length)
		Expect(err).NotTo(HaveOccurred())
		_, err = d.AllowReadWrite(p, allowNum, buf)
		Expect(err).NotTo(HaveOccurred())
	}

	appState := func(p kernel.ProcessID) App {
		var snapshot App
		Expect(grant.Enter(p, func(app *App, _ *kernel.Upcalls) {
			snapshot = *app
		})).To(Succeed())
		return snapshot
	}

	// startBuffered arms a single-buffer operation and returns the kernel
	// buffers handed to the hardware.
	startBuffered := func(callerLen int, len1, len2 int) []*adc.Buffer {
		var held []*adc.Buffer
		allow(pid, AllowPrimary, kernel.MemoryBase, callerLen)
		hw.EXPECT().
			SampleHighSpeed(adc.Channel(0), uint32(1000), gomock.Any(), len1, gomock.Any(), len2).
			DoAndReturn(func(_ adc.Channel, _ uint32, b1 *adc.Buffer, _ int, b2 *adc.Buffer, _ int) error {
				held = []*adc.Buffer{b1, b2}
				return nil
			})
		Expect(d.Command(CmdSampleBuffer, 0, 1000, pid)).To(Equal(kernel.Success()))
		return held
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hw = NewMockHighSpeedAdc(mockCtrl)
		hw.EXPECT().SetClient(gomock.Any())
		hw.EXPECT().SetHighSpeedClient(gomock.Any())

		procs = kernel.NewProcesses(2048)
		grant = kernel.NewGrant[App](procs, kernel.DriverNumADC)
		d = NewDedicated(hw, grant, []adc.Channel{0, 1, 2},
			adc.NewBuffer(BufferSamples), adc.NewBuffer(BufferSamples), adc.NewBuffer(BufferSamples))
		pid = procs.Spawn()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report the channel count", func() {
		Expect(d.Command(CmdChannels, 0, 0, pid)).To(Equal(kernel.SuccessU32(3)))
		owner, ok := d.Owner()
		Expect(ok).To(BeTrue())
		Expect(owner).To(Equal(pid))
	})

	It("should answer metadata queries", func() {
		hw.EXPECT().ResolutionBits().Return(uint(12))
		hw.EXPECT().VoltageReferenceMV().Return(uint32(0), false)

		Expect(d.Command(CmdResolutionBits, 0, 0, pid)).To(Equal(kernel.SuccessU32(12)))
		Expect(d.Command(CmdVoltageReference, 0, 0, pid).Err).To(Equal(kernel.ErrNoSupport))
		Expect(d.Command(77, 0, 0, pid).Err).To(Equal(kernel.ErrNoSupport))
	})

	It("should deliver a single sample", func() {
		hw.EXPECT().Sample(adc.Channel(1)).Return(nil)

		Expect(d.Command(CmdSample, 1, 0, pid)).To(Equal(kernel.Success()))
		Expect(d.Mode()).To(Equal(ModeSingleSample))

		d.SampleReady(0x123)

		Expect(d.Mode()).To(Equal(ModeIdle))
		Expect(d.Active()).To(BeFalse())
		Expect(procs.TakeUpcalls(pid)).To(Equal([]kernel.Upcall{adcUpcall(0, 1, 0x123)}))
	})

	It("should reject a channel out of range", func() {
		Expect(d.Command(CmdSample, 3, 0, pid).Err).To(Equal(kernel.ErrInval))
		Expect(d.Command(CmdSampleBuffer, 9, 100, pid).Err).To(Equal(kernel.ErrInval))
		Expect(d.Mode()).To(Equal(ModeIdle))
	})

	It("should revert to idle when the hardware rejects a sample", func() {
		hw.EXPECT().SampleContinuous(adc.Channel(2), uint32(0)).Return(kernel.ErrInval)

		Expect(d.Command(CmdSampleContinuous, 2, 0, pid).Err).To(Equal(kernel.ErrInval))
		Expect(d.Active()).To(BeFalse())
		Expect(d.Mode()).To(Equal(ModeIdle))
	})

	It("should keep delivering continuous samples until stopped", func() {
		hw.EXPECT().SampleContinuous(adc.Channel(0), uint32(50)).Return(nil)
		Expect(d.Command(CmdSampleContinuous, 0, 50, pid)).To(Equal(kernel.Success()))

		d.SampleReady(1)
		d.SampleReady(2)
		Expect(d.Mode()).To(Equal(ModeContinuousSample))

		hw.EXPECT().StopSampling().Return(nil)
		hw.EXPECT().RetrieveBuffers().Return(nil, nil, nil)
		Expect(d.Command(CmdStop, 0, 0, pid)).To(Equal(kernel.Success()))

		Expect(d.Mode()).To(Equal(ModeIdle))
		Expect(procs.TakeUpcalls(pid)).To(Equal([]kernel.Upcall{
			adcUpcall(1, 0, 1),
			adcUpcall(1, 0, 2),
		}))
	})

	It("should stop the hardware when a sample arrives for nobody", func() {
		hw.EXPECT().SampleContinuous(adc.Channel(0), uint32(50)).Return(nil)
		Expect(d.Command(CmdSampleContinuous, 0, 50, pid)).To(Equal(kernel.Success()))
		Expect(procs.Fault(pid)).To(Succeed())

		hw.EXPECT().StopSampling().Return(nil)
		d.SampleReady(7)

		Expect(d.Mode()).To(Equal(ModeIdle))
		_, ok := d.Owner()
		Expect(ok).To(BeFalse())
	})

	It("should succeed stopping while idle", func() {
		Expect(d.Command(CmdStop, 0, 0, pid)).To(Equal(kernel.Success()))
	})

	Context("ownership", func() {
		var other kernel.ProcessID

		BeforeEach(func() {
			other = procs.Spawn()
			Expect(d.Command(CmdChannels, 0, 0, pid).IsSuccess()).To(BeTrue())
		})

		It("should reject a second process while the owner lives", func() {
			Expect(d.Command(CmdChannels, 0, 0, other).Err).To(Equal(kernel.ErrNoMem))

			buf, _ := procs.NewBuffer(other, kernel.MemoryBase, 8)
			returned, err := d.AllowReadWrite(other, AllowPrimary, buf)
			Expect(err).To(Equal(kernel.ErrNoMem))
			Expect(returned).To(Equal(buf))
		})

		It("should hand over after the owner dies", func() {
			Expect(procs.Kill(pid)).To(Succeed())
			Expect(d.Command(CmdChannels, 0, 0, other)).To(Equal(kernel.SuccessU32(3)))
			owner, _ := d.Owner()
			Expect(owner).To(Equal(other))
		})

		It("should not hand over while an operation is active", func() {
			hw.EXPECT().SampleContinuous(adc.Channel(0), uint32(10)).Return(nil)
			Expect(d.Command(CmdSampleContinuous, 0, 10, pid).IsSuccess()).To(BeTrue())
			Expect(procs.Kill(pid)).To(Succeed())

			Expect(d.Command(CmdChannels, 0, 0, other).Err).To(Equal(kernel.ErrNoMem))
		})
	})

	Context("buffer registration", func() {
		It("should return the previously registered buffer", func() {
			first, _ := procs.NewBuffer(pid, kernel.MemoryBase, 16)
			second, _ := procs.NewBuffer(pid, kernel.MemoryBase+16, 32)

			returned, err := d.AllowReadWrite(pid, AllowSecondary, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(returned.Len()).To(BeZero())

			returned, err = d.AllowReadWrite(pid, AllowSecondary, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(returned).To(Equal(first))
		})

		It("should return the buffer just passed when the process is gone", func() {
			buf, _ := procs.NewBuffer(pid, kernel.MemoryBase, 16)
			Expect(procs.Fault(pid)).To(Succeed())

			returned, err := d.AllowReadWrite(pid, AllowPrimary, buf)
			Expect(err).To(HaveOccurred())
			Expect(returned).To(Equal(buf))

			returned, err = d.AllowReadWrite(pid, AllowPrimary, buf)
			Expect(err).To(HaveOccurred())
			Expect(returned).To(Equal(buf))
		})

		It("should reject unknown allow numbers", func() {
			buf, _ := procs.NewBuffer(pid, kernel.MemoryBase, 16)
			returned, err := d.AllowReadWrite(pid, 5, buf)
			Expect(err).To(Equal(kernel.ErrNoSupport))
			Expect(returned).To(Equal(buf))
		})
	})

	Context("buffered sampling", func() {
		It("should fail without a caller buffer", func() {
			Expect(d.Command(CmdSampleBuffer, 0, 1000, pid).Err).To(Equal(kernel.ErrNoMem))
		})

		It("should require both caller buffers for continuous sampling", func() {
			allow(pid, AllowPrimary, kernel.MemoryBase, 256)
			Expect(d.Command(CmdSampleBufferCont, 0, 1000, pid).Err).To(Equal(kernel.ErrNoMem))
			Expect(d.PoolAvailable()).To(Equal(3))
		})

		It("should fail when the caller buffer cannot hold one sample", func() {
			allow(pid, AllowPrimary, kernel.MemoryBase, 1)
			Expect(d.Command(CmdSampleBuffer, 0, 1000, pid).Err).To(Equal(kernel.ErrNoMem))
			Expect(d.Active()).To(BeFalse())
			Expect(d.Mode()).To(Equal(ModeIdle))
			Expect(d.PoolAvailable()).To(Equal(3))
		})

		It("should fail continuous sampling when the second buffer cannot hold one sample", func() {
			allow(pid, AllowPrimary, kernel.MemoryBase, 256)
			allow(pid, AllowSecondary, kernel.MemoryBase+256, 1)
			Expect(d.Command(CmdSampleBufferCont, 0, 1000, pid).Err).To(Equal(kernel.ErrNoMem))
			Expect(d.Active()).To(BeFalse())
			Expect(d.PoolAvailable()).To(Equal(3))
		})

		It("should unwind when the hardware rejects the request", func() {
			allow(pid, AllowPrimary, kernel.MemoryBase, 256)
			hw.EXPECT().
				SampleHighSpeed(adc.Channel(0), uint32(0), gomock.Any(), 128, gomock.Any(), 0).
				Return(kernel.ErrInval)

			Expect(d.Command(CmdSampleBuffer, 0, 0, pid).Err).To(Equal(kernel.ErrInval))
			Expect(d.Mode()).To(Equal(ModeIdle))
			Expect(d.PoolAvailable()).To(Equal(3))

			app := appState(pid)
			Expect(app.remaining).To(BeZero())
			Expect(app.outstanding).To(BeZero())
		})

		It("should fail busy while active and leave state unchanged", func() {
			startBuffered(1024, 128, 128)
			before := appState(pid)

			allow(pid, AllowSecondary, kernel.MemoryBase+1024, 256)
			Expect(d.Command(CmdSampleBufferCont, 0, 1000, pid).Err).To(Equal(kernel.ErrBusy))
			Expect(d.Command(CmdSampleBuffer, 0, 1000, pid).Err).To(Equal(kernel.ErrBusy))
			Expect(d.Command(CmdSample, 0, 0, pid).Err).To(Equal(kernel.ErrBusy))

			Expect(d.Mode()).To(Equal(ModeSingleBuffer))
			after := appState(pid)
			Expect(after.remaining).To(Equal(before.remaining))
			Expect(after.outstanding).To(Equal(before.outstanding))
			Expect(after.offset).To(Equal(before.offset))
			Expect(d.PoolAvailable()).To(Equal(1))
		})

		It("should keep a buffer the hardware refuses in the pool", func() {
			held := startBuffered(1024, 128, 128)

			hw.EXPECT().ProvideBuffer(gomock.Any(), 128).Return(kernel.ErrBusy)
			d.SamplesReady(held[0], 128)

			Expect(d.PoolAvailable()).To(Equal(2))
			app := appState(pid)
			Expect(app.remaining).To(Equal(256))
			Expect(app.outstanding).To(Equal(128))
			Expect(app.offset).To(Equal(256))
		})

		It("should abandon the operation when the owner is gone", func() {
			held := startBuffered(512, 128, 128)
			Expect(procs.Kill(pid)).To(Succeed())

			hw.EXPECT().StopSampling().Return(nil)
			hw.EXPECT().RetrieveBuffers().Return(held[1], nil, nil)
			d.SamplesReady(held[0], 128)

			Expect(d.Mode()).To(Equal(ModeIdle))
			Expect(d.PoolAvailable()).To(Equal(3))
			_, ok := d.Owner()
			Expect(ok).To(BeFalse())
		})

		It("should stop and reclaim even when the owner is gone", func() {
			held := startBuffered(512, 128, 128)
			Expect(procs.Fault(pid)).To(Succeed())

			hw.EXPECT().StopSampling().Return(nil)
			hw.EXPECT().RetrieveBuffers().Return(held[0], held[1], nil)

			Expect(d.StopSampling()).To(Equal(kernel.ErrFail))
			Expect(d.Mode()).To(Equal(ModeIdle))
			Expect(d.PoolAvailable()).To(Equal(3))
		})
	})
})
