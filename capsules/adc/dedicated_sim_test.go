package adc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"adcore/chips/simadc"
	"adcore/hil/adc"
	"adcore/kernel"
)

// countingSource yields the index of the sample period, so every sample
// converted at period ticks apart is one more than the previous.
type countingSource struct {
	period uint32
}

func (s countingSource) Microvolts(tick uint32) int32 {
	return int32(tick/s.period) * 1000
}

const (
	simFrequency = 12000
	simPeriod    = kernel.TimerFreq / simFrequency
)

func sequence(first, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(first + i)
	}
	return out
}

var _ = Describe("Dedicated with simulated hardware", func() {
	var (
		timers  *kernel.TimerQueue
		hw      *simadc.Peripheral
		procs   *kernel.Processes
		grant   *kernel.Grant[App]
		d       *Dedicated
		pid     kernel.ProcessID
		upcalls []kernel.Upcall
	)

	allow := func(allowNum uint, addr uint, length int) {
		buf, err := procs.NewBuffer(pid, addr, length)
		Expect(err).NotTo(HaveOccurred())
		_, err = d.AllowReadWrite(pid, allowNum, buf)
		Expect(err).NotTo(HaveOccurred())
	}

	samplesAt := func(addr uint, n int) []uint16 {
		raw, err := procs.ReadMemory(pid, addr, n*2)
		Expect(err).NotTo(HaveOccurred())
		out := make([]uint16, n)
		for i := range out {
			out[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		}
		return out
	}

	offset := func() int {
		var off int
		Expect(grant.Enter(pid, func(app *App, _ *kernel.Upcalls) {
			off = app.offset
		})).To(Succeed())
		return off
	}

	BeforeEach(func() {
		timers = kernel.NewTimerQueue()
		hw = simadc.New(timers, simadc.Config{
			ResolutionBits: 12,
			ReferenceMV:    4095,
			Sources:        []simadc.Source{countingSource{period: simPeriod}},
		})
		procs = kernel.NewProcesses(2048)
		grant = kernel.NewGrant[App](procs, kernel.DriverNumADC)
		d = NewDedicated(hw, grant, hw.Channels(),
			adc.NewBuffer(BufferSamples), adc.NewBuffer(BufferSamples), adc.NewBuffer(BufferSamples))
		pid = procs.Spawn()

		upcalls = nil
		procs.SetUpcallObserver(func(_ kernel.ProcessID, u kernel.Upcall) {
			upcalls = append(upcalls, u)
		})
	})

	It("should deliver a single sample from the timer", func() {
		Expect(d.Command(CmdSample, 0, 0, pid)).To(Equal(kernel.Success()))
		Expect(upcalls).To(BeEmpty())

		timers.Advance(simPeriod)
		Expect(upcalls).To(Equal([]kernel.Upcall{adcUpcall(0, 0, 0)}))
		Expect(d.Mode()).To(Equal(ModeIdle))
	})

	It("should sample continuously at the requested frequency", func() {
		Expect(d.Command(CmdSampleContinuous, 0, simFrequency, pid)).To(Equal(kernel.Success()))
		timers.Advance(3 * simPeriod)

		Expect(upcalls).To(Equal([]kernel.Upcall{
			adcUpcall(1, 0, 1),
			adcUpcall(1, 0, 2),
			adcUpcall(1, 0, 3),
		}))

		Expect(d.Command(CmdStop, 0, 0, pid)).To(Equal(kernel.Success()))
		timers.Advance(10 * simPeriod)
		Expect(upcalls).To(HaveLen(3))
		Expect(hw.Running()).To(BeFalse())
	})

	It("should fill one kernel buffer with exactly one upcall", func() {
		allow(AllowPrimary, kernel.MemoryBase, 2*BufferSamples)
		Expect(d.Command(CmdSampleBuffer, 0, simFrequency, pid)).To(Equal(kernel.Success()))
		Expect(d.PoolAvailable()).To(Equal(1))

		timers.Advance(BufferSamples * simPeriod)

		Expect(upcalls).To(Equal([]kernel.Upcall{
			adcUpcall(2, BufferSamples<<8, kernel.MemoryBase),
		}))
		Expect(d.Mode()).To(Equal(ModeIdle))
		Expect(d.PoolAvailable()).To(Equal(3))
		Expect(hw.Running()).To(BeFalse())
		Expect(samplesAt(kernel.MemoryBase, BufferSamples)).To(Equal(sequence(1, BufferSamples)))
	})

	It("should fill a caller buffer larger than the pool", func() {
		allow(AllowPrimary, kernel.MemoryBase, 1024)
		Expect(d.Command(CmdSampleBuffer, 0, simFrequency, pid)).To(Equal(kernel.Success()))

		timers.Advance(511 * simPeriod)
		Expect(upcalls).To(BeEmpty())

		timers.Advance(simPeriod)
		Expect(upcalls).To(Equal([]kernel.Upcall{
			adcUpcall(2, 512<<8, kernel.MemoryBase),
		}))
		Expect(samplesAt(kernel.MemoryBase, 512)).To(Equal(sequence(1, 512)))
		Expect(d.PoolAvailable()).To(Equal(3))
	})

	It("should alternate caller buffers without double copies", func() {
		buf1 := kernel.MemoryBase
		buf2 := kernel.MemoryBase + 512
		allow(AllowPrimary, buf1, 512)
		allow(AllowSecondary, buf2, 512)
		Expect(d.Command(CmdSampleBufferCont, 0, simFrequency, pid)).To(Equal(kernel.Success()))

		timers.Advance(256 * simPeriod)
		Expect(upcalls).To(Equal([]kernel.Upcall{adcUpcall(3, 256<<8, buf1)}))
		Expect(samplesAt(buf1, 256)).To(Equal(sequence(1, 256)))
		Expect(offset()).To(BeZero())

		timers.Advance(256 * simPeriod)
		Expect(upcalls).To(HaveLen(2))
		Expect(upcalls[1]).To(Equal(adcUpcall(3, 256<<8, buf2)))
		Expect(samplesAt(buf2, 256)).To(Equal(sequence(257, 256)))
		Expect(offset()).To(BeZero())

		timers.Advance(256 * simPeriod)
		Expect(upcalls).To(HaveLen(3))
		Expect(upcalls[2]).To(Equal(adcUpcall(3, 256<<8, buf1)))
		Expect(samplesAt(buf1, 256)).To(Equal(sequence(513, 256)))
		Expect(offset()).To(BeZero())

		Expect(d.Command(CmdStop, 0, 0, pid)).To(Equal(kernel.Success()))
		Expect(d.PoolAvailable()).To(Equal(3))
		Expect(hw.Running()).To(BeFalse())
	})

	It("should pre-fill the next caller buffer", func() {
		buf1 := kernel.MemoryBase
		buf2 := kernel.MemoryBase + 256
		allow(AllowPrimary, buf1, 200)
		allow(AllowSecondary, buf2, 400)
		Expect(d.Command(CmdSampleBufferCont, 0, simFrequency, pid)).To(Equal(kernel.Success()))

		timers.Advance(100 * simPeriod)
		Expect(upcalls).To(Equal([]kernel.Upcall{adcUpcall(3, 100<<8, buf1)}))
		Expect(samplesAt(buf1, 100)).To(Equal(sequence(1, 100)))

		timers.Advance(200 * simPeriod)
		Expect(upcalls).To(HaveLen(2))
		Expect(upcalls[1]).To(Equal(adcUpcall(3, 200<<8, buf2)))
		Expect(samplesAt(buf2, 200)).To(Equal(sequence(101, 200)))

		timers.Advance(100 * simPeriod)
		Expect(upcalls).To(HaveLen(3))
		Expect(samplesAt(buf1, 100)).To(Equal(sequence(301, 100)))

		timers.Advance(200 * simPeriod)
		Expect(upcalls).To(HaveLen(4))
		Expect(samplesAt(buf2, 200)).To(Equal(sequence(401, 200)))
	})

	It("should reclaim every buffer when the owner is revoked", func() {
		allow(AllowPrimary, kernel.MemoryBase, 512)
		allow(AllowSecondary, kernel.MemoryBase+512, 512)
		Expect(d.Command(CmdSampleBufferCont, 0, simFrequency, pid)).To(Equal(kernel.Success()))

		timers.Advance(300 * simPeriod)
		Expect(upcalls).To(HaveLen(1))

		Expect(procs.Fault(pid)).To(Succeed())
		timers.Advance(BufferSamples * simPeriod)

		Expect(upcalls).To(HaveLen(1))
		Expect(hw.Running()).To(BeFalse())
		Expect(d.Mode()).To(Equal(ModeIdle))
		Expect(d.PoolAvailable()).To(Equal(3))
		_, ok := d.Owner()
		Expect(ok).To(BeFalse())

		timers.Advance(1000 * simPeriod)
		Expect(upcalls).To(HaveLen(1))
	})

	It("should cancel a buffer in progress", func() {
		allow(AllowPrimary, kernel.MemoryBase, 1024)
		Expect(d.Command(CmdSampleBuffer, 0, simFrequency, pid)).To(Equal(kernel.Success()))

		timers.Advance(200 * simPeriod)
		Expect(d.Command(CmdStop, 0, 0, pid)).To(Equal(kernel.Success()))
		Expect(d.PoolAvailable()).To(Equal(3))

		timers.Advance(1000 * simPeriod)
		Expect(upcalls).To(BeEmpty())

		allow(AllowPrimary, kernel.MemoryBase, 256)
		Expect(d.Command(CmdSampleBuffer, 0, simFrequency, pid)).To(Equal(kernel.Success()))
		timers.Advance(BufferSamples * simPeriod)
		Expect(upcalls).To(HaveLen(1))
	})
})
