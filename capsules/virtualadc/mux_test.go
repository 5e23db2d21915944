package virtualadc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"adcore/hil/adc"
	"adcore/kernel"
)

type recordingClient struct {
	samples []uint16
}

func (c *recordingClient) SampleReady(sample uint16) {
	c.samples = append(c.samples, sample)
}

type rejectingClient struct {
	recordingClient
	rejected []error
}

func (c *rejectingClient) SampleRejected(err error) {
	c.rejected = append(c.rejected, err)
}

var _ = Describe("Mux", func() {
	var (
		mockCtrl *gomock.Controller
		hw       *MockAdc
		mux      *Mux
		d0, d1   *Device
		c0, c1   *recordingClient
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hw = NewMockAdc(mockCtrl)
		hw.EXPECT().SetClient(gomock.Any())

		mux = NewMux(hw)
		d0 = NewDevice(mux, 4)
		d1 = NewDevice(mux, 7)
		c0 = &recordingClient{}
		c1 = &recordingClient{}
		d0.SetClient(c0)
		d1.SetClient(c1)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should sample the device's channel", func() {
		hw.EXPECT().Sample(adc.Channel(4)).Return(nil)

		Expect(d0.Sample()).To(Succeed())
		Expect(mux.Busy()).To(BeTrue())

		mux.SampleReady(11)
		Expect(c0.samples).To(Equal([]uint16{11}))
		Expect(mux.Busy()).To(BeFalse())
		Expect(d0.Channel()).To(Equal(adc.Channel(4)))
	})

	It("should return a rejection of an immediate request", func() {
		hw.EXPECT().Sample(adc.Channel(4)).Return(kernel.ErrOff)

		Expect(d0.Sample()).To(MatchError(kernel.ErrOff))
		Expect(mux.Busy()).To(BeFalse())

		hw.EXPECT().Sample(adc.Channel(4)).Return(nil)
		Expect(d0.Sample()).To(Succeed())
	})

	It("should queue requests while the converter is busy", func() {
		gomock.InOrder(
			hw.EXPECT().Sample(adc.Channel(4)).Return(nil),
			hw.EXPECT().Sample(adc.Channel(7)).Return(nil),
		)

		Expect(d0.Sample()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		Expect(mux.Pending()).To(Equal(1))
		Expect(d1.Sample()).To(MatchError(kernel.ErrBusy))

		mux.SampleReady(1)
		Expect(mux.Pending()).To(BeZero())
		mux.SampleReady(2)

		Expect(c0.samples).To(Equal([]uint16{1}))
		Expect(c1.samples).To(Equal([]uint16{2}))
	})

	It("should skip a queued request that was stopped", func() {
		hw.EXPECT().Sample(adc.Channel(4)).Return(nil)

		Expect(d0.Sample()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		Expect(d1.StopSampling()).To(Succeed())

		mux.SampleReady(3)
		Expect(mux.Busy()).To(BeFalse())
		Expect(c1.samples).To(BeEmpty())
	})

	It("should queue a request renewed after a stop behind earlier ones", func() {
		d2 := NewDevice(mux, 9)
		c2 := &recordingClient{}
		d2.SetClient(c2)
		gomock.InOrder(
			hw.EXPECT().Sample(adc.Channel(4)).Return(nil),
			hw.EXPECT().Sample(adc.Channel(9)).Return(nil),
			hw.EXPECT().Sample(adc.Channel(7)).Return(nil),
		)

		Expect(d0.Sample()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		Expect(d2.Sample()).To(Succeed())
		Expect(d1.StopSampling()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		Expect(mux.Pending()).To(Equal(2))

		mux.SampleReady(1)
		mux.SampleReady(2)
		mux.SampleReady(3)
		Expect(c2.samples).To(Equal([]uint16{2}))
		Expect(c1.samples).To(Equal([]uint16{3}))
	})

	It("should tell the client when a queued request is refused", func() {
		rc := &rejectingClient{}
		d1.SetClient(rc)
		gomock.InOrder(
			hw.EXPECT().Sample(adc.Channel(4)).Return(nil),
			hw.EXPECT().Sample(adc.Channel(7)).Return(kernel.ErrOff),
		)

		Expect(d0.Sample()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		mux.SampleReady(5)

		Expect(rc.rejected).To(Equal([]error{kernel.ErrOff}))
		Expect(rc.samples).To(BeEmpty())
		Expect(mux.Busy()).To(BeFalse())
	})

	It("should stop the converter for the device being served", func() {
		gomock.InOrder(
			hw.EXPECT().Sample(adc.Channel(4)).Return(nil),
			hw.EXPECT().StopSampling().Return(nil),
			hw.EXPECT().Sample(adc.Channel(7)).Return(nil),
		)

		Expect(d0.Sample()).To(Succeed())
		Expect(d1.Sample()).To(Succeed())
		Expect(d0.StopSampling()).To(Succeed())

		Expect(mux.Busy()).To(BeTrue())
		mux.SampleReady(8)
		Expect(c0.samples).To(BeEmpty())
		Expect(c1.samples).To(Equal([]uint16{8}))
	})

	It("should not support continuous sampling", func() {
		Expect(d0.SampleContinuous(100)).To(MatchError(kernel.ErrNoSupport))
	})

	It("should pass metadata through", func() {
		hw.EXPECT().ResolutionBits().Return(uint(12))
		hw.EXPECT().VoltageReferenceMV().Return(uint32(3300), true)

		Expect(d1.ResolutionBits()).To(Equal(uint(12)))
		mv, ok := d1.VoltageReferenceMV()
		Expect(ok).To(BeTrue())
		Expect(mv).To(Equal(uint32(3300)))
	})
})
