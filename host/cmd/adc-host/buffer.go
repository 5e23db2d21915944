package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adcore/capsules/adc"
	"adcore/host/client"
	"adcore/kernel"
)

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Fill one buffer of samples.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		channel, _ := flags.GetUint32("channel")
		freq, _ := flags.GetUint32("freq")
		samples, _ := flags.GetUint32("samples")

		addr := uint32(kernel.MemoryBase)
		if err := s.allow(adc.AllowPrimary, addr, 2*samples); err != nil {
			return err
		}
		if _, err := s.command(adc.CmdSampleBuffer, channel, freq); err != nil {
			return err
		}
		up, err := s.waitUpcall()
		if err != nil {
			return err
		}
		return s.printBuffer(up)
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Fill two buffers in turn, printing each as it completes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		channel, _ := flags.GetUint32("channel")
		freq, _ := flags.GetUint32("freq")
		samples, _ := flags.GetUint32("samples")
		buffers, _ := flags.GetInt("buffers")

		addr := uint32(kernel.MemoryBase)
		if err := s.allow(adc.AllowPrimary, addr, 2*samples); err != nil {
			return err
		}
		if err := s.allow(adc.AllowSecondary, addr+2*samples, 2*samples); err != nil {
			return err
		}
		if _, err := s.command(adc.CmdSampleBufferCont, channel, freq); err != nil {
			return err
		}
		for i := 0; i < buffers; i++ {
			up, err := s.waitUpcall()
			if err != nil {
				return err
			}
			fmt.Printf("buffer %d at %#x:\n", i, up.Arg2)
			if err := s.printBuffer(up); err != nil {
				return err
			}
		}
		_, err = s.command(adc.CmdStop, 0, 0)
		return err
	},
}

func (s *session) allow(num, addr, length uint32) error {
	_, _, err := s.client.Allow(s.pid, kernel.DriverNumADC, num, addr, length)
	if err != nil {
		return fmt.Errorf("allow %d: %w", num, err)
	}
	return nil
}

// printBuffer reads back the buffer a buffered upcall reports.
func (s *session) printBuffer(up client.Upcall) error {
	samples := int(up.Arg1 >> 8)
	mem, err := s.client.ReadMemory(s.pid, up.Arg2, 2*samples)
	if err != nil {
		return err
	}
	for i := 0; i < samples; i++ {
		v := uint32(mem[2*i]) | uint32(mem[2*i+1])<<8
		fmt.Printf("%d\t%d\t%s mV\n", i, v, s.toMillivolts(v))
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{bufferCmd, streamCmd} {
		rootCmd.AddCommand(c)
		c.Flags().Uint32("channel", 0, "Channel index")
		c.Flags().Uint32("freq", 1000, "Sampling frequency in Hz")
		c.Flags().Uint32("samples", 64, "Samples per buffer")
	}
	streamCmd.Flags().Int("buffers", 4, "Buffers to print before stopping")
}
