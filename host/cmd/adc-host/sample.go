package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adcore/capsules/adc"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Take one sample.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		channel, _ := cmd.Flags().GetUint32("channel")

		if _, err := s.command(adc.CmdSample, channel, 0); err != nil {
			return err
		}
		up, err := s.waitUpcall()
		if err != nil {
			return err
		}
		fmt.Printf("channel %d: %d (%s mV)\n", up.Arg1, up.Arg2, s.toMillivolts(up.Arg2))
		return nil
	},
}

var continuousCmd = &cobra.Command{
	Use:   "continuous",
	Short: "Sample one channel repeatedly, then stop.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		channel, _ := flags.GetUint32("channel")
		freq, _ := flags.GetUint32("freq")
		count, _ := flags.GetInt("count")

		if _, err := s.command(adc.CmdSampleContinuous, channel, freq); err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			up, err := s.waitUpcall()
			if err != nil {
				return err
			}
			fmt.Printf("%d\t%d\t%s mV\n", i, up.Arg2, s.toMillivolts(up.Arg2))
		}
		_, err = s.command(adc.CmdStop, 0, 0)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().Uint32("channel", 0, "Channel index")

	rootCmd.AddCommand(continuousCmd)
	continuousCmd.Flags().Uint32("channel", 0, "Channel index")
	continuousCmd.Flags().Uint32("freq", 10, "Sampling frequency in Hz")
	continuousCmd.Flags().Int("count", 10, "Samples to print before stopping")
}
