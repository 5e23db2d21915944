package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the board's dictionary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetBool("raw")
		if raw {
			fmt.Println(string(c.DictionaryRaw()))
			return nil
		}
		fmt.Print(c.Dictionary().Summary())
		return nil
	},
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Read a channel's input voltage without sampling.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		channel, _ := cmd.Flags().GetUint32("channel")
		uv, err := c.Measure(channel)
		if err != nil {
			return err
		}
		fmt.Printf("channel %d: %d uV\n", channel, uv)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("raw", false, "Print the raw JSON")

	rootCmd.AddCommand(measureCmd)
	measureCmd.Flags().Uint32("channel", 0, "Channel index")
}
