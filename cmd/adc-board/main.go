// Command adc-board runs a simulated ADC board, serving the wire protocol
// on a serial device or on stdin/stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"adcore/board"
	"adcore/host/serial"
	"adcore/kernel"
)

var rootCmd = &cobra.Command{
	Use:   "adc-board",
	Short: "Run a simulated ADC board.",
	Long: `adc-board runs the kernel, the simulated converter and the ADC ` +
		`driver and serves them over the framed protocol. Configuration comes ` +
		`from ADC_BOARD_* variables, an optional .env file and an optional ` +
		`JSON board file.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("env", "", "Optional .env file")
	flags.String("config", "", "JSON board file (overrides "+board.EnvConfig+")")
	flags.String("device", "", "Serial device; stdin/stdout when empty")
	flags.Bool("debug", false, "Log kernel debug output to stderr")
	flags.Bool("stepped", false, "Only advance the clock on advance_clock")
}

type stdio struct {
	io.Reader
	io.Writer
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	envFile, _ := flags.GetString("env")
	configFile, _ := flags.GetString("config")

	if configFile != "" {
		if err := os.Setenv(board.EnvConfig, configFile); err != nil {
			return err
		}
	}
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := board.LoadEnv(files...)
	if err != nil {
		return err
	}
	if device, _ := flags.GetString("device"); device != "" {
		cfg.Device = device
	}
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.Debug = true
	}
	if stepped, _ := flags.GetBool("stepped"); stepped {
		cfg.Stepped = true
	}

	if cfg.Debug {
		kernel.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		kernel.SetDebugEnabled(true)
	}

	b, err := board.New(cfg)
	if err != nil {
		return err
	}

	var port io.ReadWriter = stdio{Reader: os.Stdin, Writer: os.Stdout}
	if cfg.Device != "" {
		serialCfg := serial.DefaultConfig(cfg.Device)
		serialCfg.Baud = cfg.Baud
		p, err := serial.Open(serialCfg)
		if err != nil {
			return err
		}
		atexit.Register(func() { _ = p.Close() })
		port = p
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "adc-board: %s driver, %d channels\n", cfg.Variant, cfg.Channels)
	return b.Run(ctx, port)
}

func main() {
	code := 0
	if err := rootCmd.Execute(); err != nil {
		code = 1
	}
	atexit.Exit(code)
}
