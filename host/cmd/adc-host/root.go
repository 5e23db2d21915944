package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"adcore/board"
	"adcore/host/client"
	"adcore/host/serial"
	"adcore/kernel"
)

// stepTicks is how far a stepped board is advanced while waiting.
const stepTicks = kernel.TimerFreq / 1000

var rootCmd = &cobra.Command{
	Use:   "adc-host",
	Short: "Sample a board's ADC driver from the host.",
	Long: `adc-host connects to a board over a serial device, or runs a ` +
		`simulated board in-process with --sim, spawns a process on it and ` +
		`issues ADC syscalls on that process's behalf.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("device", "/dev/ttyACM0", "Serial device of the board")
	flags.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	flags.Bool("sim", false, "Run a simulated board in-process")
	flags.String("env", "", "Optional .env file configuring the simulated board")
	flags.Duration("timeout", 5*time.Second, "How long to wait for upcalls")
}

// session is a connected client with a process spawned on the board.
type session struct {
	client  *client.Client
	pid     uint32
	stepped bool
	timeout time.Duration
}

func connect(cmd *cobra.Command) (*client.Client, error) {
	flags := cmd.Flags()
	c := client.New()

	sim, _ := flags.GetBool("sim")
	if sim {
		envFile, _ := flags.GetString("env")
		port, err := startSimulatedBoard(envFile)
		if err != nil {
			return nil, err
		}
		c.ConnectPort(port)
	} else {
		device, _ := flags.GetString("device")
		baud, _ := flags.GetInt("baud")
		cfg := serial.DefaultConfig(device)
		cfg.Baud = baud
		if err := c.Connect(cfg); err != nil {
			return nil, err
		}
	}
	atexit.Register(func() { _ = c.Close() })

	if err := c.RetrieveDictionary(); err != nil {
		return nil, err
	}
	return c, nil
}

func startSimulatedBoard(envFile string) (serial.Port, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := board.LoadEnv(files...)
	if err != nil {
		return nil, err
	}
	b, err := board.New(cfg)
	if err != nil {
		return nil, err
	}

	boardEnd, hostEnd := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx, boardEnd)
	}()
	atexit.Register(func() {
		cancel()
		<-done
		_ = boardEnd.Close()
	})
	return serial.Wrap(hostEnd), nil
}

// openSession connects and spawns the process that owns the requests.
func openSession(cmd *cobra.Command) (*session, error) {
	c, err := connect(cmd)
	if err != nil {
		return nil, err
	}
	pid, err := c.Spawn()
	if err != nil {
		return nil, err
	}
	stepped, _ := c.Dictionary().ConstantInt("CLOCK_STEPPED")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return &session{client: c, pid: pid, stepped: stepped == 1, timeout: timeout}, nil
}

// command issues an ADC command and turns a failure into an error.
func (s *session) command(cmd, arg1, arg2 uint32) (uint32, error) {
	res, err := s.client.Command(s.pid, kernel.DriverNumADC, cmd, arg1, arg2)
	if err != nil {
		return 0, err
	}
	if err := res.Error(); err != nil {
		return 0, fmt.Errorf("command %d: %w", cmd, err)
	}
	return res.Value, nil
}

// waitUpcall waits for the next upcall, advancing a stepped board's clock
// while it waits.
func (s *session) waitUpcall() (client.Upcall, error) {
	deadline := time.After(s.timeout)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case up := <-s.client.Upcalls():
			return up, nil
		case <-tick.C:
			if s.stepped {
				if _, err := s.client.Advance(stepTicks); err != nil {
					return client.Upcall{}, err
				}
			}
		case <-deadline:
			return client.Upcall{}, fmt.Errorf("no upcall after %v", s.timeout)
		}
	}
}

func (s *session) toMillivolts(sample uint32) string {
	bits, _ := s.client.Dictionary().ConstantInt("ADC_RESOLUTION_BITS")
	ref, err := s.client.Dictionary().ConstantInt("ADC_REFERENCE_MV")
	if err != nil || bits == 0 {
		return "?"
	}
	return fmt.Sprintf("%.1f", float64(sample)*float64(ref)/float64(uint32(1)<<bits-1))
}
