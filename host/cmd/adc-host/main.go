// Command adc-host drives the ADC driver of a board from the host side.
package main

import "github.com/tebeka/atexit"

func main() {
	code := 0
	if err := rootCmd.Execute(); err != nil {
		code = 1
	}
	atexit.Exit(code)
}
