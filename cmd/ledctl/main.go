package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/pixelbar/ledcontrol/internal/controller"
	"github.com/pixelbar/ledcontrol/internal/frame"
	"github.com/pixelbar/ledcontrol/internal/serialport"
)

func main() {
	// Console logging only; the CLI is a one-shot tool
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		device     string
		baud       int
		groups     int
		profile    string
		timeout    time.Duration
		autodetect bool
	)

	cmd := &cobra.Command{
		Use:   "ledctl color [color...]",
		Short: "Adjust the RGBW lighting at the pixelbar",
		Long: "Either 1 or group-count colors can be specified. A single color is used " +
			"for all groups. Colors are 1, 2, 3 or 4 hexadecimal bytes:\n" +
			"  1 byte  - the same value for the R, G, B and W channels\n" +
			"  2 bytes - one value for R, G and B, the other for W\n" +
			"  3 bytes - explicit R, G, B; W is turned off\n" +
			"  4 bytes - explicit R, G, B, W",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := frame.ByName(profile)
			if err != nil {
				return err
			}
			if autodetect {
				detected, err := serialport.Detect()
				if err != nil {
					return err
				}
				device = detected
			}

			ctrl := controller.New(serialport.New(timeout), controller.Config{
				Device:    device,
				Baud:      baud,
				Groups:    groups,
				Profile:   p,
				RateLimit: rate.Inf,
			})
			defer ctrl.Close()

			state, err := ctrl.SetHexColors(context.Background(), args)
			if err != nil {
				return err
			}
			fmt.Printf("Current colors: %s\n", strings.Join(state.HexColors(), " "))
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "/dev/tty.usbserial", "the serial device to connect with")
	cmd.Flags().IntVar(&baud, "baud", 9600, "the serial communication speed")
	cmd.Flags().IntVar(&groups, "groups", 4, "the number of wired LED groups")
	cmd.Flags().StringVar(&profile, "profile", "pixelbar-corrected", "the encoding profile of the controller firmware")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "serial write timeout")
	cmd.Flags().BoolVar(&autodetect, "autodetect", false, "scan for a ttyACM/usbserial device instead of using --device")

	return cmd
}
