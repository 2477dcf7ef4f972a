package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chroniclehq/chronicle/internal/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio devices",
	Long: `List the audio capture devices the daemon can record from. Input devices
capture microphones; output devices capture what is played through speakers.
Pass a device to 'record' with --audio-device "name (input)" or
--audio-device "name (output)".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		enum := device.PulseEnumerator{}
		devices, err := enum.List()
		if err != nil {
			return fmt.Errorf("failed to list audio devices: %w", err)
		}

		defaultIn, _ := enum.DefaultInput()
		defaultOut, _ := enum.DefaultOutput()

		if len(devices) == 0 {
			fmt.Println("No audio devices found")
			return nil
		}

		fmt.Println("Available audio devices:")
		for _, d := range devices {
			marker := ""
			if d == defaultIn || d == defaultOut {
				marker = " (default)"
			}
			fmt.Printf("  %s%s\n", d.String(), marker)
		}
		return nil
	},
}
