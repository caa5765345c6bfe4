// Command bootctl is the host-side companion of the bootloader: it
// generates the trust anchor tables, signs and inspects firmware images,
// and verifies them with the same pipeline the device runs.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "bootctl",
		Short: "Build, sign and inspect bootloader firmware images",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	root.AddCommand(
		newGenAnchorsCmd(),
		newSignCmd(),
		newVerifyCmd(),
		newInspectCmd(),
		newStageCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
