package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newStageCmd() *cobra.Command {
	var flashSize uint32

	cmd := &cobra.Command{
		Use:   "stage <image> <out>",
		Short: "Pad an image to a full external-flash dump for emulator runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if uint32(len(img)) > flashSize {
				return fmt.Errorf("image (%d bytes) exceeds flash size (%d bytes)", len(img), flashSize)
			}

			// NOR flash erases to 0xFF; the dump mirrors a freshly
			// erased part with the image at offset 0.
			dump := make([]byte, flashSize)
			for i := range dump {
				dump[i] = 0xFF
			}
			copy(dump, img)

			if err := os.WriteFile(args[1], dump, 0644); err != nil {
				return err
			}
			log.Infof("staged %s: %d image bytes in a %d byte dump", args[1], len(img), flashSize)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&flashSize, "flash-size", 2*1024*1024, "external flash size in bytes")
	return cmd
}
