package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"openenterprise/bootloader/config"
	"openenterprise/bootloader/image"
)

func newSignCmd() *cobra.Command {
	var (
		keyPath    string
		metaOffset uint32
		imageType  uint16
		intelHex   bool
	)

	cmd := &cobra.Command{
		Use:   "sign <payload> <out>",
		Short: "Patch the metadata record and append the firmware signature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := loadPayload(args[0], intelHex)
			if err != nil {
				return err
			}

			priv, err := readPrivateKey(keyPath)
			if err != nil {
				return fmt.Errorf("signing key: %w", err)
			}

			img, err := buildImage(payload, metaOffset, imageType, priv)
			if err != nil {
				return err
			}

			if err := os.WriteFile(args[1], img, 0644); err != nil {
				return err
			}
			log.Infof("signed %s: %d payload bytes, fw_len %d", args[1],
				len(img)-image.SignatureLen, len(img))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "EC P-256 signing key (PEM, required)")
	cmd.Flags().Uint32Var(&metaOffset, "meta-offset", config.DefaultMetaOffset, "metadata record offset inside the payload")
	cmd.Flags().Uint16Var(&imageType, "image-type", image.ImageType, "image_type field value")
	cmd.Flags().BoolVar(&intelHex, "hex", false, "payload is Intel HEX instead of a flat binary")
	cmd.MarkFlagRequired("key")
	return cmd
}
