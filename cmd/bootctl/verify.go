package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"openenterprise/bootloader/config"
	"openenterprise/bootloader/verify"
)

func newVerifyCmd() *cobra.Command {
	var (
		pubkeyPath    string
		blacklistPath string
		metaOffset    uint32
		userLength    uint32
	)

	cmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "Run the device acceptance pipeline against an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := verify.Anchors{}
			var err error
			a.PubKey, err = readPublicKey(pubkeyPath)
			if err != nil {
				return fmt.Errorf("public key: %w", err)
			}

			if blacklistPath != "" {
				f, err := os.Open(blacklistPath)
				if err != nil {
					return err
				}
				digests, warnings, err := parseBlacklist(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("blacklist: %w", err)
				}
				if warnings != nil {
					log.Warnf("blacklist entries skipped:\n%v", warnings)
				}
				a.Blacklist = digests
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			meta, err := readMetaFromFile(f, metaOffset)
			if err != nil {
				return err
			}
			if err := meta.Validate(metaOffset, userLength); err != nil {
				return fmt.Errorf("metadata rejected: %w", err)
			}

			if err := verify.Image(f, meta.FwLen, a); err != nil {
				return err
			}

			log.Infof("%s: image accepted, fw_len %d", args[0], meta.FwLen)
			return nil
		},
	}
	cmd.Flags().StringVar(&pubkeyPath, "pubkey", "", "firmware signing public key (PEM, required)")
	cmd.Flags().StringVar(&blacklistPath, "blacklist", "", "revoked digest list")
	cmd.Flags().Uint32Var(&metaOffset, "meta-offset", config.DefaultMetaOffset, "metadata record offset inside the payload")
	cmd.Flags().Uint32Var(&userLength, "user-length", 0x2F000, "size of the target user region")
	cmd.MarkFlagRequired("pubkey")
	return cmd
}
