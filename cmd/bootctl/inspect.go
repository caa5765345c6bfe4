package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"openenterprise/bootloader/config"
	"openenterprise/bootloader/image"
)

func newInspectCmd() *cobra.Command {
	var (
		metaOffset uint32
		userLength uint32
	)

	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Decode and print an image's metadata, digest and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), args[0], metaOffset, userLength)
		},
	}
	cmd.Flags().Uint32Var(&metaOffset, "meta-offset", config.DefaultMetaOffset, "metadata record offset inside the payload")
	cmd.Flags().Uint32Var(&userLength, "user-length", 0x2F000, "size of the target user region")
	return cmd
}

func inspect(w io.Writer, path string, metaOffset, userLength uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	meta, err := readMetaFromFile(f, metaOffset)
	if err != nil {
		return err
	}

	verdict := "accepted"
	if err := meta.Validate(metaOffset, userLength); err != nil {
		verdict = err.Error()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"file size", fmt.Sprintf("%s (%d bytes)", humanize.Bytes(uint64(st.Size())), st.Size())},
		{"image_type", fmt.Sprintf("%#06x", meta.ImageType)},
		{"extra_file_count", meta.ExtraFileCount},
		{"fw_len", fmt.Sprintf("%s (%d bytes)", humanize.Bytes(uint64(meta.FwLen)), meta.FwLen)},
		{"meta offset", fmt.Sprintf("%#x", metaOffset)},
		{"verdict", verdict},
	})

	// Digest and signature are only meaningful when the declared length
	// fits the file.
	if meta.FwLen >= image.SignatureLen && int64(meta.FwLen) <= st.Size() {
		payload := make([]byte, meta.PayloadLen())
		if _, err := f.ReadAt(payload, 0); err != nil {
			return err
		}
		digest := sha256.Sum256(payload)

		var sig [image.SignatureLen]byte
		if _, err := f.ReadAt(sig[:], int64(meta.PayloadLen())); err != nil {
			return err
		}

		t.AppendRows([]table.Row{
			{"payload sha256", hex.EncodeToString(digest[:])},
			{"signature r", hex.EncodeToString(sig[:32])},
			{"signature s", hex.EncodeToString(sig[32:])},
		})
	}

	t.Render()
	return nil
}
