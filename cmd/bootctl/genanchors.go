package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"openenterprise/bootloader/anchors"
)

func newGenAnchorsCmd() *cobra.Command {
	var (
		pubkeyPath    string
		blacklistPath string
		outDir        string
	)

	cmd := &cobra.Command{
		Use:   "gen-anchors",
		Short: "Regenerate the trust anchor tables from pubkey.pem and blacklist.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return genAnchors(pubkeyPath, blacklistPath, outDir)
		},
	}
	cmd.Flags().StringVar(&pubkeyPath, "pubkey", "pubkey.pem", "firmware signing public key (PEM)")
	cmd.Flags().StringVar(&blacklistPath, "blacklist", "blacklist.txt", "revoked digest list")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the generated Go files")
	return cmd
}

func genAnchors(pubkeyPath, blacklistPath, outDir string) error {
	// A bootloader without a signing key is not a bootloader; this one
	// aborts the build.
	pub, err := readPublicKey(pubkeyPath)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}

	f, err := os.Open(blacklistPath)
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	digests, warnings, err := parseBlacklist(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	if warnings != nil {
		log.Warnf("blacklist entries skipped:\n%v", warnings)
	}

	if err := os.WriteFile(filepath.Join(outDir, "pubkey.go"), genPubKeyFile(pub), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "blacklist.go"), genBlacklistFile(digests), 0644); err != nil {
		return err
	}

	log.Infof("wrote trust anchors: %d-byte public key, %d revoked digests", len(pub), len(digests))
	return nil
}

// parseBlacklist reads one SHA-256 hex digest per line. '#' comments and
// blank lines are ignored. A line that is hex but too short aborts: that
// is a truncated digest and silently dropping it would un-revoke an
// image. Other malformed lines are collected as warnings and skipped.
func parseBlacklist(r io.Reader) ([][anchors.DigestLen]byte, *multierror.Error, error) {
	var digests [][anchors.DigestLen]byte
	var warnings *multierror.Error

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		raw, err := hex.DecodeString(line)
		if err != nil {
			warnings = multierror.Append(warnings,
				fmt.Errorf("line %d: not a hex digest", lineNo))
			continue
		}
		if len(raw) < anchors.DigestLen {
			return nil, warnings, fmt.Errorf("line %d: digest is %d hex chars, want %d",
				lineNo, len(line), 2*anchors.DigestLen)
		}
		if len(raw) > anchors.DigestLen {
			warnings = multierror.Append(warnings,
				fmt.Errorf("line %d: digest too long", lineNo))
			continue
		}

		var d [anchors.DigestLen]byte
		copy(d[:], raw)
		digests = append(digests, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, err
	}
	return digests, warnings, nil
}

func genPubKeyFile(pub [anchors.PubKeyLen]byte) []byte {
	var b bytes.Buffer
	b.WriteString("// Code generated by bootctl gen-anchors from pubkey.pem; DO NOT EDIT.\n\n")
	b.WriteString("package anchors\n\n")
	b.WriteString("// FWSignPubKey is the firmware signing public key as an uncompressed\n")
	b.WriteString("// P-256 point.\n")
	b.WriteString("var FWSignPubKey = [PubKeyLen]byte{\n")
	writeByteRows(&b, pub[:], "\t")
	b.WriteString("}\n")
	return b.Bytes()
}

func genBlacklistFile(digests [][anchors.DigestLen]byte) []byte {
	var b bytes.Buffer
	b.WriteString("// Code generated by bootctl gen-anchors from blacklist.txt; DO NOT EDIT.\n\n")
	b.WriteString("package anchors\n\n")
	b.WriteString("// FWBlacklist lists SHA-256 digests of payloads that must never be\n")
	b.WriteString("// installed, signature or not.\n")
	if len(digests) == 0 {
		b.WriteString("var FWBlacklist = [][DigestLen]byte{}\n")
		return b.Bytes()
	}
	b.WriteString("var FWBlacklist = [][DigestLen]byte{\n")
	for _, d := range digests {
		b.WriteString("\t{\n")
		writeByteRows(&b, d[:], "\t\t")
		b.WriteString("\t},\n")
	}
	b.WriteString("}\n")
	return b.Bytes()
}

func writeByteRows(b *bytes.Buffer, data []byte, indent string) {
	for i, v := range data {
		if i%8 == 0 {
			b.WriteString(indent)
		}
		fmt.Fprintf(b, "0x%02X,", v)
		if i%8 == 7 || i == len(data)-1 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
}
