package main

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/marcinbor85/gohex"

	"openenterprise/bootloader/anchors"
	"openenterprise/bootloader/image"
)

// loadPayload reads a firmware payload, either as a flat binary or as
// Intel HEX. HEX segments are flattened relative to the lowest address
// with 0xFF gap fill, which matches what the flash programmer produces.
func loadPayload(path string, intelHex bool) ([]byte, error) {
	if !intelHex {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s contains no data", path)
	}

	base := segments[0].Address
	end := base
	for _, seg := range segments {
		if seg.Address < base {
			base = seg.Address
		}
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}

	payload := make([]byte, end-base)
	for i := range payload {
		payload[i] = 0xFF
	}
	for _, seg := range segments {
		copy(payload[seg.Address-base:], seg.Data)
	}
	return payload, nil
}

// readPrivateKey loads an EC P-256 private key in PEM form. Both the
// SEC1 "EC PRIVATE KEY" and PKCS#8 "PRIVATE KEY" encodings are accepted;
// openssl's leading "EC PARAMETERS" block is skipped.
func readPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, rest := pem.Decode(keyBytes)
	if block != nil && block.Type == "EC PARAMETERS" {
		block, _ = pem.Decode(rest)
	}
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: not an EC key", path)
		}
		return ec, nil
	default:
		return nil, fmt.Errorf("%s: unsupported PEM block %q", path, block.Type)
	}
}

// readPublicKey loads a PEM public key and returns the uncompressed
// P-256 point.
func readPublicKey(path string) ([anchors.PubKeyLen]byte, error) {
	var raw [anchors.PubKeyLen]byte

	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return raw, err
	}
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return raw, fmt.Errorf("%s: no PEM block found", path)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return raw, fmt.Errorf("%s: %w", path, err)
	}
	ec, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return raw, fmt.Errorf("%s: not an EC key", path)
	}

	raw[0] = 0x04
	ec.X.FillBytes(raw[1:33])
	ec.Y.FillBytes(raw[33:65])
	return raw, nil
}

// buildImage patches the metadata record inside payload and appends the
// raw R||S signature. The payload must already reserve the record at
// metaOffset; fw_len is computed from the final image size.
func buildImage(payload []byte, metaOffset uint32, imageType uint16, priv *ecdsa.PrivateKey) ([]byte, error) {
	if uint64(len(payload)) < uint64(metaOffset)+image.MetaLen {
		return nil, fmt.Errorf("payload too small: no room for metadata at %#x", metaOffset)
	}

	fwLen := uint32(len(payload) + image.SignatureLen)
	var metaBuf [image.MetaLen]byte
	image.PutMeta(&metaBuf, image.Meta{
		ImageType:      imageType,
		ExtraFileCount: 0,
		FwLen:          fwLen,
	})
	copy(payload[metaOffset:], metaBuf[:])

	digest := sha256.Sum256(payload)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}

	sig := make([]byte, image.SignatureLen)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return append(payload, sig...), nil
}

// readMetaFromFile pulls the metadata record out of an image file.
func readMetaFromFile(f *os.File, metaOffset uint32) (image.Meta, error) {
	var buf [image.MetaLen]byte
	if _, err := f.ReadAt(buf[:], int64(metaOffset)); err != nil {
		return image.Meta{}, fmt.Errorf("reading metadata at %#x: %w", metaOffset, err)
	}
	return image.ParseMeta(buf), nil
}
