// Package verify authenticates a staged firmware image: the payload is
// streamed through SHA-256 straight off the external flash, the digest is
// checked against the revocation table, and the trailing raw R||S
// signature is verified as ECDSA-P256 under the build-time public key.
package verify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"openenterprise/bootloader/anchors"
	"openenterprise/bootloader/image"
)

// chunkSize bounds the read buffer while hashing. Purely a RAM budget,
// nothing cryptographic.
const chunkSize = 128

var (
	// ErrBlacklisted means the payload digest appears in the revocation
	// table. The signature is not even looked at.
	ErrBlacklisted = errors.New("verify: payload digest is revoked")

	// ErrBadSignature covers malformed scalars, a malformed public key,
	// and a failed ECDSA verification alike.
	ErrBadSignature = errors.New("verify: signature check failed")
)

// Anchors carries the trust material the verifier checks against.
type Anchors struct {
	PubKey    [anchors.PubKeyLen]byte
	Blacklist [][anchors.DigestLen]byte
}

// BuiltIn returns the anchors linked into this bootloader.
func BuiltIn() Anchors {
	return Anchors{
		PubKey:    anchors.FWSignPubKey,
		Blacklist: anchors.FWBlacklist,
	}
}

// Image authenticates the image of total length fwLen (payload plus
// trailing signature) readable through r. fwLen must already have passed
// the metadata predicate.
func Image(r io.ReaderAt, fwLen uint32, a Anchors) error {
	if fwLen < image.SignatureLen {
		return ErrBadSignature
	}
	payloadLen := fwLen - image.SignatureLen

	digest, err := hashPayload(r, payloadLen)
	if err != nil {
		return err
	}

	for _, revoked := range a.Blacklist {
		if digest == revoked {
			return ErrBlacklisted
		}
	}

	var sig [image.SignatureLen]byte
	if _, err := r.ReadAt(sig[:], int64(payloadLen)); err != nil {
		return fmt.Errorf("verify: reading signature: %w", err)
	}

	return checkSignature(digest, sig, a.PubKey)
}

// hashPayload streams payloadLen bytes from offset 0 through SHA-256 in
// fixed chunks, returning the digest.
func hashPayload(r io.ReaderAt, payloadLen uint32) ([anchors.DigestLen]byte, error) {
	var digest [anchors.DigestLen]byte
	var buf [chunkSize]byte

	h := sha256.New()
	remaining := payloadLen
	offset := uint32(0)
	for remaining > 0 {
		n := uint32(chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := r.ReadAt(buf[:n], int64(offset)); err != nil {
			return digest, fmt.Errorf("verify: reading payload at %#x: %w", offset, err)
		}
		h.Write(buf[:n])
		remaining -= n
		offset += n
	}

	h.Sum(digest[:0])
	return digest, nil
}

// checkSignature splits the raw signature into its scalars, parses the
// public key as an uncompressed point, and runs standard ECDSA-P256 with
// the already-computed payload digest.
func checkSignature(digest [anchors.DigestLen]byte, sig [image.SignatureLen]byte, pubKey [anchors.PubKeyLen]byte) error {
	curve := elliptic.P256()
	n := curve.Params().N

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if new(big.Int).Mod(r, n).Sign() == 0 || new(big.Int).Mod(s, n).Sign() == 0 {
		return ErrBadSignature
	}

	if pubKey[0] != 0x04 {
		return ErrBadSignature
	}
	x := new(big.Int).SetBytes(pubKey[1:33])
	y := new(big.Int).SetBytes(pubKey[33:65])
	if x.Sign() == 0 && y.Sign() == 0 {
		return ErrBadSignature
	}
	if !curve.IsOnCurve(x, y) {
		return ErrBadSignature
	}

	pub := ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	if !ecdsa.Verify(&pub, digest[:], r, s) {
		return ErrBadSignature
	}
	return nil
}
