// Package anchors holds the build-time trust anchors: the firmware
// signing public key and the table of revoked payload digests. The two
// generated files are produced from pubkey.pem and blacklist.txt by the
// bootctl tool; regenerate after rotating either input.
package anchors

//go:generate go run openenterprise/bootloader/cmd/bootctl gen-anchors --pubkey pubkey.pem --blacklist blacklist.txt --out .

// PubKeyLen is the size of an uncompressed P-256 point: 0x04 || X || Y.
const PubKeyLen = 65

// DigestLen is the size of one revoked SHA-256 digest.
const DigestLen = 32
