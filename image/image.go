// Package image defines the staged firmware image format: the fixed 8-byte
// metadata record embedded in the signed payload, and the acceptance
// predicate a candidate must pass before anything is hashed or installed.
package image

import (
	"encoding/binary"
	"errors"
)

const (
	// ImageType is the only accepted value of the meta image_type field.
	ImageType = 0x3801

	// MetaLen is the on-flash size of the metadata record.
	MetaLen = 8

	// SignatureLen is the size of the trailing raw R||S P-256 signature.
	SignatureLen = 64
)

// Meta is the decoded metadata record. FwLen counts the whole image
// including the trailing signature.
type Meta struct {
	ImageType      uint16
	ExtraFileCount uint16
	FwLen          uint32
}

// Rejection reasons returned by Validate. All of them map to the
// "header invalid" outcome: the candidate is skipped and the previously
// installed image boots.
var (
	ErrImageType   = errors.New("image: wrong image type")
	ErrExtraFiles  = errors.New("image: extra files not supported")
	ErrTooShort    = errors.New("image: shorter than its signature")
	ErrMetaOutside = errors.New("image: metadata outside declared length")
	ErrTooLarge    = errors.New("image: does not fit user region")
)

// ParseMeta decodes the little-endian metadata record.
func ParseMeta(buf [MetaLen]byte) Meta {
	return Meta{
		ImageType:      binary.LittleEndian.Uint16(buf[0:2]),
		ExtraFileCount: binary.LittleEndian.Uint16(buf[2:4]),
		FwLen:          binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// PutMeta encodes m into its on-flash form. PutMeta and ParseMeta are
// exact inverses.
func PutMeta(buf *[MetaLen]byte, m Meta) {
	binary.LittleEndian.PutUint16(buf[0:2], m.ImageType)
	binary.LittleEndian.PutUint16(buf[2:4], m.ExtraFileCount)
	binary.LittleEndian.PutUint32(buf[4:8], m.FwLen)
}

// Validate applies the full acceptance predicate for a candidate whose
// metadata lives at metaOffset and whose destination region holds
// userLength bytes. The bound keeps one extra signature's worth of slack
// below the region size, matching the devices already in the field.
func (m Meta) Validate(metaOffset, userLength uint32) error {
	if m.ImageType != ImageType {
		return ErrImageType
	}
	if m.ExtraFileCount != 0 {
		return ErrExtraFiles
	}
	if m.FwLen < SignatureLen {
		return ErrTooShort
	}
	if m.FwLen < metaOffset {
		return ErrMetaOutside
	}
	if m.FwLen > userLength {
		return ErrTooLarge
	}
	if m.FwLen+SignatureLen > userLength {
		return ErrTooLarge
	}
	return nil
}

// PayloadLen returns the length of the signed payload, i.e. everything
// before the trailing signature. Only meaningful after Validate.
func (m Meta) PayloadLen() uint32 {
	return m.FwLen - SignatureLen
}
