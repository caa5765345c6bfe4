package install

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"openenterprise/bootloader/anchors"
	"openenterprise/bootloader/extflash"
	"openenterprise/bootloader/image"
	"openenterprise/bootloader/intflash"
	"openenterprise/bootloader/verify"
)

const testMetaOffset = 0xC0

var testLayout = intflash.Layout{
	FlashStart: 0x08000000,
	UserStart:  0x08001000,
	UserLength: 0x2000,
}

type fakeLED struct {
	pulses int // completed on/off cycles
	lit    bool
}

func (l *fakeLED) High() { l.lit = true }
func (l *fakeLED) Low() {
	if l.lit {
		l.pulses++
	}
	l.lit = false
}

type fixture struct {
	deps Deps
	ext  *extflash.Mem
	mcu  *intflash.Mem
	led  *fakeLED

	slept []time.Duration
}

func newFixture(t *testing.T, staged []byte, a verify.Anchors) *fixture {
	t.Helper()

	f := &fixture{
		ext: extflash.NewMem(staged),
		mcu: intflash.NewMem(testLayout),
		led: &fakeLED{},
	}
	// Prefill so "user region unchanged" is distinguishable from
	// freshly erased.
	for i := range f.mcu.User {
		f.mcu.User[i] = 0xEE
	}
	f.deps = Deps{
		Ext:        f.ext,
		Int:        f.mcu,
		Layout:     testLayout,
		Anchors:    a,
		MetaOffset: testMetaOffset,
		Debrick:    time.Second,
		LED:        f.led,
		Sleep:      func(d time.Duration) { f.slept = append(f.slept, d) },
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return f
}

func (f *fixture) userUnchanged() bool {
	for _, b := range f.mcu.User {
		if b != 0xEE {
			return false
		}
	}
	return true
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, verify.Anchors) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var a verify.Anchors
	a.PubKey[0] = 0x04
	priv.PublicKey.X.FillBytes(a.PubKey[1:33])
	priv.PublicKey.Y.FillBytes(a.PubKey[33:65])
	return priv, a
}

// buildImage assembles a staged image: prelude, metadata, body, raw R||S
// signature over everything before the signature.
func buildImage(t *testing.T, priv *ecdsa.PrivateKey, meta image.Meta, bodyLen int) []byte {
	t.Helper()

	payload := make([]byte, testMetaOffset+image.MetaLen+bodyLen)
	for i := range payload {
		payload[i] = 'A'
	}
	var metaBuf [image.MetaLen]byte
	image.PutMeta(&metaBuf, meta)
	copy(payload[testMetaOffset:], metaBuf[:])

	digest := sha256.Sum256(payload)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, image.SignatureLen)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return append(payload, sig...)
}

// goodMeta returns metadata describing an image with bodyLen body bytes.
func goodMeta(bodyLen int) image.Meta {
	return image.Meta{
		ImageType: image.ImageType,
		FwLen:     uint32(testMetaOffset + image.MetaLen + bodyLen + image.SignatureLen),
	}
}

func TestRunGoodImage(t *testing.T) {
	priv, a := testKey(t)
	img := buildImage(t, priv, goodMeta(504), 504)
	f := newFixture(t, img, a)

	if err := Run(f.deps); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	if !bytes.Equal(f.mcu.User[:len(img)], img) {
		t.Error("user region does not match staged image")
	}

	// The tail of the last programmed page must be zero-padded.
	lastPageEnd := (len(img) + intflash.PageSize - 1) / intflash.PageSize * intflash.PageSize
	for i := len(img); i < lastPageEnd; i++ {
		if f.mcu.User[i] != 0 {
			t.Errorf("byte %d after image = %#x, want 0", i, f.mcu.User[i])
		}
	}

	// Pages beyond the image stay untouched.
	for i := lastPageEnd; i < len(f.mcu.User); i++ {
		if f.mcu.User[i] != 0xEE {
			t.Fatalf("byte %d beyond image was touched", i)
		}
	}

	// Update-start pulse plus two success pulses.
	if f.led.pulses != 3 {
		t.Errorf("led pulses = %d, want 3", f.led.pulses)
	}
	if f.slept[0] != f.deps.Debrick {
		t.Errorf("first sleep = %v, want debrick delay %v", f.slept[0], f.deps.Debrick)
	}
}

func TestRunZeroPadsLastPage(t *testing.T) {
	priv, a := testKey(t)

	// 769 total bytes: the last page is programmed 1 byte full.
	img := buildImage(t, priv, goodMeta(505), 505)
	f := newFixture(t, img, a)

	if err := Run(f.deps); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	if !bytes.Equal(f.mcu.User[:len(img)], img) {
		t.Error("user region does not match staged image")
	}
	lastPageEnd := (len(img)/intflash.PageSize + 1) * intflash.PageSize
	for i := len(img); i < lastPageEnd; i++ {
		if f.mcu.User[i] != 0 {
			t.Fatalf("byte %d in last page = %#x, want 0", i, f.mcu.User[i])
		}
	}
}

func TestRunRejections(t *testing.T) {
	priv, a := testKey(t)

	badType := goodMeta(504)
	badType.ImageType = 0x0000

	oversize := goodMeta(504)
	oversize.FwLen = testLayout.UserLength + 1

	tests := []struct {
		name   string
		mutate func(img []byte) []byte
		anch   func() verify.Anchors
		meta   image.Meta
		want   error
		pulses int // 1 start pulse only once verification began
	}{
		{
			name: "wrong image type",
			meta: badType,
			want: image.ErrImageType,
		},
		{
			name: "oversize",
			meta: oversize,
			want: image.ErrTooLarge,
		},
		{
			name: "tampered payload",
			meta: goodMeta(504),
			mutate: func(img []byte) []byte {
				img[testMetaOffset+image.MetaLen+17] ^= 0x01
				return img
			},
			want:   verify.ErrBadSignature,
			pulses: 1,
		},
		{
			name: "blacklisted",
			meta: goodMeta(504),
			anch: func() verify.Anchors {
				img := buildImage(t, priv, goodMeta(504), 504)
				bl := a
				bl.Blacklist = [][anchors.DigestLen]byte{
					sha256.Sum256(img[:len(img)-image.SignatureLen]),
				}
				return bl
			},
			want:   verify.ErrBlacklisted,
			pulses: 1,
		},
	}

	for _, tc := range tests {
		img := buildImage(t, priv, tc.meta, 504)
		if tc.mutate != nil {
			img = tc.mutate(img)
		}
		anch := a
		if tc.anch != nil {
			anch = tc.anch()
		}
		f := newFixture(t, img, anch)

		err := Run(f.deps)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: Run() = %v, want %v", tc.name, err, tc.want)
			continue
		}
		if Fatal(err) {
			t.Errorf("%s: rejection must not be fatal", tc.name)
		}
		if !f.userUnchanged() {
			t.Errorf("%s: user region was modified", tc.name)
		}
		// Rejections end with the three-pulse error pattern.
		if f.led.pulses != tc.pulses+3 {
			t.Errorf("%s: led pulses = %d, want %d", tc.name, f.led.pulses, tc.pulses+3)
		}
	}
}

func TestRunNoFlash(t *testing.T) {
	priv, a := testKey(t)
	img := buildImage(t, priv, goodMeta(504), 504)
	f := newFixture(t, img, a)
	f.ext.ID = extflash.JEDECID{Manufacturer: 0xFF, MemoryType: 0xFF, Capacity: 0xFF}

	err := Run(f.deps)
	if !errors.Is(err, extflash.ErrNoFlash) {
		t.Fatalf("Run() = %v, want ErrNoFlash", err)
	}
	if !Fatal(err) {
		t.Error("missing flash must be fatal")
	}
	if !f.userUnchanged() {
		t.Error("user region was modified")
	}
	if f.led.pulses != 0 {
		t.Errorf("led pulses = %d, want 0 (caller halts)", f.led.pulses)
	}
}

func TestRunUnknownFlash(t *testing.T) {
	priv, a := testKey(t)
	img := buildImage(t, priv, goodMeta(504), 504)
	f := newFixture(t, img, a)
	f.ext.ID = extflash.JEDECID{Manufacturer: 0xC2, MemoryType: 0x20, Capacity: 0x15}

	err := Run(f.deps)
	if !errors.Is(err, extflash.ErrUnknownFlash) {
		t.Fatalf("Run() = %v, want ErrUnknownFlash", err)
	}
	if !Fatal(err) {
		t.Error("unknown flash must be fatal")
	}
}

func TestRunWriteFailure(t *testing.T) {
	priv, a := testKey(t)
	img := buildImage(t, priv, goodMeta(504), 504)
	f := newFixture(t, img, a)
	f.mcu.FailAtPage = int(testLayout.UserOffset()/intflash.PageSize) + 2

	err := Run(f.deps)
	if !errors.Is(err, intflash.ErrWriteFailed) {
		t.Fatalf("Run() = %v, want ErrWriteFailed", err)
	}
	if !Fatal(err) {
		t.Error("flash write failure must be fatal")
	}
}

// bootCore records the hand-off so tests can assert the launcher runs.
type bootCore struct {
	jumped  bool
	sp      uint32
	handler uintptr
	vtor    uint32
}

func (c *bootCore) ReadWord(addr uintptr) uint32 {
	switch addr {
	case testLayout.UserStart:
		return 0x20002000
	case testLayout.UserStart + 4:
		return 0x08001101
	}
	return 0
}
func (c *bootCore) SetVTOR(offset uint32) { c.vtor = offset }
func (c *bootCore) Jump(sp uint32, handler uintptr) {
	c.jumped = true
	c.sp = sp
	c.handler = handler
}

// The launcher must run whether the candidate installs or is rejected:
// a bad staged image must not brick a device with a good installed one.
func TestBootAlwaysLaunches(t *testing.T) {
	priv, a := testKey(t)

	good := buildImage(t, priv, goodMeta(504), 504)

	badType := goodMeta(504)
	badType.ImageType = 0x0000
	rejected := buildImage(t, priv, badType, 504)

	for _, tc := range []struct {
		name string
		img  []byte
	}{
		{"good image", good},
		{"rejected image", rejected},
	} {
		f := newFixture(t, tc.img, a)
		core := &bootCore{}

		Boot(f.deps, core)

		if !core.jumped {
			t.Errorf("%s: launcher did not run", tc.name)
			continue
		}
		if core.sp != 0x20002000 || core.handler != 0x08001101 {
			t.Errorf("%s: jump sp=%#x handler=%#x", tc.name, core.sp, core.handler)
		}
		if core.vtor != uint32(testLayout.UserStart-testLayout.FlashStart) {
			t.Errorf("%s: vtor = %#x", tc.name, core.vtor)
		}
	}
}

// Every page index the installer produces must satisfy the user-region
// bounds; the in-memory writer enforces exactly the device predicate, so
// a full install across the whole region exercises both ends.
func TestRunFillsWholeRegion(t *testing.T) {
	priv, a := testKey(t)

	bodyLen := int(testLayout.UserLength) - testMetaOffset - image.MetaLen - 2*image.SignatureLen
	img := buildImage(t, priv, goodMeta(bodyLen), bodyLen)
	f := newFixture(t, img, a)

	if err := Run(f.deps); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	wantPages := (len(img) + intflash.PageSize - 1) / intflash.PageSize
	if len(f.mcu.Writes) != wantPages {
		t.Errorf("wrote %d pages, want %d", len(f.mcu.Writes), wantPages)
	}
	first := f.mcu.Writes[0]
	if first != testLayout.UserOffset()/intflash.PageSize {
		t.Errorf("first page = %d, want %d", first, testLayout.UserOffset()/intflash.PageSize)
	}
}
