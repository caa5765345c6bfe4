// Package bootlog is the boot console logging bridge: a slog.Handler that
// formats each record into a fixed stack buffer and writes it as a single
// line. The boot pipeline logs a handful of lines per reset and must not
// allocate while doing it.
package bootlog

import (
	"context"
	"io"
	"log/slog"
)

// lineSize bounds one formatted record. Longer records are truncated.
const lineSize = 128

// Handler writes slog records to the boot console.
type Handler struct {
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// New returns a logger over the given console writer (machine.Serial on
// the device) at the given minimum level.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(&Handler{w: w, level: level})
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

// Handle formats the record into a fixed buffer and writes one line.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf [lineSize + 1]byte
	pos := 0

	pos = copyToBuffer(buf[:lineSize], pos, levelString(r.Level))
	if pos < lineSize {
		buf[pos] = ' '
		pos++
	}

	if h.group != "" {
		pos = copyToBuffer(buf[:lineSize], pos, h.group)
		if pos < lineSize {
			buf[pos] = ':'
			pos++
		}
	}
	pos = copyToBuffer(buf[:lineSize], pos, r.Message)

	for _, a := range h.attrs {
		pos = appendAttr(buf[:lineSize], pos, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		pos = appendAttr(buf[:lineSize], pos, a)
		return pos < lineSize-1
	})

	buf[pos] = '\n'
	_, err := h.w.Write(buf[:pos+1])
	return err
}

// WithAttrs returns a new Handler with the given attributes added.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &Handler{
		w:     h.w,
		level: h.level,
		attrs: newAttrs,
		group: h.group,
	}
}

// WithGroup returns a new Handler with the given group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}

	return &Handler{
		w:     h.w,
		level: h.level,
		attrs: h.attrs,
		group: newGroup,
	}
}

func levelString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// appendAttr writes " key=value" into the buffer.
func appendAttr(buf []byte, pos int, a slog.Attr) int {
	if pos >= len(buf)-1 {
		return pos
	}
	buf[pos] = ' '
	pos++
	pos = copyToBuffer(buf, pos, a.Key)
	if pos < len(buf) {
		buf[pos] = '='
		pos++
	}
	return copyAttrValue(buf, pos, a.Value)
}

// copyToBuffer copies a string to the buffer, returns new position
func copyToBuffer(buf []byte, pos int, s string) int {
	for i := 0; i < len(s) && pos < len(buf); i++ {
		buf[pos] = s[i]
		pos++
	}
	return pos
}

// copyAttrValue copies an attribute value to the buffer
func copyAttrValue(buf []byte, pos int, v slog.Value) int {
	switch v.Kind() {
	case slog.KindString:
		return copyToBuffer(buf, pos, v.String())
	case slog.KindInt64:
		return copyInt64ToBuffer(buf, pos, v.Int64())
	case slog.KindUint64:
		return copyUint64ToBuffer(buf, pos, v.Uint64())
	case slog.KindBool:
		if v.Bool() {
			return copyToBuffer(buf, pos, "true")
		}
		return copyToBuffer(buf, pos, "false")
	case slog.KindDuration:
		return copyInt64ToBuffer(buf, pos, int64(v.Duration()))
	case slog.KindFloat64:
		// Simple integer representation for floats
		return copyInt64ToBuffer(buf, pos, int64(v.Float64()))
	default:
		return copyToBuffer(buf, pos, "?")
	}
}

// copyInt64ToBuffer copies an int64 to the buffer as decimal string
func copyInt64ToBuffer(buf []byte, pos int, n int64) int {
	if n == 0 {
		if pos < len(buf) {
			buf[pos] = '0'
			return pos + 1
		}
		return pos
	}

	if n < 0 {
		if pos < len(buf) {
			buf[pos] = '-'
			pos++
		}
		n = -n
	}

	return copyUint64ToBuffer(buf, pos, uint64(n))
}

// copyUint64ToBuffer copies a uint64 to the buffer as decimal string
func copyUint64ToBuffer(buf []byte, pos int, n uint64) int {
	if n == 0 {
		if pos < len(buf) {
			buf[pos] = '0'
			return pos + 1
		}
		return pos
	}

	// Render digits into a scratch buffer, then reverse.
	var tmp [20]byte
	i := 0
	for n > 0 {
		tmp[i] = byte('0' + n%10)
		n /= 10
		i++
	}
	for i > 0 && pos < len(buf) {
		i--
		buf[pos] = tmp[i]
		pos++
	}
	return pos
}
