package verbatim

// streaming.go holds the reader chain placed in front of provider files.
//
// Provider exports come from many tools. The chain strips a leading UTF-8 BOM,
// replaces invalid UTF-8 bytes with '?' and counts consumed bytes so a cursor
// can report how far into the file it is, all in constant memory.

import (
	"io"
	"unicode/utf8"
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// bomReader drops a UTF-8 byte order mark from the start of the stream.
type bomReader struct {
	r       io.Reader
	checked bool
	head    []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if n == 3 && buf == utf8BOM {
			n = 0
		}
		b.head = append(b.head[:0], buf[:n]...)
		if len(b.head) == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte rune
// split across two reads is carried over to the next call.
type utf8Sanitizer struct {
	r     io.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	off := copy(p, s.carry)
	s.carry = s.carry[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}
	return s.clean(p[:n], err == io.EOF), err
}

// clean rewrites data in place and returns the number of bytes to hand out.
func (s *utf8Sanitizer) clean(data []byte, atEOF bool) int {
	if asciiOnly(data) {
		return len(data)
	}
	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && partialRune(data[i:]) {
				s.carry = append(s.carry, data[i:]...)
				return w
			}
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w
}

func asciiOnly(data []byte) bool {
	for _, c := range data {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// partialRune reports whether tail is a truncated but otherwise well-formed
// multi-byte sequence.
func partialRune(tail []byte) bool {
	if len(tail) >= utf8.UTFMax {
		return false
	}
	want := 0
	switch c := tail[0]; {
	case c&0xE0 == 0xC0:
		want = 2
	case c&0xF0 == 0xE0:
		want = 3
	case c&0xF8 == 0xF0:
		want = 4
	default:
		return false
	}
	if len(tail) >= want {
		return false
	}
	for _, c := range tail[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// countingReader tracks the bytes read from the underlying source.
type countingReader struct {
	r     io.Reader
	read  int64
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	return n, err
}

// percent returns progress 0..100, or 0 when the size is unknown.
func (c *countingReader) percent() int {
	if c.total <= 0 {
		return 0
	}
	return int(c.read * 100 / c.total)
}

// wrapInput builds the reader chain. Counting sits closest to the source so
// progress is measured in file bytes.
func wrapInput(r io.Reader, size int64) (io.Reader, *countingReader) {
	counter := &countingReader{r: r, total: size}
	return newUTF8Sanitizer(newBOMReader(counter)), counter
}
