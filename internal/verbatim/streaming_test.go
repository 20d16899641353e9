package verbatim

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "occurrenceID\tlocality"...), "occurrenceID\tlocality"},
		{"without BOM", []byte("occurrenceID"), "occurrenceID"},
		{"empty", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM kept", []byte{0xEF, 0xBB, 'x'}, string([]byte{0xEF, 0xBB, 'x'})},
		{"short input", []byte("ab"), "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"ascii", []byte("Parus major"), "Parus major"},
		{"multibyte", []byte("Gärdsmyg"), "Gärdsmyg"},
		{"invalid byte", []byte{'a', 0x80, 'b'}, "a?b"},
		{"truncated at end", []byte{'a', 0xC3}, "a?"},
		{"empty", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// One byte per Read forces every multi-byte rune across a boundary.
	input := "Skogsödla på ängen"
	got, err := io.ReadAll(newUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", got, input)
	}
}

func TestWrapInput_Progress(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, strings.Repeat("x", 97)...)
	r, counter := wrapInput(bytes.NewReader(data), int64(len(data)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 97 {
		t.Errorf("got %d bytes, want 97", len(got))
	}
	if p := counter.percent(); p != 100 {
		t.Errorf("percent = %d, want 100", p)
	}
}

func TestCountingReader_UnknownSize(t *testing.T) {
	c := &countingReader{r: strings.NewReader("abc")}
	io.ReadAll(c)
	if c.read != 3 {
		t.Errorf("read = %d, want 3", c.read)
	}
	if c.percent() != 0 {
		t.Errorf("percent = %d, want 0", c.percent())
	}
}
