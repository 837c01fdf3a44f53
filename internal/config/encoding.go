package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// fallbackEncodings is tried in order; the last entry decodes any byte
// sequence, so it acts as the terminal fallback.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-16", unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)},
	{"shift-jis", japanese.ShiftJIS},
	{"iso-8859-1", charmap.ISO8859_1},
}

// DecodeFile reads a text file, attempting UTF-8 first and then an ordered
// list of legacy encodings. It returns the first decoding that produces
// clean text.
func DecodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (string, error) {
	if utf8.Valid(data) && !hasUTF16BOM(data) {
		return strings.TrimPrefix(string(data), "\uFEFF"), nil
	}
	for i, candidate := range fallbackEncodings {
		out, err := candidate.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// x/text decoders substitute U+FFFD instead of failing; treat any
		// substitution as a miss unless this is the terminal fallback.
		if strings.ContainsRune(string(out), utf8.RuneError) && i < len(fallbackEncodings)-1 {
			continue
		}
		return string(out), nil
	}
	return "", fmt.Errorf("unable to decode file with any supported encoding")
}

func hasUTF16BOM(data []byte) bool {
	return len(data) >= 2 && ((data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF))
}
