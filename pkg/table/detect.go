package table

import (
	"bytes"
	"io"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding identifies the character encoding of a text upload.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF8BOM
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingWindows1252
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "utf-8"
	case EncodingUTF8BOM:
		return "utf-8-bom"
	case EncodingUTF16LE:
		return "utf-16le"
	case EncodingUTF16BE:
		return "utf-16be"
	case EncodingWindows1252:
		return "windows-1252"
	default:
		return "unknown"
	}
}

// DetectEncoding identifies the encoding of data from its BOM and UTF-8 validity.
// Invalid UTF-8 without a BOM is treated as Windows-1252, a superset of Latin-1.
func DetectEncoding(data []byte) Encoding {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return EncodingUTF8BOM
	}
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			return EncodingUTF16LE
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return EncodingUTF16BE
		}
	}
	if utf8.Valid(data) {
		return EncodingUTF8
	}
	return EncodingWindows1252
}

// decode returns a UTF-8 reader over data.
func decode(data []byte) (io.Reader, Encoding) {
	enc := DetectEncoding(data)
	switch enc {
	case EncodingUTF8BOM:
		return bytes.NewReader(data[3:]), enc
	case EncodingUTF16LE:
		return transform.NewReader(bytes.NewReader(data), unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()), enc
	case EncodingUTF16BE:
		return transform.NewReader(bytes.NewReader(data), unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()), enc
	case EncodingWindows1252:
		return transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()), enc
	default:
		return bytes.NewReader(data), enc
	}
}

// DetectDelimiter picks the candidate whose per-line count is most stable.
// Candidates are tried in order and the first one wins ties.
func DetectDelimiter(sample []byte, candidates ...byte) byte {
	if len(candidates) == 0 {
		candidates = []byte{',', ';', '\t', '|'}
	}
	best := candidates[0]
	bestScore := math.MaxFloat64

	for _, delim := range candidates {
		counts := countDelimiterPerLine(sample, delim)
		if len(counts) == 0 {
			continue
		}

		avg := mean(counts)
		if avg < 1 {
			continue
		}

		score := variance(counts, avg) / avg
		if score < bestScore {
			bestScore = score
			best = delim
		}
	}

	return best
}

func countDelimiterPerLine(sample []byte, delim byte) []int {
	var counts []int
	inQuote := false
	count := 0

	for _, b := range sample {
		if b == '"' {
			inQuote = !inQuote
			continue
		}
		if !inQuote {
			if b == delim {
				count++
			} else if b == '\n' {
				counts = append(counts, count)
				count = 0
			}
		}
	}
	if count > 0 {
		counts = append(counts, count)
	}
	return counts
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func variance(values []int, avg float64) float64 {
	var sum float64
	for _, v := range values {
		d := float64(v) - avg
		sum += d * d
	}
	return sum / float64(len(values))
}
