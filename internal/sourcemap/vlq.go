package sourcemap

import (
	"strings"

	"github.com/cockroachdb/errors"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqShift        = 5
	vlqContinuation = 1 << vlqShift
	vlqMask         = vlqContinuation - 1
)

// EncodeVLQ encodes one signed value as base64 VLQ
func EncodeVLQ(value int) string {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}

	var sb strings.Builder
	for {
		digit := v & vlqMask
		v >>= vlqShift
		if v > 0 {
			digit |= vlqContinuation
		}
		sb.WriteByte(base64Alphabet[digit])
		if v == 0 {
			break
		}
	}
	return sb.String()
}

// DecodeVLQ decodes every value packed into s
func DecodeVLQ(s string) ([]int, error) {
	var out []int
	value, shift := 0, 0

	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Alphabet, s[i])
		if digit < 0 {
			return nil, errors.Newf("invalid base64 VLQ character %q", s[i])
		}
		value += (digit & vlqMask) << shift
		if digit&vlqContinuation != 0 {
			shift += vlqShift
			continue
		}
		if value&1 == 1 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, errors.New("truncated base64 VLQ sequence")
	}
	return out, nil
}

// IsValidMappings reports whether s only contains characters allowed in a
// mappings string
func IsValidMappings(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ';' || c == ',' {
			continue
		}
		if strings.IndexByte(base64Alphabet, c) < 0 {
			return false
		}
	}
	return true
}
