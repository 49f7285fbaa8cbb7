package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/HarshTuring/docklens/internal/entity"
)

// ContentHash returns the sha256 hex digest of the raw image bytes. It
// identifies the logical image regardless of how it was supplied.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compute derives the cache/ledger key for one (source image, operation
// set) pair. Pure function: the set is validated, serialized canonically
// and hashed together with the source content hash.
//
// Two sets that differ only in parameter key order produce the same
// fingerprint; two that differ in operation order do not.
func Compute(sourceHash string, ops entity.OperationSet) (string, error) {
	if err := ops.Validate(); err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(sourceHash))
	h.Write([]byte{'\n'})
	h.Write([]byte(Canonical(ops)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical serializes an operation set as an ordered list of
// name(key=value,...) entries with parameter keys sorted and numeric
// values re-emitted in canonical decimal form, so "05" and "5" — both
// valid input — serialize identically.
func Canonical(ops entity.OperationSet) string {
	var b strings.Builder
	for i, op := range ops {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(op.Name)
		if len(op.Params) == 0 {
			continue
		}

		keys := make([]string, 0, len(op.Params))
		for k := range op.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('(')
		for j, k := range keys {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(canonicalValue(op.Params[k]))
		}
		b.WriteByte(')')
	}
	return b.String()
}

func canonicalValue(v string) string {
	if n, err := strconv.Atoi(v); err == nil {
		return strconv.Itoa(n)
	}
	return v
}

// PerceptualHash computes a 64-bit average hash of the image: grayscale,
// shrink to 8x8, threshold each pixel against the mean. Returned as 16
// hex characters. Visually similar images produce nearby hashes.
func PerceptualHash(img image.Image) string {
	small := imaging.Resize(imaging.Grayscale(img), 8, 8, imaging.Lanczos)

	var pixels [64]uint32
	var sum uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, _, _, _ := small.At(x, y).RGBA()
			pixels[y*8+x] = r
			sum += uint64(r)
		}
	}
	mean := uint32(sum / 64)

	var hash uint64
	for i, p := range pixels {
		if p > mean {
			hash |= 1 << uint(63-i)
		}
	}

	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(hash >> uint(56-8*i))
	}
	return hex.EncodeToString(buf)
}

// PerceptualHashBytes decodes raw image bytes and hashes the result.
func PerceptualHashBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return PerceptualHash(img), nil
}

// Similarity returns the normalized similarity of two perceptual hashes
// in [0, 1], 1 being identical. Malformed input counts as no match.
func Similarity(a, b string) float64 {
	ab, err := hex.DecodeString(a)
	if err != nil || len(ab) != 8 {
		return 0
	}
	bb, err := hex.DecodeString(b)
	if err != nil || len(bb) != 8 {
		return 0
	}

	distance := 0
	for i := 0; i < 8; i++ {
		distance += bits.OnesCount8(ab[i] ^ bb[i])
	}
	return 1 - float64(distance)/64
}
