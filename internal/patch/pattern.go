// Package patch implements the hex-pattern search/patch primitives and the
// ARM/AArch64 code analysers described in spec.md §4.4 and §2 ("Patching /
// Analysis utilities"). The analysers are pure functions of (bytes,
// base_addr): rebuild them whenever the underlying DA bytes change
// (spec.md §9).
package patch

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NotFound is returned by FindPattern when no match exists, matching
// spec.md §8 invariant 1's "NOT_FOUND" sentinel.
const NotFound = -1

// patternByte is one byte of a parsed pattern: either a literal value or a
// wildcard ("XX" in the source hex string) that matches any byte.
type patternByte struct {
	value     byte
	wildcard  bool
}

// ParsePattern turns a hex string such as "38B5XX460C20" into a slice of
// patternByte. The string must have an even number of hex digits; each
// "XX" pair (case-insensitive) is a wildcard.
func ParsePattern(pattern string) ([]patternByte, error) {
	pattern = strings.ReplaceAll(pattern, " ", "")
	if len(pattern)%2 != 0 {
		return nil, fmt.Errorf("patch: odd-length pattern %q", pattern)
	}
	out := make([]patternByte, 0, len(pattern)/2)
	for i := 0; i < len(pattern); i += 2 {
		pair := pattern[i : i+2]
		if strings.EqualFold(pair, "XX") {
			out = append(out, patternByte{wildcard: true})
			continue
		}
		b, err := hex.DecodeString(pair)
		if err != nil {
			return nil, fmt.Errorf("patch: invalid hex byte %q in pattern %q: %w", pair, pattern, err)
		}
		out = append(out, patternByte{value: b[0]})
	}
	return out, nil
}

// FindPattern returns the lowest index i >= offset such that pattern
// matches data[i:i+len(pattern)] byte-for-byte, with "XX" positions
// matching anything. It returns NotFound if no such index exists
// (spec.md §8 invariant 1).
func FindPattern(data []byte, pattern string, offset int) (int, error) {
	pb, err := ParsePattern(pattern)
	if err != nil {
		return NotFound, err
	}
	if len(pb) == 0 || offset < 0 {
		return NotFound, nil
	}
	for i := offset; i+len(pb) <= len(data); i++ {
		if matchesAt(data, pb, i) {
			return i, nil
		}
	}
	return NotFound, nil
}

func matchesAt(data []byte, pb []patternByte, at int) bool {
	for j, p := range pb {
		if p.wildcard {
			continue
		}
		if data[at+j] != p.value {
			return false
		}
	}
	return true
}

// Patch overwrites buf[offset:offset+len(pattern)] with pattern's literal
// bytes in place, leaving wildcard positions untouched (spec.md §8
// invariant 2).
func Patch(buf []byte, offset int, pattern string) error {
	pb, err := ParsePattern(pattern)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(pb) > len(buf) {
		return fmt.Errorf("patch: offset %d + pattern length %d exceeds buffer length %d", offset, len(pb), len(buf))
	}
	for j, p := range pb {
		if p.wildcard {
			continue
		}
		buf[offset+j] = p.value
	}
	return nil
}

// PatchBytes is like Patch but takes literal replacement bytes rather than
// a hex pattern string; it never skips any byte.
func PatchBytes(buf []byte, offset int, replacement []byte) error {
	if offset < 0 || offset+len(replacement) > len(buf) {
		return fmt.Errorf("patch: offset %d + %d bytes exceeds buffer length %d", offset, len(replacement), len(buf))
	}
	copy(buf[offset:], replacement)
	return nil
}

// BytesToHex renders b as an uppercase hex string with no separators,
// matching the convention the byte-pattern literals in spec.md §4.4 are
// written in.
func BytesToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// FindBytes finds a literal byte sequence (no wildcards) starting at
// offset, returning NotFound if absent.
func FindBytes(data []byte, needle []byte, offset int) int {
	if len(needle) == 0 || offset < 0 {
		return NotFound
	}
	for i := offset; i+len(needle) <= len(data); i++ {
		if string(data[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return NotFound
}

// FindString locates the bytes of an ASCII string literal within data,
// returning the offset of its first byte. It is a plain substring search:
// no NUL terminator is required after the match.
func FindString(data []byte, s string) int {
	return FindBytes(data, []byte(s), 0)
}
