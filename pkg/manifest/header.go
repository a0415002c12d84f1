// Package manifest implements the Wildland manifest envelope: the header
// that carries a detached signature (and optional embedded public key)
// wrapped around a canonical YAML body.
package manifest

import (
	"regexp"
	"strings"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

const separator = "\n---\n"
const emptySeparator = "---\n"

// Header carries the detached signature and, for self-signed manifests,
// the embedded public key that verifies it.
type Header struct {
	Signature string // empty means "no signature"
	HasSig    bool
	Pubkey    string
	HasPubkey bool
}

var simpleFieldRE = regexp.MustCompile(`^([a-z]+): "([A-Za-z0-9_ .-]+)"$`)
var blockFieldRE = regexp.MustCompile(`^([a-z]+): \|$`)

// blockLineRE matches a blank line, or a line indented by exactly two
// spaces, capturing the remainder.
var blockLineRE = regexp.MustCompile(`^(?: {0,2})$|^  (.*)$`)

// splitEnvelope splits raw manifest bytes into the header bytes and the
// body bytes, per the `\n---\n` / leading `---\n` convention.
func splitEnvelope(data []byte) (header []byte, body []byte, err error) {
	s := string(data)
	if strings.HasPrefix(s, emptySeparator) {
		return nil, data[len(emptySeparator):], nil
	}
	idx := strings.Index(s, separator)
	if idx < 0 {
		return nil, nil, wlerr.New(wlerr.MissingSeparator, "no '---' separator found in manifest")
	}
	return data[:idx], data[idx+len(separator):], nil
}

// ParseHeader parses the ASCII header block, recognizing only `signature`
// and `pubkey`, each at most once, in either quoted single-line or block
// (`|`) form.
func ParseHeader(data []byte) (*Header, error) {
	for _, b := range data {
		if b > 127 {
			return nil, wlerr.New(wlerr.HeaderParse, "header must be ASCII")
		}
	}

	lines := splitLines(string(data))
	h := &Header{}
	seen := map[string]bool{}
	pos := 0

	for pos < len(lines) {
		line := lines[pos]
		pos++

		if m := simpleFieldRE.FindStringSubmatch(line); m != nil {
			name, value := m[1], m[2]
			if err := assignField(h, name, value, seen); err != nil {
				return nil, err
			}
			continue
		}

		if m := blockFieldRE.FindStringSubmatch(line); m != nil {
			name := m[1]
			value, newPos, err := parseBlock(lines, pos)
			if err != nil {
				return nil, err
			}
			pos = newPos
			if err := assignField(h, name, value, seen); err != nil {
				return nil, err
			}
			continue
		}

		return nil, wlerr.New(wlerr.HeaderParse, "unexpected header line: %q", line)
	}

	return h, nil
}

func assignField(h *Header, name, value string, seen map[string]bool) error {
	if name != "signature" && name != "pubkey" {
		return wlerr.New(wlerr.HeaderParse, "unexpected field: %q", name)
	}
	if seen[name] {
		return wlerr.New(wlerr.HeaderParse, "duplicate field: %q", name)
	}
	seen[name] = true
	switch name {
	case "signature":
		h.Signature = value
		h.HasSig = true
	case "pubkey":
		h.Pubkey = value
		h.HasPubkey = true
	}
	return nil
}

func parseBlock(lines []string, pos int) (string, int, error) {
	var parsed []string
	for pos < len(lines) {
		m := blockLineRE.FindStringSubmatch(lines[pos])
		if m == nil {
			break
		}
		pos++
		parsed = append(parsed, m[1])
	}
	for len(parsed) > 0 && parsed[len(parsed)-1] == "" {
		parsed = parsed[:len(parsed)-1]
	}
	if len(parsed) == 0 {
		return "", pos, wlerr.New(wlerr.HeaderParse, "block literal cannot be empty")
	}
	return strings.Join(parsed, "\n"), pos, nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Bytes serializes the header: signature first, then pubkey, each as a
// block literal. The serialization is verified to round-trip back to an
// identical Header.
func (h *Header) Bytes() ([]byte, error) {
	var lines []string
	if h.HasSig {
		lines = append(lines, "signature: |")
		for _, l := range strings.Split(h.Signature, "\n") {
			lines = append(lines, "  "+l)
		}
	}
	if h.HasPubkey {
		lines = append(lines, "pubkey: |")
		for _, l := range strings.Split(h.Pubkey, "\n") {
			lines = append(lines, "  "+l)
		}
	}
	data := []byte(strings.Join(lines, "\n"))

	roundTripped, err := ParseHeader(data)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.HeaderParse, err, "header serialization round-trip failed")
	}
	if roundTripped.Signature != h.Signature || roundTripped.HasSig != h.HasSig ||
		roundTripped.Pubkey != h.Pubkey || roundTripped.HasPubkey != h.HasPubkey {
		return nil, wlerr.New(wlerr.HeaderParse, "header serialization round-trip mismatch")
	}
	return data, nil
}
