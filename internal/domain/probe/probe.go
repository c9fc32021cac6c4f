// Package probe models a semantic similarity query: free text, a reference
// image already in the library, or an uploaded image reduced to a raw vector.
package probe

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind discriminates the probe union.
type Kind string

// Probe kinds.
const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindUpload Kind = "upload"
)

// Probe is a validated semantic probe. The zero value is not a valid probe;
// construct through Text, Image, or Upload.
type Probe struct {
	kind    Kind
	text    string
	imageID int
	vector  []float32
}

// Text creates a free-text probe. The value must not be blank.
func Text(value string) (Probe, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Probe{}, fmt.Errorf("text probe requires a non-empty value")
	}
	return Probe{kind: KindText, text: value}, nil
}

// Image creates a probe from a result already in the library.
func Image(id int) (Probe, error) {
	if id < 0 {
		return Probe{}, fmt.Errorf("image probe requires a non-negative id, got %d", id)
	}
	return Probe{kind: KindImage, imageID: id}, nil
}

// Upload creates a probe from a raw embedding vector. Upload probes are
// session-only: they have no token and are never written to navigation state.
func Upload(vector []float32) (Probe, error) {
	if len(vector) == 0 {
		return Probe{}, fmt.Errorf("upload probe requires a non-empty vector")
	}
	return Probe{kind: KindUpload, vector: vector}, nil
}

// IsZero reports whether the probe was never constructed.
func (p Probe) IsZero() bool { return p.kind == "" }

// Kind returns the union discriminator.
func (p Probe) Kind() Kind { return p.kind }

// Text returns the query text (text probes only).
func (p Probe) Text() string { return p.text }

// ImageID returns the reference result id (image probes only).
func (p Probe) ImageID() int { return p.imageID }

// Vector returns the raw embedding (upload probes only).
func (p Probe) Vector() []float32 { return p.vector }

// Token encodes the probe as a compact reversible string suitable for a
// shareable URL: "text:<urlencoded>" or "image:<id>". Upload probes are not
// representable and return ok=false.
func (p Probe) Token() (string, bool) {
	switch p.kind {
	case KindText:
		return "text:" + url.QueryEscape(p.text), true
	case KindImage:
		return "image:" + strconv.Itoa(p.imageID), true
	default:
		return "", false
	}
}

// ParseToken decodes a token produced by Token. Anything unparsable returns
// ok=false rather than an error: malformed navigation input is recovered, not
// reported.
func ParseToken(token string) (Probe, bool) {
	prefix, rest, found := strings.Cut(token, ":")
	if !found {
		return Probe{}, false
	}
	switch prefix {
	case "text":
		value, err := url.QueryUnescape(rest)
		if err != nil {
			return Probe{}, false
		}
		p, err := Text(value)
		if err != nil {
			return Probe{}, false
		}
		return p, true
	case "image":
		id, err := strconv.Atoi(rest)
		if err != nil || id < 0 {
			return Probe{}, false
		}
		p, err := Image(id)
		if err != nil {
			return Probe{}, false
		}
		return p, true
	default:
		return Probe{}, false
	}
}
