// Package scancode encodes a session's identity into the text payload carried
// by the scannable code, and decodes scanned payloads back.
//
// Wire format: "<ip>|<subject>", UTF-8, no further structure. The separator is
// not escaped, so subject names must not contain "|"; names from the seeded
// timetable never do.
package scancode

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Separator splits the IP from the subject in a payload.
const Separator = "|"

// ErrMalformed is returned when a scanned payload does not parse.
var ErrMalformed = errors.New("malformed scan payload")

// Payload is the decoded content of a scanned code.
type Payload struct {
	IP      string
	Subject string
}

// Encode renders the payload as wire text.
func Encode(p Payload) string {
	return p.IP + Separator + p.Subject
}

// Decode splits raw on the first separator. It fails with ErrMalformed when
// there are fewer than two parts or the subject is empty after trimming
// whitespace.
func Decode(raw string) (Payload, error) {
	before, after, found := strings.Cut(strings.TrimSpace(raw), Separator)
	if !found {
		return Payload{}, ErrMalformed
	}
	subject := strings.TrimSpace(after)
	if subject == "" {
		return Payload{}, ErrMalformed
	}
	return Payload{IP: before, Subject: subject}, nil
}

// PNG renders the payload as a QR code image of the given pixel size.
func PNG(p Payload, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(Encode(p), qrcode.Medium, size)
}
