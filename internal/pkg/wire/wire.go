package wire

import (
	"strings"

	"github.com/pkg/errors"
)

// Frame size and shape limits on the wire.
const (
	MinFrameLen = 3
	MaxFrameLen = 512
	MaxTokens   = 15
)

// Frame is one decoded protocol message: an optional prefix, a command
// name and its ordered parameters. The trailing-colon marker is a
// serialization policy, not a stored property, so re-encoding a decoded
// frame preserves semantic content rather than the exact byte sequence.
type Frame struct {
	Prefix  string
	Command string
	Params  []string
}

// Decode parses a raw CRLF-terminated byte buffer into a Frame.
// A failed decode is non-fatal to the connection: the caller drops the
// frame and keeps reading.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < MinFrameLen || len(raw) > MaxFrameLen {
		return Frame{}, ErrFrameLength
	}
	if raw[len(raw)-2] != '\r' || raw[len(raw)-1] != '\n' {
		return Frame{}, ErrMissingCRLF
	}
	line := string(raw[:len(raw)-2])

	var frame Frame
	if strings.HasPrefix(line, ":") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return Frame{}, ErrEmptyFrame
		}
		frame.Prefix = line[1:sp]
		line = line[sp+1:]
	}

	var tokens []string
	for len(line) > 0 {
		if line[0] == ':' {
			// Trailing parameter: the rest of the line, colon stripped,
			// spaces and all.
			tokens = append(tokens, line[1:])
			break
		}
		sp := strings.IndexByte(line, ' ')
		if sp == 0 {
			return Frame{}, ErrEmptyToken
		}
		if sp < 0 {
			tokens = append(tokens, line)
			break
		}
		tokens = append(tokens, line[:sp])
		line = line[sp+1:]
		if len(line) == 0 || line[0] == ' ' {
			return Frame{}, ErrEmptyToken
		}
	}
	if len(tokens) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	// The command token counts towards the token cap.
	if len(tokens) > MaxTokens {
		return Frame{}, ErrTooManyParams
	}

	frame.Command = tokens[0]
	frame.Params = tokens[1:]
	return frame, nil
}

// Encode serializes a frame. Empty params mean "omit". The last non-empty
// param is colon-marked only when it contains an internal space; params
// without spaces are never colon-prefixed even in last position. This
// asymmetry with Decode (which accepts any colon-marked trailing param)
// is the wire contract.
func Encode(prefix, command string, params ...string) []byte {
	present := make([]string, 0, len(params))
	for _, p := range params {
		if p != "" {
			present = append(present, p)
		}
	}

	var b strings.Builder
	if prefix != "" {
		b.WriteByte(':')
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString(command)
	for i, p := range present {
		b.WriteByte(' ')
		if i == len(present)-1 && strings.ContainsRune(p, ' ') {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EncodeFrame serializes a Frame under the Encode contract.
func EncodeFrame(f Frame) []byte {
	return Encode(f.Prefix, f.Command, f.Params...)
}

// SenderNick extracts the nick portion of an IRC-style prefix
// (everything before the first '!'). An empty prefix yields "".
func SenderNick(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

var (
	// ErrFrameLength is returned when the raw buffer is outside [3, 512] bytes.
	ErrFrameLength = errors.New("frame length out of range")
	// ErrMissingCRLF is returned when the buffer does not end with CRLF.
	ErrMissingCRLF = errors.New("frame not CRLF-terminated")
	// ErrEmptyFrame is returned when no command token is present.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrEmptyToken is returned when two consecutive spaces produce an empty token.
	ErrEmptyToken = errors.New("empty token in frame")
	// ErrTooManyParams is returned when the frame exceeds the token cap.
	ErrTooManyParams = errors.New("too many parameters")
)
