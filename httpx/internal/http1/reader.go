package http1

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	// MaxLine bounds any single request or header line, terminator included.
	MaxLine = 64 << 10
	// MaxHeaders bounds the number of header lines per request.
	MaxHeaders = 100

	// Proto is the only protocol version accepted on the request line.
	Proto = "HTTP/1.1"
)

var (
	ErrNoRequest            = errors.New("http1: connection closed before request")
	ErrLineTooLong          = errors.New("http1: request line too long")
	ErrMalformedRequestLine = errors.New("http1: malformed request line")
	ErrUnsupportedVersion   = errors.New("http1: unsupported protocol version")
	ErrHeaderLineTooLong    = errors.New("http1: header line too long")
	ErrTooManyHeaders       = errors.New("http1: too many headers")
)

// Reader reads the head of one HTTP/1.1 request from BR.
// Zero limits fall back to MaxLine and MaxHeaders.
type Reader struct {
	BR         *bufio.Reader
	MaxLine    int
	MaxHeaders int
}

func (r *Reader) maxLine() int {
	if r.MaxLine <= 0 {
		return MaxLine
	}
	return r.MaxLine
}

func (r *Reader) maxHeaders() int {
	if r.MaxHeaders <= 0 {
		return MaxHeaders
	}
	return r.MaxHeaders
}

// ReadLine returns the next line including its terminator. It reads one
// byte at a time so the underlying reader is left positioned exactly
// after the '\n'. An empty slice with a nil error means the peer closed
// the stream before the line started; EOF in the middle of a line
// returns what was read so far.
func (r *Reader) ReadLine() ([]byte, error) {
	limit := r.maxLine()
	var line []byte
	for {
		b, err := r.BR.ReadByte()
		if err != nil {
			if err == io.EOF {
				return line, nil
			}
			return line, err
		}
		line = append(line, b)
		if len(line) > limit {
			return nil, ErrLineTooLong
		}
		if b == '\n' {
			return line, nil
		}
	}
}

// ParseRequestLine splits line into method, target and protocol.
func ParseRequestLine(line string) (method, target, proto string, err error) {
	words := strings.Fields(line)
	if len(words) != 3 {
		return "", "", "", ErrMalformedRequestLine
	}
	method, target, proto = words[0], words[1], words[2]
	if proto != Proto {
		return "", "", "", ErrUnsupportedVersion
	}
	return method, target, proto, nil
}

// ReadRequestLine reads and parses the request line.
func (r *Reader) ReadRequestLine() (method, target, proto string, err error) {
	raw, err := r.ReadLine()
	if err != nil {
		return "", "", "", err
	}
	if len(raw) == 0 {
		return "", "", "", ErrNoRequest
	}
	return ParseRequestLine(latin1(raw))
}

// ReadHeaders reads header lines up to the blank line (or EOF) and folds
// them into a map keyed by canonical name. A later duplicate replaces an
// earlier one. Lines that do not look like "name: value" are skipped.
func (r *Reader) ReadHeaders() (map[string]string, error) {
	limit := r.maxHeaders()
	var lines []string
	for {
		raw, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				return nil, ErrHeaderLineTooLong
			}
			return nil, err
		}
		if isBlank(raw) {
			break
		}
		lines = append(lines, latin1(raw))
		if len(lines) > limit {
			return nil, ErrTooManyHeaders
		}
	}

	h := make(map[string]string, len(lines))
	for _, line := range lines {
		k, v, ok := parseHeaderLine(line)
		if !ok {
			continue
		}
		h[CanonicalHeaderKey(k)] = v
	}
	return h, nil
}

func isBlank(line []byte) bool {
	switch string(line) {
	case "", "\n", "\r\n":
		return true
	}
	return false
}

func parseHeaderLine(line string) (k, v string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	k = strings.TrimSpace(line[:i])
	if !validHeaderKey(k) {
		return "", "", false
	}
	return k, strings.TrimSpace(line[i+1:]), true
}

// validHeaderKey reports whether k is a non-empty RFC 9110 token.
func validHeaderKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return false
		}
	}
	return true
}

// latin1 decodes b as ISO-8859-1, the charset of the request head.
func latin1(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// CanonicalHeaderKey returns s with the first letter and any letter
// following a hyphen in upper case, the rest in lower case.
// Very small canonicalizer to avoid importing textproto here.
func CanonicalHeaderKey(s string) string {
	b := []byte(strings.ToLower(s))
	upper := true
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			if upper {
				b[i] = c - 'a' + 'A'
			}
			upper = false
			continue
		}
		upper = c == '-'
	}
	return string(b)
}
