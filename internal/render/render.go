package render

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"flexmailer/internal/headers"
)

// Render writes h as an RFC 5322 header block terminated by an empty line.
// Field order follows h; field names are written in canonical MIME form and
// long values are folded.
func Render(h *headers.Map) ([]byte, error) {
	var mh mail.Header
	keys := h.Keys()
	// textproto.Header stores fields newest-first and writes them in reverse.
	for i := len(keys) - 1; i >= 0; i-- {
		v, _ := h.Get(keys[i])
		mh.Add(keys[i], v)
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, mh.Header.Header); err != nil {
		return nil, fmt.Errorf("render headers: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads a header block produced by Render.
func Parse(data []byte) (mail.Header, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return mail.Header{}, fmt.Errorf("parse headers: %w", err)
	}
	return mail.Header{Header: message.Header{Header: th}}, nil
}
