package dkim

import (
	"bufio"
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/textproto"
	msgauthdkim "github.com/emersion/go-msgauth/dkim"

	"flexmailer/internal/config"
	"flexmailer/internal/email"
	"flexmailer/internal/headers"
)

var (
	ErrNoSelector = errors.New("dkim: selector is required")
	ErrNoKey      = errors.New("dkim: private key is required")
	ErrNoDomain   = errors.New("dkim: no signing domain")
)

// signedFields are covered by every signature, in h= order.
var signedFields = []string{
	headers.From,
	headers.ReplyTo,
	headers.MessageID,
	headers.ListUnsubscribe,
	headers.Precedence,
}

// Signer adds a DKIM-Signature to rendered header previews.
type Signer struct {
	selector string
	domain   string
	key      crypto.Signer
}

// New builds a Signer from cfg. It returns nil and no error when cfg holds no
// signing settings at all.
func New(cfg config.DKIM) (*Signer, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	if cfg.Selector == "" {
		return nil, ErrNoSelector
	}
	pemData, err := keyMaterial(cfg)
	if err != nil {
		return nil, err
	}
	key, err := ParseKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: %w", err)
	}
	return &Signer{selector: cfg.Selector, domain: cfg.Domain, key: key}, nil
}

// Selector returns the configured selector.
func (s *Signer) Selector() string {
	if s == nil {
		return ""
	}
	return s.selector
}

// Domain returns the fixed signing domain. Empty means the sender's domain
// is used.
func (s *Signer) Domain() string {
	if s == nil {
		return ""
	}
	return s.domain
}

// Sign returns preview with a DKIM-Signature field prepended. A nil Signer
// and an already signed preview leave it unchanged.
func (s *Signer) Sign(preview []byte, sender string) ([]byte, error) {
	if s == nil {
		return preview, nil
	}
	signed, err := isSigned(preview)
	if err != nil {
		return nil, fmt.Errorf("dkim: read preview: %w", err)
	}
	if signed {
		return preview, nil
	}

	domain := s.domain
	if domain == "" {
		if domain, err = email.Domain(sender); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDomain, err)
		}
	}

	keys := make([]string, len(signedFields))
	for i, f := range signedFields {
		keys[i] = strings.ToLower(f)
	}

	var out bytes.Buffer
	err = msgauthdkim.Sign(&out, bytes.NewReader(toCRLF(preview)), &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             keys,
	})
	if err != nil {
		return nil, fmt.Errorf("dkim: sign: %w", err)
	}
	return out.Bytes(), nil
}

func isSigned(preview []byte) (bool, error) {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(preview)))
	if err != nil {
		return false, err
	}
	return h.Has("DKIM-Signature"), nil
}

func toCRLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
}
