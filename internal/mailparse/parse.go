// Package mailparse turns raw RFC 5322 bytes into the fields the pipeline needs
// and reduces the bodies to plain text for extraction.
package mailparse

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ErrEmptyMessage is returned for an empty raw payload.
var ErrEmptyMessage = errors.New("mailparse: empty message")

// Message is a parsed inbound message. It is never persisted as-is.
type Message struct {
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	MessageID string
	Date      time.Time
	Text      string
	HTML      string
	Header    mail.Header
}

// Parse reads raw MIME. Unknown charsets and malformed address headers are
// tolerated; only an unreadable header block is an error.
func Parse(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	mr, err := mail.CreateReader(bytes.NewReader(bytes.TrimLeft(raw, "\r\n\t ")))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("mailparse: read header: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &Message{
		From:    firstAddress(h, "From"),
		To:      addressList(h, "To"),
		Cc:      addressList(h, "Cc"),
		Bcc:     addressList(h, "Bcc"),
		Subject: subject(h),
		Header:  h,
	}

	msg.MessageID, _ = h.MessageID()
	if msg.MessageID == "" {
		sum := sha256.Sum256(raw)
		msg.MessageID = hex.EncodeToString(sum[:16]) + "@generated.invalid"
	}
	if d, err := h.Date(); err == nil {
		msg.Date = d
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) && p != nil {
				readInline(msg, p)
				continue
			}
			// 正文损坏时保留已解析的头部
			break
		}
		readInline(msg, p)
	}

	return msg, nil
}

func readInline(msg *Message, p *mail.Part) {
	ih, ok := p.Header.(*mail.InlineHeader)
	if !ok {
		return
	}
	ct, _, err := ih.ContentType()
	if err != nil {
		ct = "text/plain"
	}
	switch ct {
	case "text/plain":
		if msg.Text == "" {
			if b, err := io.ReadAll(p.Body); err == nil {
				msg.Text = string(b)
			}
		}
	case "text/html":
		if msg.HTML == "" {
			if b, err := io.ReadAll(p.Body); err == nil {
				msg.HTML = string(b)
			}
		}
	}
}

func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return s
}

func firstAddress(h mail.Header, key string) string {
	addrs := addressList(h, key)
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// addressList returns bare addresses. A header that fails strict parsing is
// split on commas and each piece parsed on its own.
func addressList(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Address)
		}
		return out
	}

	var out []string
	for _, piece := range strings.Split(h.Get(key), ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if a, err := mail.ParseAddress(piece); err == nil {
			out = append(out, a.Address)
		} else if strings.Contains(piece, "@") && !strings.ContainsAny(piece, " <>") {
			out = append(out, piece)
		}
	}
	return out
}

// ParseAddressList parses a header-style address list such as a forwarding hint.
func ParseAddressList(value string) []string {
	var h mail.Header
	h.Set("X-List", value)
	return addressList(h, "X-List")
}
