package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

var ErrNoRecipients = errors.New("no recipients specified")

// Address is an RFC 5322 mailbox; it is the same type as net/mail.Address.
type Address = mail.Address

// Attachment is a binary part sent alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EmailMessage is a fully addressed outbound message. Bcc recipients only go on the
// envelope and never appear in the written headers.
type EmailMessage struct {
	From        Address
	To          []*Address
	ReplyTo     []*Address
	Bcc         []*Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// EmailProvider delivers a message. Implementations must be safe for concurrent use.
type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Recipients returns the envelope recipients: To followed by Bcc.
func (m EmailMessage) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Bcc))
	for _, a := range m.To {
		out = append(out, a.Address)
	}
	for _, a := range m.Bcc {
		out = append(out, a.Address)
	}
	return out
}

// Render writes the MIME form of the message: multipart/mixed holding a
// multipart/alternative text+html body followed by the attachments.
func (m EmailMessage) Render(w io.Writer, now time.Time) error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(m.Subject)
	h.SetAddressList("From", []*mail.Address{&m.From})
	h.SetAddressList("To", m.To)
	if len(m.ReplyTo) > 0 {
		h.SetAddressList("Reply-To", m.ReplyTo)
	}
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("create message writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create body: %w", err)
	}
	if err := writeInline(iw, "text/plain", m.Text); err != nil {
		return err
	}
	if m.HTML != "" {
		if err := writeInline(iw, "text/html", m.HTML); err != nil {
			return err
		}
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	for _, att := range m.Attachments {
		var ah mail.AttachmentHeader
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.SetContentType(ct, nil)
		ah.SetFilename(att.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("create attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return fmt.Errorf("write attachment %s: %w", att.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("close attachment %s: %w", att.Filename, err)
		}
	}
	return mw.Close()
}

// Bytes renders the message into memory.
func (m EmailMessage) Bytes(now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Render(&buf, now); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return pw.Close()
}
