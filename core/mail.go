package core

import "net/mail"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain content
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To)+len(m.Cc)+len(m.Bcc) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.BodyStr != "" }

// ParseAddresses parses each of `addrs` as an RFC 5322 address, skipping the invalid ones.
func ParseAddresses(addrs []string) []mail.Address {
	parsed := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if addr, err := mail.ParseAddress(CleanString(a)); err == nil {
			parsed = append(parsed, *addr)
		}
	}
	return parsed
}
