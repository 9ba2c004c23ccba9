// -----------------------------------------------------------------------
// Mailbox client - IMAP reading with credentials from KeyValue storage
// -----------------------------------------------------------------------

package mailbox

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// Config holds IMAP connection settings, loaded from KeyValue storage
// under the mailbox_ prefix so operators can set them at runtime.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// Message is one fetched alert email.
type Message struct {
	SeqNum  uint32
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Client reads literature alert mail over IMAP.
type Client struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewClient creates a mailbox client backed by KV-stored credentials.
func NewClient(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Client {
	return &Client{kv: kv, logger: logger}
}

// GetConfig loads the connection settings. Missing keys keep defaults.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{Port: 993, UseTLS: true}

	if host, err := c.kv.Get(ctx, "mailbox_host"); err == nil && host != "" {
		cfg.Host = host
	}
	if portStr, err := c.kv.Get(ctx, "mailbox_port"); err == nil && portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}
	if username, err := c.kv.Get(ctx, "mailbox_username"); err == nil {
		cfg.Username = username
	}
	if password, err := c.kv.Get(ctx, "mailbox_password"); err == nil {
		cfg.Password = password
	}
	if tlsStr, err := c.kv.Get(ctx, "mailbox_use_tls"); err == nil && tlsStr != "" {
		cfg.UseTLS = strings.EqualFold(tlsStr, "true") || tlsStr == "1"
	}
	return cfg, nil
}

// SetConfig persists connection settings to KeyValue storage.
func (c *Client) SetConfig(ctx context.Context, cfg *Config) error {
	pairs := []struct{ key, value, desc string }{
		{"mailbox_host", cfg.Host, "IMAP server hostname"},
		{"mailbox_port", strconv.Itoa(cfg.Port), "IMAP server port"},
		{"mailbox_username", cfg.Username, "IMAP username (email address)"},
		{"mailbox_password", cfg.Password, "IMAP password or app password"},
		{"mailbox_use_tls", strconv.FormatBool(cfg.UseTLS), "Use TLS encryption"},
	}
	for _, p := range pairs {
		if err := c.kv.Set(ctx, p.key, p.value, p.desc); err != nil {
			return fmt.Errorf("failed to set %s: %w", p.key, err)
		}
	}
	c.logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Mailbox configuration saved")
	return nil
}

// IsConfigured reports whether the minimum connection settings exist.
func (c *Client) IsConfigured(ctx context.Context) bool {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return false
	}
	return cfg.Host != "" && cfg.Username != "" && cfg.Password != ""
}

// FetchUnread returns unseen messages in folder whose subject contains
// subjectFilter (case-insensitive; empty matches all).
func (c *Client) FetchUnread(ctx context.Context, folder, subjectFilter string) ([]Message, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	mbox, err := conn.Select(folder, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := conn.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)
	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(seqNums))

	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}, messages)
	}()

	var out []Message
	for msg := range messages {
		if msg == nil {
			continue
		}
		subject := msg.Envelope.Subject
		if subjectFilter != "" && !strings.Contains(strings.ToLower(subject), strings.ToLower(subjectFilter)) {
			continue
		}

		body, err := parseBody(msg, section)
		if err != nil {
			c.logger.Warn().Err(err).Int32("seq", int32(msg.SeqNum)).Msg("Failed to parse message body")
			continue
		}

		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		out = append(out, Message{
			SeqNum:  msg.SeqNum,
			From:    from,
			Subject: subject,
			Body:    body,
			Date:    msg.Envelope.Date,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// MarkSeen flags one message as read so the next poll skips it.
func (c *Client) MarkSeen(ctx context.Context, folder string, seqNum uint32) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Logout()

	if _, err := conn.Select(folder, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNum)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := conn.Store(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark message seen: %w", err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*imapclient.Client, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox config: %w", err)
	}
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("mailbox not configured")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var conn *imapclient.Client
	if cfg.UseTLS {
		conn, err = imapclient.DialTLS(addr, nil)
	} else {
		conn, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Logout()
		return nil, fmt.Errorf("mailbox login failed: %w", err)
	}
	return conn, nil
}

func parseBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var body string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if strings.HasPrefix(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				body = string(b)
			}
		}
	}
	return strings.TrimSpace(body), nil
}
