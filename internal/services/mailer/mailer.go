package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host    string
	Port    int
	User    string
	Pass    string
	From    string
	BaseURL string
}

// Configured reports whether enough settings are present to attempt delivery.
func (c Config) Configured() bool {
	return c.Host != "" && c.From != ""
}

type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mail send failed: %s: %v", e.Reason, e.Err)
	}
	return "mail send failed: " + e.Reason
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Transport delivers a fully formed RFC 5322 message.
type Transport func(ctx context.Context, from string, to []string, msg []byte) error

type Client struct {
	cfg       Config
	transport Transport
	now       func() time.Time
}

func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	c := &Client{cfg: cfg, now: time.Now}
	c.transport = c.smtpSend
	return c
}

// WithTransport replaces SMTP delivery, e.g. with a recorder in tests.
func (c *Client) WithTransport(t Transport) *Client {
	c.transport = t
	return c
}

func (c *Client) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	body := fmt.Sprintf("Your verification code is %s\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
		code, int(ttl.Minutes()))
	msg, err := c.plainMessage(to, "Your verification code", body)
	if err != nil {
		return &SendError{Reason: "compose", Err: err}
	}
	return c.send(ctx, to, msg)
}

// SendPrizeNotification mails the voucher with the QR image embedded inline.
// A nil qrPNG sends the token as text only.
func (c *Client) SendPrizeNotification(ctx context.Context, to, prizeTitle, token string, qrPNG []byte) error {
	text := fmt.Sprintf("Congratulations! You won: %s\n\nShow this code at a participating vendor: %s\n", prizeTitle, token)
	if c.cfg.BaseURL != "" {
		text += fmt.Sprintf("\nYour voucher: %s/voucher\n", strings.TrimRight(c.cfg.BaseURL, "/"))
	}
	if len(qrPNG) == 0 {
		msg, err := c.plainMessage(to, "You won "+prizeTitle, text)
		if err != nil {
			return &SendError{Reason: "compose", Err: err}
		}
		return c.send(ctx, to, msg)
	}
	msg, err := c.voucherMessage(to, "You won "+prizeTitle, text, prizeTitle, token, qrPNG)
	if err != nil {
		return &SendError{Reason: "compose", Err: err}
	}
	return c.send(ctx, to, msg)
}

func (c *Client) SendRedemptionNotification(ctx context.Context, to, prizeTitle, vendorName string) error {
	body := fmt.Sprintf("Your voucher for %s was redeemed at %s.\n\nIf this was not you, contact support.\n", prizeTitle, vendorName)
	msg, err := c.plainMessage(to, "Voucher redeemed", body)
	if err != nil {
		return &SendError{Reason: "compose", Err: err}
	}
	return c.send(ctx, to, msg)
}

func (c *Client) send(ctx context.Context, to string, msg []byte) error {
	if !c.cfg.Configured() {
		return &SendError{Reason: "not configured"}
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return &SendError{Reason: "empty recipient"}
	}
	if err := c.transport(ctx, c.cfg.From, []string{to}, msg); err != nil {
		return &SendError{Reason: "transport", Err: err}
	}
	return nil
}

func (c *Client) headers(to, subject string) []string {
	return []string{
		"From: " + c.cfg.From,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + c.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}
}

func (c *Client) plainMessage(to, subject, body string) ([]byte, error) {
	lines := append(c.headers(to, subject),
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	)
	return []byte(strings.Join(lines, "\r\n")), nil
}

func (c *Client) voucherMessage(to, subject, text, prizeTitle, token string, qrPNG []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	html := fmt.Sprintf(`<p>Congratulations! You won <strong>%s</strong>.</p>
<p>Show this QR code at a participating vendor.</p>
<p><img src="cid:voucher-qr" alt="%s"></p>
<p>Code: <code>%s</code></p>`, escape(prizeTitle), token, token)

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(html)); err != nil {
		return nil, err
	}

	imgPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"image/png"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-ID":                {"<voucher-qr>"},
		"Content-Disposition":       {`inline; filename="voucher.png"`},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(imgPart, qrPNG); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	lines := append(c.headers(to, subject),
		fmt.Sprintf(`Content-Type: multipart/related; boundary="%s"`, mw.Boundary()),
		"",
		"",
	)
	msg.WriteString(strings.Join(lines, "\r\n"))
	// plain-text fallback precedes the first boundary and is ignored by MIME readers
	msg.WriteString(text)
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func (c *Client) smtpSend(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return err
		}
	}
	if c.cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", c.cfg.User, c.cfg.Pass, c.cfg.Host)); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
