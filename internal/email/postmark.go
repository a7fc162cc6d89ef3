// Package email delivers login and invitation codes through Postmark.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/kodix/kodix/internal/i18n"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream,omitempty"`
}

// SendLoginCode emails a one-time sign-in code.
func (c *Client) SendLoginCode(ctx context.Context, p *i18n.Printer, to, code string) error {
	text := p.T(i18n.LoginBody, code)
	return c.send(ctx, postmarkEmail{
		To:       to,
		Subject:  p.T(i18n.LoginSubject),
		TextBody: text,
		HtmlBody: "<p>" + html.EscapeString(text) + "</p>",
	})
}

// SendInvitation emails an invitation code with a link to the invitation.
func (c *Client) SendInvitation(ctx context.Context, p *i18n.Printer, to, teamName, inviterName, invitationID, code string) error {
	link := fmt.Sprintf("%s/invitations/%s", c.baseURL, invitationID)
	text := p.T(i18n.InviteBody, inviterName, teamName, code, link)
	return c.send(ctx, postmarkEmail{
		To:       to,
		Subject:  p.T(i18n.InviteSubject, teamName),
		TextBody: text,
		HtmlBody: fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p>`,
			html.EscapeString(text), html.EscapeString(link), html.EscapeString(link)),
	})
}

func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	msg.From = c.fromEmail
	msg.MessageStream = "outbound"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
