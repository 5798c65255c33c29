// Package mail delivers login links to users. The default implementation
// only logs the link, which is what development and most self-hosted
// deployments want; a real SMTP sender can be dropped in behind Mailer.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

type Mailer interface {
	SendLoginLink(ctx context.Context, email string, token string) error
}

var _ Mailer = (*LogMailer)(nil)

// LogMailer writes the login link to the server log instead of sending it.
type LogMailer struct {
	FrontendBaseURL string
}

func (m *LogMailer) SendLoginLink(ctx context.Context, email string, token string) error {
	link, err := url.JoinPath(m.FrontendBaseURL, "login")
	if err != nil {
		return fmt.Errorf("failed to build login link: %w", err)
	}
	link = fmt.Sprintf("%s?login_token=%s", link, url.QueryEscape(token))

	slog.InfoContext(ctx, "login link requested", "email", email, "link", link)

	return nil
}
