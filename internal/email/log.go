package email

import (
	"context"
	"log/slog"

	"github.com/kodix/kodix/internal/i18n"
)

// LogMailer writes codes to the log instead of sending them. Used in
// development when no Postmark token is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendLoginCode(_ context.Context, _ *i18n.Printer, to, code string) error {
	m.Logger.Info("login code", "to", to, "code", code)
	return nil
}

func (m LogMailer) SendInvitation(_ context.Context, _ *i18n.Printer, to, teamName, _, invitationID, code string) error {
	m.Logger.Info("invitation", "to", to, "team", teamName, "invitation_id", invitationID, "code", code)
	return nil
}
