// Package i18n looks up user-facing strings (toasts, warnings) in the
// caller's language.
package i18n

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	TaskLocked         = "care.task_locked"
	UnlockBeyondLimit  = "care.unlock_beyond_limit"
	CannotDeleteTask   = "care.cannot_delete_task"
	NotTeamOwner       = "team.not_owner"
	OwnerKeepsAdmin    = "team.owner_keeps_admin"
	OwnerNotRemovable  = "team.owner_not_removable"
	AlreadyMember      = "team.already_member"
	InvitationsSent    = "team.invitations_sent"
	InvalidInvitation  = "team.invalid_invitation"
	NothingToRedeem    = "cashback.nothing_to_redeem"
	InsufficientCredit = "cashback.insufficient"
	VoucherCreated     = "cashback.voucher_created"
	Forbidden          = "auth.forbidden"
	InvalidCode        = "auth.invalid_code"
	TooManyAttempts    = "auth.too_many_attempts"
	LoginSubject       = "email.login_subject"
	LoginBody          = "email.login_body"
	InviteSubject      = "email.invite_subject"
	InviteBody         = "email.invite_body"
)

var supported = []language.Tag{language.English, language.BrazilianPortuguese}

var matcher = language.NewMatcher(supported)

func init() {
	set := func(tag language.Tag, entries map[string]string) {
		for k, v := range entries {
			if err := message.SetString(tag, k, v); err != nil {
				panic(err)
			}
		}
	}
	set(language.English, map[string]string{
		TaskLocked:         "This task is locked until %s. Unlock the shift before changing it.",
		UnlockBeyondLimit:  "Tasks can only be unlocked up to the end of tomorrow.",
		CannotDeleteTask:   "You can only delete tasks you created manually.",
		NotTeamOwner:       "Only the team owner can do this.",
		OwnerKeepsAdmin:    "The team owner cannot remove their own ADMIN role.",
		OwnerNotRemovable:  "The team owner cannot be removed from the team.",
		AlreadyMember:      "%s is already a member of this team.",
		InvitationsSent:    "%d invitation(s) sent.",
		InvalidInvitation:  "This invitation is invalid or has expired.",
		NothingToRedeem:    "There is no cashback to redeem for this purchase.",
		InsufficientCredit: "Available cashback changed. Please review the redemption.",
		VoucherCreated:     "Voucher #%d created for %.2f.",
		Forbidden:          "You don't have permission to do this.",
		InvalidCode:        "Invalid or expired code.",
		TooManyAttempts:    "Too many attempts. Request a new code.",
		LoginSubject:       "Your Kodix sign-in code",
		LoginBody:          "Your sign-in code is %s. It expires in 15 minutes.",
		InviteSubject:      "You've been invited to %s on Kodix",
		InviteBody:         "%s invited you to join %s. Your invitation code is %s. Open %s to accept.",
	})
	set(language.BrazilianPortuguese, map[string]string{
		TaskLocked:         "Esta tarefa está bloqueada até %s. Desbloqueie o turno antes de alterá-la.",
		UnlockBeyondLimit:  "Tarefas só podem ser desbloqueadas até o fim de amanhã.",
		CannotDeleteTask:   "Você só pode excluir tarefas que criou manualmente.",
		NotTeamOwner:       "Somente o dono da equipe pode fazer isso.",
		OwnerKeepsAdmin:    "O dono da equipe não pode remover o próprio papel de ADMIN.",
		OwnerNotRemovable:  "O dono da equipe não pode ser removido.",
		AlreadyMember:      "%s já é membro desta equipe.",
		InvitationsSent:    "%d convite(s) enviado(s).",
		InvalidInvitation:  "Este convite é inválido ou expirou.",
		NothingToRedeem:    "Não há cashback para resgatar nesta compra.",
		InsufficientCredit: "O cashback disponível mudou. Revise o resgate.",
		VoucherCreated:     "Voucher #%d criado no valor de %.2f.",
		Forbidden:          "Você não tem permissão para fazer isso.",
		InvalidCode:        "Código inválido ou expirado.",
		TooManyAttempts:    "Muitas tentativas. Solicite um novo código.",
		LoginSubject:       "Seu código de acesso Kodix",
		LoginBody:          "Seu código de acesso é %s. Ele expira em 15 minutos.",
		InviteSubject:      "Você foi convidado para %s no Kodix",
		InviteBody:         "%s convidou você para %s. Seu código de convite é %s. Abra %s para aceitar.",
	})
}

// Printer formats messages for one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// For returns a printer for the best match of an Accept-Language value.
func For(acceptLanguage string) *Printer {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, idx, _ := matcher.Match(tags...)
	tag := supported[idx]
	return &Printer{tag: tag, p: message.NewPrinter(tag)}
}

// FromRequest returns the printer for r's Accept-Language header.
func FromRequest(r *http.Request) *Printer {
	return For(r.Header.Get("Accept-Language"))
}

func (p *Printer) Tag() language.Tag { return p.tag }

// T formats the message stored under key.
func (p *Printer) T(key string, args ...any) string {
	return p.p.Sprintf(key, args...)
}
