package recruit

import (
	"errors"
	"fmt"

	"github.com/EgorLis/Recruitbot/internal/i18n"
)

// Kind — класс ошибки, определяет, как о ней сообщают.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindPrecondition  Kind = "precondition"
	KindPermission    Kind = "permission"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindPersistence   Kind = "persistence"
)

// Error — доменная ошибка. Key — ключ текста для пользователя в i18n.
// errors.Is сравнивает по Kind, а если у цели задан Key — ещё и по Key.
type Error struct {
	Kind   Kind
	Key    string
	Params i18n.Params
	Cause  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Key != "" {
		msg += ": " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrPrecondition  = &Error{Kind: KindPrecondition}
	ErrPermission    = &Error{Kind: KindPermission}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrNotAuthorized = &Error{Kind: KindAuthorization, Key: "decision.not_allowed"}
	ErrPersistence   = &Error{Kind: KindPersistence, Key: "command.error"}

	ErrSteamInvalid = &Error{Kind: KindValidation, Key: "steam.invalid"}
	ErrSteamUnknown = &Error{Kind: KindValidation, Key: "steam.unknown_account"}
	ErrWrongUser    = &Error{Kind: KindValidation, Key: "steam.wrong_user"}
	ErrUnknownRole  = &Error{Kind: KindValidation, Key: "roles.not_found"}

	ErrAlreadyApplied   = &Error{Kind: KindPrecondition, Key: "recruit.already_applied"}
	ErrAlreadyDecided   = &Error{Kind: KindPrecondition, Key: "recruit.already_decided"}
	ErrSteamRequired    = &Error{Kind: KindPrecondition, Key: "steam.required"}
	ErrNotConfigured    = &Error{Kind: KindPrecondition, Key: "recruit.not_configured"}
	ErrNotReady         = &Error{Kind: KindPrecondition, Key: "decision.not_ready"}
	ErrApprovalSteam    = &Error{Kind: KindPrecondition, Key: "decision.missing_steam"}
	ErrOperationsLocked = &Error{Kind: KindPrecondition, Key: "roles.operations_not_done"}
	ErrExpired          = &Error{Kind: KindPrecondition, Key: "decision.expired"}
	ErrWrongActor       = &Error{Kind: KindPrecondition, Key: "decision.wrong_actor"}

	ErrRoleGrant       = &Error{Kind: KindPermission, Key: "recruit.cannot_grant"}
	ErrRoleManage      = &Error{Kind: KindPermission, Key: "roles.no_permission"}
	ErrWorkspaceFailed = &Error{Kind: KindPermission, Key: "recruit.workspace_failed"}
	ErrDMBlocked       = &Error{Kind: KindPermission, Key: "onboarding.dm_failed_self"}

	ErrMemberNotFound    = &Error{Kind: KindNotFound, Key: "recruit.member_missing"}
	ErrApplicantNotFound = &Error{Kind: KindNotFound, Key: "decision.member_missing"}
	ErrUserNotFound      = &Error{Kind: KindNotFound, Key: "command.user_not_found"}
	ErrProfileNotFound   = &Error{Kind: KindNotFound, Key: "staff.not_found"}
	ErrUnknownStatus     = &Error{Kind: KindValidation, Key: "staff.unknown_status"}
)

// fail строит ошибку по образцу sentinel с причиной и параметрами текста.
func fail(sentinel *Error, cause error, params i18n.Params) *Error {
	return &Error{Kind: sentinel.Kind, Key: sentinel.Key, Params: params, Cause: cause}
}

func persistence(op string, err error) *Error {
	return fail(ErrPersistence, fmt.Errorf("%s: %w", op, err), nil)
}

// describe возвращает ключ и параметры текста для ошибки.
func describe(err error) (string, i18n.Params) {
	var e *Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key, e.Params
	}
	return ErrPersistence.Key, nil
}
