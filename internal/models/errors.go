package models

import "errors"

var (
	// ErrNotLoggedIn нет email владельца: проверка и списание невозможны.
	ErrNotLoggedIn = errors.New("user is not logged in")
	// ErrDemoAlreadyUsed демо уже активировалось.
	ErrDemoAlreadyUsed = errors.New("demo already used")
	// ErrAccountPaid аккаунт уже оплачен, демо для него не выдаётся.
	ErrAccountPaid = errors.New("account already paid")
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrUnknownPackage неизвестный пакет кредитов.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrDailyLimitReached дневной лимит времени исчерпан.
	ErrDailyLimitReached = errors.New("daily limit reached")
)
