package registry

import "errors"

// Ошибки реестра backend'ов.
var (
	// ErrUnknownBackend — backend не зарегистрирован.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrDuplicateBackend — backend с таким ID уже зарегистрирован.
	ErrDuplicateBackend = errors.New("backend already registered")

	// ErrInvalidProfile — профиль backend'а не прошёл валидацию.
	ErrInvalidProfile = errors.New("invalid backend profile")

	// ErrNoAvailableBackend — нет активного backend'а под требуемые возможности.
	ErrNoAvailableBackend = errors.New("no available backend")
)
