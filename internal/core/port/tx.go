package port

import "context"

// Transactor runs user and token repository operations inside a single
// storage transaction. Password reset relies on this to consume the reset
// token, update the password hash, and revoke every session atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(users UserRepository, tokens TokenRepository) error) error
}
