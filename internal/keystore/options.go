package keystore

import "log/slog"

// Option configures a KeyVault.
type Option func(*KeyVault)

// WithLogger sets the logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(v *KeyVault) {
		v.logger = logger
	}
}

// WithStatusObserver registers fn to run after every lock or unlock.
func WithStatusObserver(fn func()) Option {
	return func(v *KeyVault) {
		v.observers = append(v.observers, fn)
	}
}
