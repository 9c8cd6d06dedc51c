package config

import "fmt"

const (
	errRequiredEnvNotSetFmt = "required environment variable %s is not set"
)

type messageBuilders struct {
	requiredEnvNotSet func(string) string
	secretInvalid     func(format, name string, args ...any) error
}

func newMessageBuilders() messageBuilders {
	return messageBuilders{
		requiredEnvNotSet: func(key string) string {
			return fmt.Sprintf(errRequiredEnvNotSetFmt, key)
		},
		secretInvalid: func(format, name string, args ...any) error {
			return fmt.Errorf(format, append([]any{name}, args...)...)
		},
	}
}

var messages = newMessageBuilders()
