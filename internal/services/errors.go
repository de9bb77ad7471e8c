package services

import (
	"errors"
	"fmt"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/ledger"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthenticated   = errors.New("missing user id")
	ErrServiceNotFound   = errors.New("service not found")
	ErrInvalidService    = errors.New("invalid service")
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrNotFound          = errors.New("order not found")
	ErrNotSubmitted      = errors.New("order was not submitted to the provider")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
