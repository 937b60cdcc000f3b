package service

import (
	"errors"

	"github.com/darim/darim/internal/apperr"
)

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
