package models

import (
	"errors"
	"fmt"
)

var (
	ErrGeneral          = errors.New("an error occurred on the server during your request")
	ErrResourceNotFound = errors.New("there is no")
	ErrConflict         = errors.New("the resource was modified concurrently")
	ErrValidation       = errors.New("validation failed")

	ErrIdentityNotUnique = errors.New("the identity reference must be unique")
	ErrNegativeAmount    = fmt.Errorf("%w: the amount must not be negative", ErrValidation)
)
