// internal/service/loyalty/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	ErrMemberNotFound = errors.New("member loyalty status not found")
	ErrInvalidPoints  = errors.New("points amount must be positive")
)
