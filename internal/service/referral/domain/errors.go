// internal/service/referral/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	ErrInvalidCode     = errors.New("referral code does not exist")
	ErrShopNotFound    = errors.New("shop is not registered")
	ErrSelfReferral    = errors.New("member cannot refer themselves")
	ErrAlreadyReferred = errors.New("member already has a referral relationship")
	ErrMemberNotFound  = errors.New("member not found")
)
