// internal/service/campaign/domain/errors.go
package domain

import "errors"

var (
	ErrRuleNotFound       = errors.New("campaign rule not found")
	ErrAllocationNotFound = errors.New("allocation not found")
	ErrAlreadyClaimed     = errors.New("allocation has already been claimed")
	ErrNotClaimable       = errors.New("allocation is not in a claimable state")
	ErrInvalidRule        = errors.New("campaign rule configuration is invalid")
)
