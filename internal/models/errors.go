package models

import "errors"

var (
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrPayoutNotMatchable  = errors.New("payout is not in a matchable status")
	ErrTransactionNotFound = errors.New("bank transaction not found")
	ErrConnectionNotFound  = errors.New("bank connection not found")
	ErrTransactionMatched  = errors.New("bank transaction already matched")
	ErrPayoutNotLanded     = errors.New("payout is not in landed status")
	ErrInvalidProcessor    = errors.New("invalid processor")
	ErrInvalidStatus       = errors.New("invalid payout status")
)
