package errors

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrUsernameExists          = errors.New("username already exists")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidPack             = errors.New("invalid pack")
	ErrInvalidAmount           = errors.New("amount must be at least 1")
	ErrOrderNotFound           = errors.New("order not found")
	ErrForbidden               = errors.New("order belongs to another user")
	ErrCatalogUnavailable      = errors.New("card catalog unavailable")
	ErrGatewayError            = errors.New("payment gateway error")
	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrBalanceLocked           = errors.New("balance is locked")
	ErrInternal                = errors.New("internal error")
)
