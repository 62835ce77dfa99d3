package service

import "errors"

var (
	ErrValidation     = errors.New("invalid request")
	ErrBasketNotFound = errors.New("basket not found")
	// ErrDependency means a store, cache or pricing call failed. The stored
	// basket is unchanged and the request may be retried.
	ErrDependency = errors.New("dependency unavailable")
	// ErrPublishFailed means the checkout event was not handed off and the
	// basket was kept.
	ErrPublishFailed = errors.New("checkout event not published")
)
