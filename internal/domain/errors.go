package domain

import "errors"

var (
	ErrReadingNotFound      = errors.New("reading not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUpstreamUnavailable  = errors.New("index feed unavailable")
	ErrFeedFull             = errors.New("feed client limit reached")
)
