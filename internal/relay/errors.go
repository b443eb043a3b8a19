package relay

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrNameInvalid      = errors.New("name_invalid")
	ErrNameTaken        = errors.New("name_taken")
	ErrTokenInvalid     = errors.New("token_invalid")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrEmptyBody        = errors.New("empty_body")
	ErrRecipientOffline = errors.New("recipient_offline")
)
