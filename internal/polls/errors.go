package polls

import "errors"

var (
	ErrPollNotFound  = errors.New("poll not found")
	ErrPollNotActive = errors.New("poll is not active")
	ErrPollExpired   = errors.New("poll has expired")
	ErrInvalidOption = errors.New("invalid option for this poll")
)
