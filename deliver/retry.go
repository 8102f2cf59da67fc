package deliver

import "time"

// RetryPolicy computes the exponential backoff schedule for failed
// resolutions and deliveries: baseDelay * 3^attemptNum, with a hard
// attempt cap after which the delivery is dropped.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// Next returns the delay before the given attempt number's retry. The
// second return is false once the incremented attempt count reaches
// the cap, meaning the delivery must be dropped instead.
func (p RetryPolicy) Next(attemptNum int) (time.Duration, bool) {
	if attemptNum+1 >= p.MaxAttempts {
		return 0, false
	}
	delay := p.BaseDelay
	for i := 0; i < attemptNum; i++ {
		delay *= 3
	}
	return delay, true
}
