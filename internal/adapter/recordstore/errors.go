package recordstore

import (
	"errors"

	"github.com/pscheid92/vitalpulse/internal/platform/retry"
)

// ErrThrottled means the record service answered 429.
var ErrThrottled = errors.New("record store throttled the request")

// Classify backs off longer on throttling and otherwise defers to retry.ClassifyDefault.
func Classify(err error) retry.Action {
	if errors.Is(err, ErrThrottled) {
		return retry.After
	}
	return retry.ClassifyDefault(err)
}
