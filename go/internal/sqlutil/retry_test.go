package sqlutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFatal = errors.New("fatal")

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return errors.New("connection reset")
	}, nil)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 4, calls)
}

func TestRetryPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return errFatal
	}, func(err error) bool { return errors.Is(err, errFatal) })
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestStringsToUUIDs(t *testing.T) {
	_, err := StringsToUUIDs([]string{"not-a-uuid"})
	assert.Error(t, err)

	ids, err := StringsToUUIDs(UUIDsToStrings(nil))
	assert.NoError(t, err)
	assert.Empty(t, ids)
}
