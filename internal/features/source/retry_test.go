package source_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/features/source"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		err      error
		attempts int
		wantErr  bool
	}{
		{"success first try", 0, nil, 1, false},
		{"transient then success", 1, errors.New("connection reset"), 2, false},
		{"retries exhausted", 5, errors.New("connection reset"), 3, true},
		{"not found is not retried", 5, fmt.Errorf("%w: ghost", common.ErrUserNotFound), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := source.Retry(context.Background(), 2, time.Millisecond, nil, func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.attempts, attempts)
			assert.Equal(t, tt.attempts, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
