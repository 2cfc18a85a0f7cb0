package hints_test

import (
	"testing"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/hints"
)

func TestHint(t *testing.T) {
	var (
		errNoCheckpoint = errors.Base("no checkpoint")
		errOther        = errors.Base("other")
		errHinted       = hints.Wrap(errNoCheckpoint)
		errHintedMsg    = hints.New("source disabled")
	)

	t.Run("Wrap nil", func(t *testing.T) {
		if hints.Wrap(nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("New keeps message", func(t *testing.T) {
		if errHintedMsg.Error() != "source disabled" {
			t.Errorf("expected %q, got %q", "source disabled", errHintedMsg.Error())
		}
	})

	t.Run("IsHint", func(t *testing.T) {
		testCases := []struct {
			name     string
			err      error
			expected bool
		}{
			{"Nil", nil, false},
			{"Plain", errNoCheckpoint, false},
			{"Hinted", errHinted, true},
			{"HintedMsg", errHintedMsg, true},
			{"WrappedHint", errors.Errorf("resume: %w", errHinted), true},
			{"WrappedPlain", errors.Errorf("resume: %w", errNoCheckpoint), false},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				if got := hints.IsHint(tc.err); got != tc.expected {
					t.Errorf("IsHint() = %v, want %v", got, tc.expected)
				}
			})
		}
	})

	t.Run("Is", func(t *testing.T) {
		if !hints.Is(errHinted, errNoCheckpoint) {
			t.Error("Is(hinted, base) should be true")
		}
		if hints.Is(errNoCheckpoint, errNoCheckpoint) {
			t.Error("Is(base, base) should be false because it is not a hint")
		}
		if hints.Is(errHinted, errOther) {
			t.Error("Is(hinted, other) should be false")
		}
	})
}
