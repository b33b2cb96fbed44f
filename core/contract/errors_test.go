package contract

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	locked := fmt.Errorf("%w: slot locked", ErrRejected)
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"range", fmt.Errorf("%w: 3 >= 2", ErrCallIndexOutOfRange), KindRange},
		{"decode", fmt.Errorf("%w: truncated", ErrDecode), KindDecode},
		{"unsupported", fmt.Errorf("%w: 0xff", ErrUnsupportedFunction), KindUnsupportedFunction},
		{"rejected", fmt.Errorf("exec: %w", locked), KindRejected},
		{"storage", fmt.Errorf("%w: disk full", ErrStorage), KindInternal},
		{"phase", ErrPhase, KindInternal},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestEntrypointsValid(t *testing.T) {
	if (Entrypoints{}).Valid() {
		t.Fatalf("empty entrypoints must not be valid")
	}
}
