package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 1")
	err := Wrap(ErrExternalTool, "transcribing", "basic-pitch", "tool crashed", base)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatal("marker lost")
	}
	if !errors.Is(err, base) {
		t.Fatal("cause lost")
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "", "", "boom", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("expected transient fallback")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{Wrap(ErrValidation, "submit", "", "bad asset", nil), "invalid_request"},
		{Wrap(ErrUnavailable, "submit", "", "no ffmpeg", nil), "capability_unavailable"},
		{Wrap(ErrExternalTool, "preprocessing", "ffmpeg", "crash", nil), "external_tool_failed"},
		{errors.New("plain"), "processing_failed"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
