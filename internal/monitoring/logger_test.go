package monitoring

import (
	"bytes"
	"io"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not reach the previous logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":      LevelOps,
		"quiet": LevelQuiet,
		"off":   LevelQuiet,
		"ops":   LevelOps,
		"diag":  LevelDiag,
		"trace": LevelTrace,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestNewStreams(t *testing.T) {
	var buf bytes.Buffer

	s := NewStreams(LevelDiag, &buf)
	if s.Ops == nil || s.Diag == nil {
		t.Error("ops and diag should be enabled at diag level")
	}
	if s.Trace != nil {
		t.Error("trace should be disabled at diag level")
	}

	if s := NewStreams(LevelQuiet, &buf); s.Ops != nil || s.Diag != nil || s.Trace != nil {
		t.Error("quiet should disable every stream")
	}
	if s := NewStreams(LevelTrace, nil); s.Ops != nil {
		t.Error("a nil writer disables every stream")
	}
}

func TestStreams_Apply(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreams(LevelOps, &buf)

	calls := 0
	set := func(ops, diag, trace io.Writer) {
		calls++
		if ops != &buf || diag != nil || trace != nil {
			t.Errorf("unexpected writers: %v %v %v", ops, diag, trace)
		}
	}
	s.Apply(set, set)
	if calls != 2 {
		t.Errorf("Apply called %d setters, want 2", calls)
	}
}
