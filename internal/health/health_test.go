package health

import (
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type fakeRowCounter struct{ err error }

func (f fakeRowCounter) CurrentMaxRowID() (int64, error) { return 0, f.err }

func TestCheck_Healthy(t *testing.T) {
	s := Check(fakePinger{}, fakeRowCounter{})
	if !s.Healthy() {
		t.Errorf("expected healthy status, got %+v", s)
	}
}

func TestCheck_StoreDown(t *testing.T) {
	s := Check(fakePinger{err: errors.New("disk full")}, fakeRowCounter{})
	if s.Healthy() {
		t.Error("expected unhealthy status when store ping fails")
	}
	if s.RadarOK != true {
		t.Error("expected radar probe to still succeed independently")
	}
}

func TestCheck_RadarDown(t *testing.T) {
	s := Check(fakePinger{}, fakeRowCounter{err: errors.New("index missing")})
	if s.Healthy() {
		t.Error("expected unhealthy status when radar probe fails")
	}
}

func TestCheck_Critical(t *testing.T) {
	s := Check(fakePinger{err: errors.New("disk full")}, fakeRowCounter{err: errors.New("index missing")})
	if !s.Critical() {
		t.Error("expected critical status when both probes fail")
	}
}

func TestCheck_NotCriticalWhenOneProbeOK(t *testing.T) {
	s := Check(fakePinger{err: errors.New("disk full")}, fakeRowCounter{})
	if s.Critical() {
		t.Error("expected not critical when only one probe fails")
	}
}

func TestStatus_String(t *testing.T) {
	s := Check(fakePinger{}, fakeRowCounter{})
	if s.String() != "healthy" {
		t.Errorf("String() = %q, want healthy", s.String())
	}
	degraded := Check(fakePinger{err: errors.New("boom")}, fakeRowCounter{})
	if degraded.String() == "healthy" {
		t.Error("expected degraded status string to differ from healthy")
	}
}
