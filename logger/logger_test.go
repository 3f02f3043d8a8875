package logger_test

import (
	"strings"
	"testing"

	"github.com/beevik/go2a03/logger"
)

func expectOutput(t *testing.T, sb *strings.Builder, exp string) {
	t.Helper()
	if got := sb.String(); got != exp {
		t.Errorf("log output incorrect.\nexp: %q\ngot: %q", exp, got)
	}
	sb.Reset()
}

func TestLogger(t *testing.T) {
	l := logger.New(0)
	var sb strings.Builder

	if l.Write(&sb) {
		t.Error("empty log reported entries")
	}
	expectOutput(t, &sb, "")

	l.Log("test", "this is a test")
	l.Write(&sb)
	expectOutput(t, &sb, "test: this is a test\n")

	l.Logf("test2", "value $%02X", 0x3f)
	l.Write(&sb)
	expectOutput(t, &sb, "test: this is a test\ntest2: value $3F\n")

	// Asking for too many entries is okay.
	l.Tail(&sb, 100)
	expectOutput(t, &sb, "test: this is a test\ntest2: value $3F\n")

	l.Tail(&sb, 1)
	expectOutput(t, &sb, "test2: value $3F\n")

	l.Tail(&sb, 0)
	expectOutput(t, &sb, "")

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("log not cleared, %d entries remain", l.Len())
	}
}

func TestLoggerRepeat(t *testing.T) {
	l := logger.New(0)
	var sb strings.Builder

	l.Log("cpu", "trap")
	l.Log("cpu", "trap")
	l.Log("cpu", "trap\n")
	l.Log("cpu", "other")
	l.Write(&sb)
	expectOutput(t, &sb, "cpu: trap (repeat x3)\ncpu: other\n")
}

func TestLoggerMaxEntries(t *testing.T) {
	l := logger.New(3)
	for i := 0; i < 5; i++ {
		l.Logf("n", "%d", i)
	}

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("entry count incorrect. exp: 3, got: %d", len(entries))
	}
	if entries[0].Detail != "2" || entries[2].Detail != "4" {
		t.Errorf("oldest entries not discarded: %v", entries)
	}
}

func TestLoggerEcho(t *testing.T) {
	l := logger.New(0)
	var sb strings.Builder

	l.SetEcho(&sb)
	l.Log("host", "loaded")
	l.Log("host", "loaded")
	expectOutput(t, &sb, "host: loaded\nhost: loaded (repeat x2)\n")

	l.SetEcho(nil)
	l.Log("host", "quiet")
	expectOutput(t, &sb, "")
}
