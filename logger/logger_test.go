package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSinkAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediajob.log")
	if err := Init(path, false, INFO); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("hidden detail")
	Infof("job %s started", "a1")
	Writer(WARN, "encoder: ").Write([]byte("first\r\nsecond\n"))
	Close()
	Close()

	// dropped once the file is closed
	Error("after close")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"[INFO]  ", "job a1 started", "encoder: first", "encoder: second"} {
		if !strings.Contains(got, want) {
			t.Errorf("log missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"hidden detail", "after close"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("log contains %q:\n%s", unwanted, got)
		}
	}
}

func TestInitNeedsDestination(t *testing.T) {
	if err := Init("", false, INFO); err == nil {
		t.Fatal("expected an error without file or console output")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{"debug": DEBUG, " WARN ": WARN, "warning": WARN, "error": ERROR, "info": INFO, "bogus": INFO}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
