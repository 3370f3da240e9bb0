package utils

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestDebugfFollowsLevel(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	defer InitLogging("info")

	InitLogging("info")
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	InitLogging("DEBUG")
	if !DebugEnabled() {
		t.Fatalf("expected debug enabled")
	}
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "DEBUG shown 2") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
