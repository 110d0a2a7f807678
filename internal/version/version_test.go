package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(v) {
		t.Errorf("Get() = %q, want a semantic version", v)
	}
}

func TestLong(t *testing.T) {
	l := Long()
	if !strings.HasPrefix(l, Get()) || !strings.Contains(l, "go") {
		t.Errorf("Long() = %q", l)
	}
}
