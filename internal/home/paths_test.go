package home

import (
	"strings"
	"testing"
)

func TestLayout(t *testing.T) {
	base := Dir()
	if !strings.HasSuffix(base, "/.imsg") {
		t.Errorf("Dir() = %q, want ~/.imsg", base)
	}
	for name, p := range map[string]string{
		"config":  ConfigPath(),
		"journal": JournalPath(),
		"log":     LogPath(),
	} {
		if !strings.HasPrefix(p, base) {
			t.Errorf("%s path %q not under %q", name, p, base)
		}
	}
}
