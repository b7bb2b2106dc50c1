package index

import "testing"

func TestFirstSchemeSkipsBlankAndHiddenEntries(t *testing.T) {
	output := `Information about project "Demo":
    Targets:
        Demo

    Build Configurations:
        Debug
        Release

    Schemes:
        .HiddenScheme
        Demo
        DemoTests
`
	got := firstScheme(output)
	if got != "Demo" {
		t.Fatalf("expected first non-hidden scheme %q, got %q", "Demo", got)
	}
}

func TestFirstSchemeReturnsEmptyWhenNoSchemesHeader(t *testing.T) {
	output := `Information about project "Demo":
    Targets:
        Demo
`
	if got := firstScheme(output); got != "" {
		t.Fatalf("expected empty scheme, got %q", got)
	}
}

func TestFirstSchemeReturnsEmptyWhenOnlyHiddenEntries(t *testing.T) {
	output := `    Schemes:
        .Hidden
`
	if got := firstScheme(output); got != "" {
		t.Fatalf("expected empty scheme when only hidden entries exist, got %q", got)
	}
}
