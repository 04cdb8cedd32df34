package version

import "testing"

func TestUserAgent(t *testing.T) {
	oldV, oldSHA := Version, GitSHA
	defer func() { Version, GitSHA = oldV, oldSHA }()

	Version, GitSHA = "1.2.0", "abc123"
	if got, want := UserAgent(), "parking-report/1.2.0 (abc123)"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
	if got := Get(); got.Version != "1.2.0" || got.GitSHA != "abc123" {
		t.Errorf("Get() = %+v", got)
	}
}
