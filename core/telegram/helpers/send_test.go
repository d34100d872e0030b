package helpers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPhotoFile(t *testing.T) {
	if f := PhotoFile("https://example.com/plan.png"); f.FileURL != "https://example.com/plan.png" || f.FileID != "" {
		t.Fatalf("url ref resolved to %+v", f)
	}
	if f := PhotoFile("AgACAgQAAxkBAAIB"); f.FileID != "AgACAgQAAxkBAAIB" || f.FileURL != "" || f.FileLocal != "" {
		t.Fatalf("file id ref resolved to %+v", f)
	}

	local := filepath.Join(t.TempDir(), "banner.jpg")
	if err := os.WriteFile(local, []byte("jpg"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := PhotoFile(local); f.FileLocal != local {
		t.Fatalf("local ref resolved to %+v", f)
	}
}
