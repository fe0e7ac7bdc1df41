package frontend

import (
	"io"
	"testing"
)

func TestFSServesDashboard(t *testing.T) {
	for _, name := range []string{"/index.html", "/app.js", "/style.css"} {
		f, err := FS().Open(name)
		if err != nil {
			t.Errorf("Open(%s) error: %v", name, err)
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil || len(data) == 0 {
			t.Errorf("%s: empty or unreadable (%v)", name, err)
		}
	}
}
