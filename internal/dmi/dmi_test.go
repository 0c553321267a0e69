package dmi

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAttrs(t *testing.T, dir string, attrs map[string]string) {
	t.Helper()
	for name, value := range attrs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		ident string
		ok    bool
	}{
		{
			name: "Y550",
			attrs: map[string]string{
				"sys_vendor":      "LENOVO",
				"product_name":    "20017",
				"product_version": "Lenovo IdeaPad Y550",
			},
			ident: "Lenovo IdeaPad Y550",
			ok:    true,
		},
		{
			name: "Y550P",
			attrs: map[string]string{
				"sys_vendor":      "LENOVO",
				"product_name":    "20035",
				"product_version": "Lenovo IdeaPad Y550P",
			},
			ident: "Lenovo IdeaPad Y550P",
			ok:    true,
		},
		{
			name: "other vendor",
			attrs: map[string]string{
				"sys_vendor":      "OTHER",
				"product_name":    "20017",
				"product_version": "Lenovo IdeaPad Y550",
			},
			ok: false,
		},
		{
			name:  "missing attributes",
			attrs: map[string]string{},
			ok:    false,
		},
	}

	for _, test := range tests {
		dir := t.TempDir()
		writeAttrs(t, dir, test.attrs)
		c := NewCheckerAt(dir)
		ident, ok := c.Match()
		if ok != test.ok {
			t.Errorf("%s: match = %v, expected %v", test.name, ok, test.ok)
			continue
		}
		if ok && ident != test.ident {
			t.Errorf("%s: ident %q != %q", test.name, ident, test.ident)
		}
	}
}
