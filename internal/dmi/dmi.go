// Package dmi checks the machine identity through the kernel's DMI sysfs
// attributes. The slidebar register protocol pokes fixed port addresses, so
// the daemon refuses to start on unknown hardware unless forced.
package dmi

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultSysPath = "/sys/class/dmi/id"

type match struct {
	ident   string
	vendor  string
	product string
	version string
}

var knownMachines = []match{
	{
		ident:   "Lenovo IdeaPad Y550",
		vendor:  "LENOVO",
		product: "20017",
		version: "Lenovo IdeaPad Y550",
	},
	{
		ident:   "Lenovo IdeaPad Y550P",
		vendor:  "LENOVO",
		product: "20035",
		version: "Lenovo IdeaPad Y550P",
	},
}

// Checker matches the running machine against the supported models.
type Checker struct {
	sysPath string
}

func NewChecker() *Checker {
	return &Checker{sysPath: defaultSysPath}
}

// NewCheckerAt is used by tests to point at a fake sysfs tree.
func NewCheckerAt(sysPath string) *Checker {
	return &Checker{sysPath: sysPath}
}

func (c *Checker) attr(name string) string {
	b, err := os.ReadFile(filepath.Join(c.sysPath, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Match returns the model identifier of a supported machine, or false when
// the machine is unknown.
func (c *Checker) Match() (string, bool) {
	vendor := c.attr("sys_vendor")
	product := c.attr("product_name")
	version := c.attr("product_version")
	for _, m := range knownMachines {
		if vendor == m.vendor && product == m.product && version == m.version {
			return m.ident, true
		}
	}
	return "", false
}
