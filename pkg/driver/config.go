package driver

// Config is the static daemon configuration resolved from CLI flags.
type Config struct {
	// DataDir holds the state database.
	DataDir string
	// DriverConfig is the watched runtime configuration file.
	DriverConfig string
	// PortPath overrides the I/O port device, mainly for testing.
	PortPath string
	// UinputPath overrides the uinput device node.
	UinputPath string
	// Force skips the DMI machine check.
	Force bool
}
