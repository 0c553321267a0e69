// Package drivercli is the command line interface of the slidebar daemon.
package drivercli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/trotne/ideapad-slidebar/internal/hwio"
	"github.com/trotne/ideapad-slidebar/internal/kbdsvc/serio"
	"github.com/trotne/ideapad-slidebar/pkg/driver"
	"github.com/trotne/ideapad-slidebar/slidebar"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "slidebar"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

func NewRootCmd(configDir string) *cobra.Command {
	cfg := driver.Config{
		DataDir:      filepath.Join(configDir, "data"),
		DriverConfig: filepath.Join(configDir, "slidebar.yml"),
		PortPath:     hwio.DefaultPortPath,
	}
	rootCmd := &cobra.Command{
		Use:   "slidebard",
		Short: "IdeaPad slidebar driver",
		Long:  `slidebard exposes the IdeaPad slidebar as an input device and manages its LED mode.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.DriverConfig, "config", cfg.DriverConfig, "driver config file")
	rootCmd.PersistentFlags().StringVar(&cfg.PortPath, "port-path", cfg.PortPath, "I/O port device")
	rootCmd.PersistentFlags().BoolVar(&cfg.Force, "force", false, "skip the machine identity check")
	rootCmd.AddCommand(NewRun(&cfg))
	rootCmd.AddCommand(NewMode(&cfg))
	rootCmd.AddCommand(NewListDevices())
	return rootCmd
}

func NewRun(cfg *driver.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the slidebar driver daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := driver.New(*cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			return d.Run(cmd.Context())
		},
	}
}

// NewMode groups the mode attribute commands. They talk to the hardware
// directly and do not need a running daemon.
func NewMode(cfg *driver.Config) *cobra.Command {
	modeCmd := &cobra.Command{
		Use:   "mode",
		Short: "Read or write the slidebar LED mode byte",
	}
	modeCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current mode as a hex byte",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := openChannel(cfg)
			if err != nil {
				return err
			}
			defer ch.Close()
			v, err := ch.ReadMode()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), slidebar.FormatMode(v))
			return nil
		},
	})
	modeCmd.AddCommand(&cobra.Command{
		Use:   "set <hex>",
		Short: "Write a mode hex byte",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := slidebar.ParseMode(args[0])
			if err != nil {
				return err
			}
			ch, err := openChannel(cfg)
			if err != nil {
				return err
			}
			defer ch.Close()
			return ch.WriteMode(v)
		},
	})
	return modeCmd
}

func openChannel(cfg *driver.Config) (*hwio.Channel, error) {
	bus, err := hwio.OpenPortBus(cfg.PortPath)
	if err != nil {
		return nil, err
	}
	return hwio.NewChannel(bus), nil
}

func NewListDevices() *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List raw keyboard ports",
		Long:  `List serio_raw keyboard ports the driver can tap. Load the serio_raw kernel module if none appear.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := serio.Enumerate()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
