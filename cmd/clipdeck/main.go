// clipdeck: clipboard history daemon and control CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipdeck/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipdeck",
		Short: "Clipboard history with pinning",
		Long: `clipdeck watches the system clipboard and keeps an ordered history of
everything copied. Pinned entries stay at the top and survive restarts.

Run "clipdeck run" to start the daemon. The list/paste/pin/delete/export/
status/watch sub-commands talk to it over a local socket.

Config file search order (first found wins):
  /etc/clipdeck/clipdeck.toml
  $HOME/.config/clipdeck/clipdeck.toml
  path supplied via --config

All flags can be set via CLIPDECK_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newListCmd(),
		newActionCmd("paste", "Paste an entry back to the clipboard", "paste"),
		newActionCmd("pin", "Pin or unpin an entry", "pin"),
		newActionCmd("delete", "Delete an entry", "delete"),
		newExportCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newDecodeCmd(),
		newLinksCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipdeck %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	logging.Setup(logging.ParseFormat(formatStr), logging.ParseLevel(levelStr, logging.DefaultLevel(interactive)))
}
