package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdeck/internal/decode"
	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/imaging"
)

var formatAliases = map[string]entry.Format{
	"text":    entry.FormatText,
	"bitmap":  entry.FormatBitmap,
	"dib":     entry.FormatDIB,
	"unicode": entry.FormatUnicodeText,
	"hdrop":   entry.FormatHDrop,
	"dibv5":   entry.FormatDIBV5,
	"png":     entry.FormatPNG,
}

// parseFormat accepts a numeric clipboard format id or one of the aliases.
func parseFormat(s string) (entry.Format, error) {
	if f, ok := formatAliases[strings.ToLower(s)]; ok {
		return f, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown format %q", s)
	}
	return entry.Format(n), nil
}

func newDecodeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode a raw clipboard payload offline",
		Long: `Decodes one raw clipboard payload with the same decoders the daemon uses.
Images are written as PNG, text and file lists as text.

  clipdeck decode --format dibv5 -o shot.png dump.bin`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(v)
			f, err := parseFormat(v.GetString("format"))
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			item, err := decode.Default(imaging.PNGEncoder{}).Decode(f, data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", f, err)
			}
			switch val := item.Value.(type) {
			case entry.Image:
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s, %gx%g dpi\n", val, val.PixelFormat, val.DpiX, val.DpiY)
				return writeOutput(cmd.OutOrStdout(), v.GetString("output"), "image/png", val.Encoded)
			case entry.Text:
				return writeOutput(cmd.OutOrStdout(), v.GetString("output"), "text/plain", []byte(val.Text+"\n"))
			case entry.FileList:
				return writeOutput(cmd.OutOrStdout(), v.GetString("output"), "text/plain", []byte(strings.Join(val.Paths, "\n")+"\n"))
			default:
				return fmt.Errorf("decode %s: no decoded value", f)
			}
		},
	}

	f := cmd.Flags()
	f.String("format", "dibv5", "clipboard format: id or text|unicode|bitmap|dib|dibv5|hdrop|png")
	f.StringP("output", "o", "", "write to this file instead of stdout")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}
