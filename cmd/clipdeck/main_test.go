package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipdeck/internal/control"
	"go.klb.dev/clipdeck/internal/entry"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "clipdeck "+Version+"\n", out)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]entry.Format{
		"dibv5":  entry.FormatDIBV5,
		"HDROP":  entry.FormatHDrop,
		"13":     entry.FormatUnicodeText,
		"0xC100": entry.FormatPNG,
	} {
		got, err := parseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseFormat("jpeg")
	assert.Error(t, err)
}

func TestDecodeText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	out, err := execute(t, "", "decode", "--format", "text", path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestDecodeRejectsMalformedBitmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))

	_, err := execute(t, "", "decode", "--format", "dibv5", path)
	assert.Error(t, err)
}

func TestLinksOffline(t *testing.T) {
	out, err := execute(t, "see https://example.com/cat.png and example.org/notes.txt or nothing", "links", "--offline")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^LINK\s+VALID\s+TYPE$`, lines[0])
	assert.Regexp(t, `^https://example\.com/cat\.png\s+true\s+https\|image$`, lines[1])
	assert.Regexp(t, `^example\.org/notes\.txt\s+true\s+text$`, lines[2])
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, nil)
	assert.Equal(t, "History is empty.\n", buf.String())

	buf.Reset()
	printEntries(&buf, []control.EntryInfo{{
		ID:      "01ABC",
		Pinned:  true,
		Kind:    "Text",
		Created: time.Now().Add(-150 * time.Second),
		Formats: []string{"CF_TEXT", "CF_UNICODETEXT"},
		Preview: "hello",
	}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^01ABC\s+\*\s+Text\s+2m\s+CF_TEXT,CF_UNICODETEXT\s+hello$`, lines[1])
}

func TestFmtAge(t *testing.T) {
	assert.Equal(t, "-", fmtAge(time.Time{}))
	assert.Equal(t, "3h", fmtAge(time.Now().Add(-3*time.Hour)))
	assert.Equal(t, "2d", fmtAge(time.Now().Add(-49*time.Hour)))
}

func TestClientCommandsNeedDaemon(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "none.sock")
	_, err := execute(t, "", "list", "--socket", sock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not running")
}
