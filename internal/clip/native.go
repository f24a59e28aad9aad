//go:build !windows

package clip

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/clipboard"

	"go.klb.dev/clipdeck/internal/entry"
)

type nativeSource struct {
	watchCh chan struct{}
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	lastText []byte
	lastImg  []byte
}

// New returns the system clipboard source, or a headless one if the display
// environment is unavailable. clipboard.Init is called here rather than in
// init() so that CLI sub-commands that never touch the clipboard don't
// trigger the warning.
func New(interval time.Duration) Source {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return Headless()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &nativeSource{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.lastText = clipboard.Read(clipboard.FmtText)
	s.lastImg = clipboard.Read(clipboard.FmtImage)
	go s.poll(interval)
	return s
}

func (s *nativeSource) Name() string { return "system clipboard (poll)" }

func (s *nativeSource) poll(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			img := clipboard.Read(clipboard.FmtImage)
			s.mu.Lock()
			changed := !bytes.Equal(text, s.lastText) || !bytes.Equal(img, s.lastImg)
			s.lastText, s.lastImg = text, img
			s.mu.Unlock()
			if changed {
				notify(s.watchCh)
			}
		}
	}
}

func (s *nativeSource) Read() ([]entry.Raw, error) {
	var raws []entry.Raw
	if text := clipboard.Read(clipboard.FmtText); text != nil {
		raws = append(raws, entry.Raw{Format: entry.FormatText, Data: text})
	}
	if img := clipboard.Read(clipboard.FmtImage); img != nil {
		raws = append(raws, entry.Raw{Format: entry.FormatPNG, Data: img})
	}
	return raws, nil
}

// Write puts one payload on the clipboard and records what the clipboard
// then holds, so the poller does not report our own write as a change.
func (s *nativeSource) Write(raws []entry.Raw) error {
	p, err := writable(raws)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.image {
		clipboard.Write(clipboard.FmtImage, p.data)
	} else {
		clipboard.Write(clipboard.FmtText, p.data)
	}
	s.lastText = clipboard.Read(clipboard.FmtText)
	s.lastImg = clipboard.Read(clipboard.FmtImage)
	return nil
}

func (s *nativeSource) Watch() <-chan struct{} { return s.watchCh }
func (s *nativeSource) Close()                 { s.once.Do(func() { close(s.done) }) }
