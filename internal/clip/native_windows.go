//go:build windows

package clip

// #cgo LDFLAGS: -luser32 -lkernel32
//
// #include <windows.h>
// #include <stdlib.h>
// #include <string.h>
//
// #define CLIPDECK_CHANGED (WM_USER + 1)
//
// static LRESULT CALLBACK clipdeck_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, CLIPDECK_CHANGED, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND clipdeck_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = clipdeck_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "ClipdeckClipboard";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "ClipdeckClipboard", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     if (hwnd != NULL && !AddClipboardFormatListener(hwnd)) {
//         DestroyWindow(hwnd);
//         return NULL;
//     }
//     return hwnd;
// }
//
// static int clipdeck_pump_messages(HWND hwnd) {
//     MSG msg;
//     int changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == CLIPDECK_CHANGED) { changed = 1; }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
//     return changed;
// }
//
// static void clipdeck_destroy_window(HWND hwnd) {
//     RemoveClipboardFormatListener(hwnd);
//     DestroyWindow(hwnd);
// }
//
// // Copies the global memory block behind fmt. Returns NULL for formats
// // the clipboard cannot render. The clipboard must be open.
// static void* clipdeck_get(UINT fmt, SIZE_T* n) {
//     HANDLE h = GetClipboardData(fmt);
//     if (h == NULL) { return NULL; }
//     SIZE_T size = GlobalSize(h);
//     void* src = GlobalLock(h);
//     if (src == NULL) { return NULL; }
//     void* out = malloc(size > 0 ? size : 1);
//     if (out != NULL) { memcpy(out, src, size); }
//     GlobalUnlock(h);
//     *n = size;
//     return out;
// }
//
// // Places a copy of data on the clipboard as fmt. The clipboard must be
// // open and emptied by the caller.
// static int clipdeck_set(UINT fmt, const void* data, SIZE_T n) {
//     HGLOBAL h = GlobalAlloc(GMEM_MOVEABLE, n > 0 ? n : 1);
//     if (h == NULL) { return 0; }
//     void* dst = GlobalLock(h);
//     if (dst == NULL) { GlobalFree(h); return 0; }
//     memcpy(dst, data, n);
//     GlobalUnlock(h);
//     if (SetClipboardData(fmt, h) == NULL) { GlobalFree(h); return 0; }
//     return 1;
// }
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"go.klb.dev/clipdeck/internal/entry"
)

const (
	pumpInterval  = 50 * time.Millisecond
	openAttempts  = 10
	openRetryWait = 20 * time.Millisecond
)

var errClipboardBusy = errors.New("clipboard held by another process")

type windowsSource struct {
	hwnd    C.HWND
	pngID   uint32
	watchCh chan struct{}
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	ownSeq uint32
}

// New returns the Windows clipboard source. A message-only window registered
// with AddClipboardFormatListener signals changes; reads enumerate every
// native format on the clipboard. interval is unused.
func New(interval time.Duration) Source {
	_ = interval
	name := C.CString("PNG")
	pngID := uint32(C.RegisterClipboardFormatA(name))
	C.free(unsafe.Pointer(name))

	s := &windowsSource{
		pngID:   pngID,
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	ready := make(chan C.HWND)
	go s.pump(ready)
	s.hwnd = <-ready
	if s.hwnd == nil {
		slog.Warn("clipboard listener unavailable, running headless")
		return Headless()
	}
	return s
}

func (s *windowsSource) Name() string { return "Windows clipboard" }

// pump owns the listener window. Window messages are delivered to the
// thread that created the window, so the goroutine stays on one OS thread.
func (s *windowsSource) pump(ready chan<- C.HWND) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd := C.clipdeck_create_listener_window()
	ready <- hwnd
	if hwnd == nil {
		return
	}
	defer C.clipdeck_destroy_window(hwnd)

	t := time.NewTicker(pumpInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if C.clipdeck_pump_messages(hwnd) == 0 {
				continue
			}
			seq := uint32(C.GetClipboardSequenceNumber())
			s.mu.Lock()
			own := seq == s.ownSeq
			s.mu.Unlock()
			if !own {
				notify(s.watchCh)
			}
		}
	}
}

// open takes the clipboard, retrying while another process holds it.
func (s *windowsSource) open() error {
	for i := 0; i < openAttempts; i++ {
		if C.OpenClipboard(s.hwnd) != 0 {
			return nil
		}
		time.Sleep(openRetryWait)
	}
	return errClipboardBusy
}

// Read returns one payload per memory-backed native format, in the order
// the clipboard owner offered them.
func (s *windowsSource) Read() ([]entry.Raw, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	defer C.CloseClipboard()

	var raws []entry.Raw
	for f := C.EnumClipboardFormats(0); f != 0; f = C.EnumClipboardFormats(f) {
		id := uint32(f)
		if !memoryBacked(id) {
			continue
		}
		var n C.SIZE_T
		p := C.clipdeck_get(f, &n)
		if p == nil {
			slog.Debug("clipboard format not rendered", "format", entry.Format(id))
			continue
		}
		data := C.GoBytes(p, C.int(n))
		C.free(p)
		if r, ok := fromNative(id, data, s.pngID); ok {
			raws = append(raws, r)
		}
	}
	return raws, nil
}

// Write replaces the clipboard with every payload that maps to a native
// format. The resulting change is not reported on Watch.
func (s *windowsSource) Write(raws []entry.Raw) error {
	items, err := toNative(raws, s.pngID)
	if err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}
	defer C.CloseClipboard()

	s.mu.Lock()
	defer s.mu.Unlock()
	if C.EmptyClipboard() == 0 {
		return fmt.Errorf("empty clipboard: error %d", uint32(C.GetLastError()))
	}
	written := 0
	for _, it := range items {
		var p unsafe.Pointer
		if len(it.data) > 0 {
			p = C.CBytes(it.data)
		}
		ok := C.clipdeck_set(C.UINT(it.id), p, C.SIZE_T(len(it.data)))
		if p != nil {
			C.free(p)
		}
		if ok == 0 {
			slog.Warn("clipboard format not written", "format", entry.Format(it.id))
			continue
		}
		written++
	}
	s.ownSeq = uint32(C.GetClipboardSequenceNumber())
	if written == 0 {
		return ErrNothingWritable
	}
	return nil
}

func (s *windowsSource) Watch() <-chan struct{} { return s.watchCh }
func (s *windowsSource) Close()                 { s.once.Do(func() { close(s.done) }) }
