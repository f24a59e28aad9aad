package control

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/history"
)

const previewLen = 80

// EntryInfo is the wire view of a history entry.
type EntryInfo struct {
	ID      string
	Created time.Time
	Pinned  bool
	Kind    string
	Formats []string
	Preview string
	Links   []string
}

// Info summarises e.
func Info(e *entry.Entry) EntryInfo {
	info := EntryInfo{
		ID:      e.ID(),
		Created: e.Created(),
		Pinned:  e.Pinned(),
		Kind:    entry.KindUnknown.String(),
		Preview: e.Preview(previewLen),
	}
	for _, f := range e.Formats() {
		info.Formats = append(info.Formats, f.String())
	}
	for _, it := range e.Items() {
		if it.Kind() != entry.KindUnknown {
			info.Kind = it.Kind().String()
			break
		}
	}
	if t, ok := e.Text(); ok {
		info.Links = t.Links
	}
	return info
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (i EntryInfo) asMap() map[string]any {
	return map[string]any{
		"id":      i.ID,
		"created": i.Created.UTC().Format(time.RFC3339Nano),
		"pinned":  i.Pinned,
		"kind":    i.Kind,
		"formats": anySlice(i.Formats),
		"preview": i.Preview,
		"links":   anySlice(i.Links),
	}
}

func entryFromStruct(s *structpb.Struct) EntryInfo {
	f := s.GetFields()
	info := EntryInfo{
		ID:      f["id"].GetStringValue(),
		Pinned:  f["pinned"].GetBoolValue(),
		Kind:    f["kind"].GetStringValue(),
		Preview: f["preview"].GetStringValue(),
		Formats: stringList(f["formats"]),
		Links:   stringList(f["links"]),
	}
	info.Created, _ = time.Parse(time.RFC3339Nano, f["created"].GetStringValue())
	return info
}

func stringList(v *structpb.Value) []string {
	var out []string
	for _, x := range v.GetListValue().GetValues() {
		out = append(out, x.GetStringValue())
	}
	return out
}

// StatusInfo describes the running daemon.
type StatusInfo struct {
	Version   string
	Source    string
	Capture   string
	Entries   int
	Pinned    int
	Persisted int
	Uptime    time.Duration
}

func (s StatusInfo) asMap() map[string]any {
	return map[string]any{
		"version":   s.Version,
		"source":    s.Source,
		"capture":   s.Capture,
		"entries":   s.Entries,
		"pinned":    s.Pinned,
		"persisted": s.Persisted,
		"uptime":    s.Uptime.Round(time.Second).String(),
	}
}

func statusFromStruct(s *structpb.Struct) StatusInfo {
	f := s.GetFields()
	info := StatusInfo{
		Version:   f["version"].GetStringValue(),
		Source:    f["source"].GetStringValue(),
		Capture:   f["capture"].GetStringValue(),
		Entries:   int(f["entries"].GetNumberValue()),
		Pinned:    int(f["pinned"].GetNumberValue()),
		Persisted: int(f["persisted"].GetNumberValue()),
	}
	info.Uptime, _ = time.ParseDuration(f["uptime"].GetStringValue())
	return info
}

// EventInfo is the wire view of a history event.
type EventInfo struct {
	Kind   string
	Entry  *EntryInfo
	Empty  bool
	Pane   string
	Action string
}

func eventStruct(ev history.Event) (*structpb.Struct, error) {
	m := map[string]any{
		"kind":  ev.Kind.String(),
		"empty": ev.Empty,
	}
	if ev.Entry != nil {
		m["entry"] = Info(ev.Entry).asMap()
	}
	if ev.Kind == history.PaneSwitched {
		m["pane"] = ev.Pane.String()
	}
	if ev.Action != "" {
		m["action"] = ev.Action
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return s, nil
}

func eventFromStruct(s *structpb.Struct) EventInfo {
	f := s.GetFields()
	ev := EventInfo{
		Kind:   f["kind"].GetStringValue(),
		Empty:  f["empty"].GetBoolValue(),
		Pane:   f["pane"].GetStringValue(),
		Action: f["action"].GetStringValue(),
	}
	if es := f["entry"].GetStructValue(); es != nil {
		info := entryFromStruct(es)
		ev.Entry = &info
	}
	return ev
}
