// Package links finds and classifies links inside captured text.
//
// Extraction is a pure scan. Validation consults a DomainValidator, which is
// untrusted: an error for one candidate never aborts evaluation of the others,
// it just means that candidate is not a valid link.
package links

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// Type is a set of link classification flags.
type Type uint8

const (
	NoType Type = 0
	HTTP   Type = 1 << (iota - 1)
	HTTPS
	ImageFile
	AudioFile
	VideoFile
	TextFile
)

// Has reports whether every flag in f is set in t.
func (t Type) Has(f Type) bool { return t&f == f }

func (t Type) String() string {
	if t == NoType {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		flag Type
		name string
	}{
		{HTTP, "http"},
		{HTTPS, "https"},
		{ImageFile, "image"},
		{AudioFile, "audio"},
		{VideoFile, "video"},
		{TextFile, "text"},
	} {
		if t.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// FileType is the coarse type of a file name, as reported by a FileTypeInterpreter.
type FileType int

const (
	FileUnknown FileType = iota
	FileImage
	FileAudio
	FileVideo
	FileText
	FileOther
)

// DomainValidator decides whether a host name is real. Implementations may
// block on the network and may fail.
type DomainValidator interface {
	IsValidDomain(ctx context.Context, domain string) (bool, error)
}

// FileTypeInterpreter classifies a file name.
type FileTypeInterpreter interface {
	FileType(name string) FileType
}

// ErrValidation wraps a domain validator failure for a single candidate.
var ErrValidation = errors.New("domain validation failed")

const (
	scheme    = `(?:[hH][tT][tT][pP][sS]?://)`
	label     = `[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?`
	domain    = `(?:` + label + `\.)+[A-Za-z]{2,}`
	pathChars = `[A-Za-z0-9\-._~%!$&'()*+,;=:@/]`
	linkExpr  = scheme + `?` + domain + `(?::[0-9]{1,5})?` + `(?:/` + pathChars + `*)?` + `(?:\?` + pathChars + `*)?`
)

var (
	scanRe  = regexp.MustCompile(linkExpr)
	exactRe = regexp.MustCompile(`^` + linkExpr + `$`)
	hostRe  = regexp.MustCompile(`^` + scheme + `?(` + domain + `)`)
)

// Extract returns every link-shaped token in text, in text order. Duplicates
// are kept; callers that care may deduplicate.
func Extract(text string) []string {
	return scanRe.FindAllString(text, -1)
}

// Domain returns the host portion of a link-shaped token, or "" if s is not one.
func Domain(s string) string {
	m := hostRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Parser classifies link candidates using its collaborators.
type Parser struct {
	Domains DomainValidator
	Files   FileTypeInterpreter
}

// NewParser returns a Parser backed by the given collaborators.
func NewParser(domains DomainValidator, files FileTypeInterpreter) *Parser {
	return &Parser{Domains: domains, Files: files}
}

// IsValidLink reports whether s is exactly one link token and its domain validates.
// Validator failures are reported as false.
func (p *Parser) IsValidLink(ctx context.Context, s string) bool {
	ok, err := p.validate(ctx, s)
	if err != nil {
		slog.Debug("link candidate rejected", "candidate", s, "err", err)
		return false
	}
	return ok
}

func (p *Parser) validate(ctx context.Context, s string) (bool, error) {
	if !exactRe.MatchString(s) {
		return false, nil
	}
	if p.Domains == nil {
		return true, nil
	}
	d := Domain(s)
	ok, err := p.Domains.IsValidDomain(ctx, d)
	if err != nil {
		return false, errors.Join(ErrValidation, err)
	}
	return ok, nil
}

// LinkType classifies s. Scheme flags are computed locally; file flags come
// from the interpreter applied to the trailing path segment.
func (p *Parser) LinkType(s string) Type {
	t := NoType
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		t |= HTTPS
	case strings.HasPrefix(lower, "http://"):
		t |= HTTP
	}

	name := trailingSegment(s)
	if name == "" || p.Files == nil {
		return t
	}
	switch p.Files.FileType(name) {
	case FileImage:
		t |= ImageFile
	case FileAudio:
		t |= AudioFile
	case FileVideo:
		t |= VideoFile
	case FileText:
		t |= TextFile
	}
	return t
}

// trailingSegment returns the last path segment of a link, without query.
// A link with no path has no trailing segment.
func trailingSegment(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return ""
	}
	seg := path.Base(s[slash:])
	if seg == "/" || seg == "." {
		return ""
	}
	return seg
}

// HasLink reports whether any candidate in text validates.
func (p *Parser) HasLink(ctx context.Context, text string) bool {
	return p.any(ctx, Extract(text), func(string) bool { return true })
}

// HasLinkOfType reports whether some valid candidate in text carries every flag in t.
func (p *Parser) HasLinkOfType(ctx context.Context, text string, t Type) bool {
	return p.any(ctx, Extract(text), func(c string) bool { return p.LinkType(c).Has(t) })
}

// ValidLinks returns the candidates in text that validate, in text order.
func (p *Parser) ValidLinks(ctx context.Context, text string) []string {
	cands := Extract(text)
	valid := make([]bool, len(cands))
	var wg sync.WaitGroup
	for i, c := range cands {
		wg.Add(1)
		go func() {
			defer wg.Done()
			valid[i] = p.IsValidLink(ctx, c)
		}()
	}
	wg.Wait()

	out := make([]string, 0, len(cands))
	for i, c := range cands {
		if valid[i] {
			out = append(out, c)
		}
	}
	return out
}

// any validates candidates concurrently and ORs the results of match over
// the valid ones. Cheap local checks run before the validator is consulted.
func (p *Parser) any(ctx context.Context, cands []string, match func(string) bool) bool {
	if len(cands) == 0 {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found atomic.Bool
	var wg sync.WaitGroup
	for _, c := range cands {
		if !match(c) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.IsValidLink(ctx, c) {
				found.Store(true)
				cancel()
			}
		}()
	}
	wg.Wait()
	return found.Load()
}
