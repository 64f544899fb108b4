package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"go.uber.org/zap"

	"zm-image/store"
	"zm-image/validation"
)

var (
	ErrNotFound = errors.New("image not found")
	// ErrOutsideRoot rejects direct paths that climb out of the image root.
	ErrOutsideRoot = errors.New("path outside image root")
	// ErrPathNotAllowed rejects direct paths matching none of the allowed patterns.
	ErrPathNotAllowed = errors.New("path not allowed")
)

// Resolution is the single canonical location of the requested still.
type Resolution struct {
	Path   string
	Source validation.SourceReference

	// Rel is Path relative to the image root, slash separated. Direct paths only.
	Rel string

	// Set for event/frame requests only.
	Event    *store.Event
	Frame    *store.Frame
	EventDir string
}

// Video is the event's source video, empty when none is recorded.
func (r *Resolution) Video() string {
	if r.Event == nil || r.Event.DefaultVideo == "" {
		return ""
	}
	return filepath.Join(r.EventDir, r.Event.DefaultVideo)
}

// DownloadName is the suggested filename for event/frame requests.
func (r *Resolution) DownloadName() string {
	if r.Event == nil || r.Frame == nil {
		return ""
	}
	return fmt.Sprintf("%d_%d_%d.jpg", r.Event.MonitorID, r.Event.ID, r.Frame.FrameID)
}

type Options struct {
	// Root is where direct paths are resolved.
	Root string
	// EventsDir is the default storage area path.
	EventsDir string
	// Digits is the zero padding of frame ordinals in filenames.
	Digits int
	// AllowedPaths limits direct paths, relative to Root, to these patterns.
	// Empty allows everything below Root.
	AllowedPaths []string
}

type Resolver struct {
	store  store.Store
	opts   Options
	logger *zap.Logger
}

// New creates a resolver. st may be nil, in which case only direct paths resolve.
func New(st store.Store, opts Options, logger *zap.Logger) *Resolver {
	if opts.Digits < 1 {
		opts.Digits = 5
	}
	return &Resolver{store: st, opts: opts, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, ref validation.SourceReference) (*Resolution, error) {
	switch ref.Kind {
	case validation.SourceDirect:
		return r.direct(ref)
	case validation.SourceByFrame:
		return r.byFrame(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: no image path", ErrNotFound)
	}
}

func (r *Resolver) direct(ref validation.SourceReference) (*Resolution, error) {
	root := filepath.Clean(r.opts.Root)

	canonical := filepath.FromSlash(ref.Path)
	if !filepath.IsAbs(canonical) {
		canonical = filepath.Join(root, canonical)
	}
	canonical = filepath.Clean(canonical)

	rel, err := filepath.Rel(root, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, ref.Path)
	}

	if !r.allowed(filepath.ToSlash(rel)) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotAllowed, ref.Path)
	}

	return &Resolution{Path: canonical, Source: ref, Rel: filepath.ToSlash(rel)}, nil
}

func (r *Resolver) allowed(rel string) bool {
	if len(r.opts.AllowedPaths) == 0 {
		return true
	}

	// exact matches first, patterns only when none hit
	for _, pattern := range r.opts.AllowedPaths {
		if pattern == rel {
			return true
		}
	}

	for _, pattern := range r.opts.AllowedPaths {
		if strings.Contains(pattern, "*") && wildcard.Match(pattern, rel) {
			r.logger.Debug("path matched", zap.String("pattern", pattern), zap.String("path", rel))
			return true
		}
	}

	return false
}

func (r *Resolver) byFrame(ctx context.Context, ref validation.SourceReference) (*Resolution, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: no metadata store configured", ErrNotFound)
	}

	var (
		event *store.Event
		frame *store.Frame
		err   error
	)

	if ref.EventID == 0 {
		// without an event the frame id is the global frame key
		frame, err = r.store.Frame(ctx, ref.FrameID)
		if err != nil {
			return nil, notFound(err)
		}
		event, err = r.store.Event(ctx, frame.EventID)
		if err != nil {
			return nil, notFound(err)
		}
	} else {
		event, err = r.store.Event(ctx, ref.EventID)
		if err != nil {
			return nil, notFound(err)
		}
		frame, err = r.store.EventFrame(ctx, ref.EventID, ref.FrameID)
		if err != nil {
			return nil, notFound(err)
		}
	}

	dir, err := store.EventPath(ctx, r.store, event, r.opts.EventsDir, r.logger)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%0*d-%s.jpg", r.opts.Digits, frame.FrameID, ref.Variant)

	return &Resolution{
		Path:     filepath.Join(dir, name),
		Source:   ref,
		Event:    event,
		Frame:    frame,
		EventDir: dir,
	}, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
