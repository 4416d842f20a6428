package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	TypeImage = "image"
	TypeVideo = "video"

	// URLPrefix is where the library files are served from
	URLPrefix = "/media/"

	maxSnapshotSize = 16 << 20
)

var (
	ErrNoImage     = errors.New("no camera image available")
	ErrUnsupported = errors.New("unsupported image type")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Image is a single encoded camera frame
type Image struct {
	ContentType string
	Data        []byte
}

// Source produces camera frames on demand
type Source interface {
	Snapshot(ctx context.Context) (Image, error)
}

// ContentType maps a compressed image format name to its MIME type
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg", "image/jpeg":
		return "image/jpeg"
	case "png", "image/png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Item is a library entry as listed to the browser
type Item struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Library stores pictures taken by the operator in a directory
type Library struct {
	dir string
	now func() time.Time

	mu sync.Mutex

	logger *slog.Logger
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(l *Library) {
	return func(l *Library) {
		l.logger = logger
	}
}

// NewLibrary creates a library over dir, creating the directory if needed
func NewLibrary(dir string, options ...func(l *Library)) (*Library, error) {
	if dir == "" {
		return nil, errors.New("media directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}

	l := Library{
		dir:    dir,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&l)
	}
	return &l, nil
}

// List returns the library contents, newest first. Still images are
// recognised by extension, everything else is listed as video.
func (l *Library) List() ([]Item, error) {
	l.mu.Lock()
	entries, err := os.ReadDir(l.dir)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	slices.Reverse(names)

	items := make([]Item, len(names))
	for i, name := range names {
		items[i] = Item{Type: itemType(name), URL: URLPrefix + name}
	}
	return items, nil
}

// Save stores img under a millisecond timestamp name. An existing file is
// never overwritten.
func (l *Library) Save(img Image) (Item, error) {
	ext, ok := imageExtensions[img.ContentType]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnsupported, img.ContentType)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.now().UnixMilli()
	for {
		name := fmt.Sprintf("%05d%s", id, ext)
		f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			id++
			continue
		}
		if err != nil {
			return Item{}, fmt.Errorf("creating %s: %w", name, err)
		}

		_, err = f.Write(img.Data)
		err = errors.Join(err, f.Close())
		if err != nil {
			_ = os.Remove(f.Name())
			return Item{}, fmt.Errorf("writing %s: %w", name, err)
		}

		l.logger.Info("picture saved", slog.String("name", name), slog.String("size", humanize.Bytes(uint64(len(img.Data)))))
		return Item{Type: TypeImage, URL: URLPrefix + name}, nil
	}
}

// Handler serves the library files under URLPrefix
func (l *Library) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(l.dir)))
}

func itemType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return TypeImage
	default:
		return TypeVideo
	}
}

// HTTPSource fetches frames from a snapshot URL, such as a video server
// attached to the camera
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Snapshot(ctx context.Context) (Image, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Image{}, fmt.Errorf("creating snapshot request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("requesting snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("requesting snapshot: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return Image{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrNoImage
	}

	contentType := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		contentType = mt
	}
	return Image{ContentType: contentType, Data: data}, nil
}
