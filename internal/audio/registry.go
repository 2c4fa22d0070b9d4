package audio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const DefaultURLPrefix = "/audio/"

var ErrHandleRevoked = errors.New("audio handle revoked or unknown")

// Handle is a playable reference to synthesized audio. It is only valid
// while the Registry that issued it keeps it alive.
type Handle struct {
	ID  string
	URL string
}

func (h Handle) Empty() bool { return h.ID == "" }

type entry struct {
	data      []byte
	createdAt time.Time
}

// Registry owns every live audio handle of the process.
type Registry struct {
	prefix     string
	maxHandles int
	log        *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func NewRegistry(prefix string, maxHandles int, log *slog.Logger) *Registry {
	if prefix == "" {
		prefix = DefaultURLPrefix
	}
	r := &Registry{
		prefix:     prefix,
		maxHandles: maxHandles,
		log:        log.With(slog.String("component", "audio-registry")),
		entries:    make(map[string]*entry),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// Acquire registers an encoded container and returns its handle. The
// oldest handle is revoked when the registry is full.
func (r *Registry) Acquire(wav []byte) Handle {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[id] = &entry{data: wav, createdAt: time.Now()}
	r.order = append(r.order, id)
	for r.maxHandles > 0 && len(r.order) > r.maxHandles {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
		r.log.Debug("evicted audio handle", slog.String("handle", oldest))
	}
	return Handle{ID: id, URL: r.prefix + id + ".wav"}
}

// Replace revokes previous before acquiring a handle for wav.
func (r *Registry) Replace(previous string, wav []byte) Handle {
	r.Release(previous)
	return r.Acquire(wav)
}

// Release revokes the handle identified by an ID or URL. Unknown handles
// are ignored.
func (r *Registry) Release(ref string) {
	id := r.idOf(ref)
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Open returns the bytes behind a live handle.
func (r *Registry) Open(ref string) ([]byte, error) {
	id := r.idOf(ref)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrHandleRevoked
	}
	return e.data, nil
}

// Prefix is the path under which handle URLs are served.
func (r *Registry) Prefix() string { return r.prefix }

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close revokes every handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
	r.order = nil
}

func (r *Registry) idOf(ref string) string {
	ref = strings.TrimPrefix(ref, r.prefix)
	return strings.TrimSuffix(ref, ".wav")
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-reader/audio")
	gauge, err := meter.Int64ObservableGauge("reader.audio.handles", metric.WithDescription("Live playable audio handles"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(r.Len()))
		return nil
	}, gauge)
	return err
}
