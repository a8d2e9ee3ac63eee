package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/born-ml/tensortrain/internal/dense"
	"github.com/born-ml/tensortrain/internal/serialization"
	"github.com/born-ml/tensortrain/internal/tt"
)

// Extension is appended to every cache key.
const Extension = ".ttc"

// Stats counts lifecycle transitions.
type Stats struct {
	Hits   int64
	Misses int64
	Stores int64
}

// Options configures a Cache.
type Options struct {
	// Compression is applied to stored payloads.
	Compression serialization.Compression
	// Logger receives one entry per lifecycle transition. Nil discards.
	Logger logrus.FieldLogger
}

// Cache stores computed tensors by name.
type Cache struct {
	store  Store
	opts   Options
	logger logrus.FieldLogger
	group  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// New returns a Cache backed by store.
func New(store Store, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Cache{store: store, opts: opts, logger: logger}
}

// Key derives a stable cache key from a prefix and any number of parts.
// Parts are formatted with %v, so shapes, tolerances and paths all work.
func Key(prefix string, parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v\x00", p)
	}
	return prefix + "-" + hex.EncodeToString(h.Sum(nil)[:8]) + Extension
}

// Stats returns a snapshot of the lifecycle counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stores: c.stores.Load(),
	}
}

// Dense returns the dense tensor cached under name, calling compute and
// storing its result on a miss. Concurrent calls for the same name share one
// computation.
func (c *Cache) Dense(ctx context.Context, name string, compute func(context.Context) (*dense.Tensor, error)) (*dense.Tensor, error) {
	v, err := c.load(ctx, name,
		func(data []byte) (any, error) {
			x, _, err := serialization.ReadDense(bytes.NewReader(data), serialization.ReaderOptions{})
			return x, err
		},
		func(ctx context.Context) (any, []byte, error) {
			x, err := compute(ctx)
			if err != nil {
				return nil, nil, err
			}
			var buf bytes.Buffer
			err = serialization.WriteDense(&buf, x, serialization.WriterOptions{Compression: c.opts.Compression})
			return x, buf.Bytes(), err
		})
	if err != nil {
		return nil, err
	}
	return v.(*dense.Tensor), nil
}

// TT returns the tensor train cached under name, calling compute and storing
// its result on a miss.
func (c *Cache) TT(ctx context.Context, name string, compute func(context.Context) (*tt.Tensor, error)) (*tt.Tensor, error) {
	v, err := c.load(ctx, name,
		func(data []byte) (any, error) {
			x, _, err := serialization.ReadTT(bytes.NewReader(data), serialization.ReaderOptions{})
			return x, err
		},
		func(ctx context.Context) (any, []byte, error) {
			x, err := compute(ctx)
			if err != nil {
				return nil, nil, err
			}
			var buf bytes.Buffer
			err = serialization.WriteTT(&buf, x, serialization.WriterOptions{Compression: c.opts.Compression})
			return x, buf.Bytes(), err
		})
	if err != nil {
		return nil, err
	}
	return v.(*tt.Tensor), nil
}

// Invalidate removes the entry for name.
func (c *Cache) Invalidate(ctx context.Context, name string) error {
	if err := serialization.ValidateName(name); err != nil {
		return err
	}
	return c.store.Delete(ctx, name)
}

func (c *Cache) load(
	ctx context.Context,
	name string,
	decode func([]byte) (any, error),
	compute func(context.Context) (any, []byte, error),
) (any, error) {
	if err := serialization.ValidateName(name); err != nil {
		return nil, err
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		log := c.logger.WithField("cache_key", name)

		data, err := c.store.Get(ctx, name)
		switch {
		case err == nil:
			obj, err := decode(data)
			if err != nil {
				return nil, fmt.Errorf("decode cache entry %s: %w", name, err)
			}
			c.hits.Add(1)
			log.Debug("cache hit")
			return obj, nil
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("read cache entry %s: %w", name, err)
		}

		c.misses.Add(1)
		log.Debug("cache miss")
		obj, encoded, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(ctx, name, encoded); err != nil {
			return nil, fmt.Errorf("store cache entry %s: %w", name, err)
		}
		c.stores.Add(1)
		log.WithField("bytes", len(encoded)).Debug("cache store")
		return obj, nil
	})
	return v, err
}
