package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

// errOutsideRoot is returned for local references that leave the data root.
var errOutsideRoot = errors.New("dataset reference outside of server data root")

// errBlobsDisabled is returned for blob references when the server does not allow them.
var errBlobsDisabled = errors.New("blob dataset references are disabled on this server")

// Service handles coarsening requests for a voxcoarsen server.
type Service struct {
	config   *Config
	defaults coarsen.Config
	loader   *format.Loader

	grids    *gridCache
	store    storage.Store
	results  *storage.ResultCache
	activity *ActivityLog

	started  time.Time
	requests uint64
	handler  http.Handler
}

// New returns a Service for the given configuration, opening any configured result
// store and kafka activity log.  If loader is nil, format.DefaultLoader is used.
func New(c *Config, loader *format.Loader) (*Service, error) {
	if c == nil {
		c = DefaultConfig()
	}
	defaults, err := c.Coarsen.config()
	if err != nil {
		return nil, err
	}
	if loader == nil {
		loader = format.DefaultLoader
	}
	s := &Service{
		config:   c,
		defaults: defaults,
		loader:   loader,
		grids:    newGridCache(c.Server.GridCacheEntries),
		started:  time.Now(),
	}
	if c.Store.Engine != "" {
		if s.store, err = storage.Open(c.Store); err != nil {
			return nil, err
		}
		s.results = storage.NewResultCache(s.store)
	}
	if s.activity, err = NewActivityLog(c.Kafka, c.Server.Host); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to start kafka activity log: %v", err)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the service API.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Close shuts down the activity log and result store.
func (s *Service) Close() error {
	var errs []error
	if err := s.activity.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve listens on the configured HTTP address until the context is canceled,
// then gives in-flight requests the configured shutdown delay to complete.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Server.HTTPAddress,
		Handler: s.handler,
	}
	errCh := make(chan error, 1)
	go func() {
		vox.Infof("Web server listening at %s ...\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	delay := time.Duration(s.config.Server.ShutdownDelay) * time.Second
	vox.Infof("Shutting down web server with %s grace period...\n", delay)
	sctx, cancel := context.WithTimeout(context.Background(), delay)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

// resolve returns the reference to load for a requested dataset.  Local paths are
// placed under any configured data root.  Blob URLs are only passed through when
// the server allows them.
func (s *Service) resolve(ref string) (string, error) {
	r, err := format.ParseReference(ref)
	if err != nil {
		return "", err
	}
	if !r.IsLocal() {
		if !s.config.Server.AllowBlobs {
			return "", errBlobsDisabled
		}
		return ref, nil
	}
	root := s.config.Server.DataRoot
	if root == "" {
		return ref, nil
	}
	p := filepath.Join(root, filepath.FromSlash(r.Key))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errOutsideRoot
	}
	return p, nil
}

// load reads and decodes a dataset, reusing a cached grid for identical content
// read as the same format.  The raw data is returned for result lookup.
func (s *Service) load(ctx context.Context, ref string) (*vox.Grid, format.Format, []byte, error) {
	data, err := s.loader.Read(ctx, ref)
	if err != nil {
		return nil, format.Unknown, nil, err
	}
	f := format.DetectFormat(ref, data)
	key := gridKey{Content: xxhash.Sum64(data), Format: f}
	if g, found := s.grids.get(key); found {
		return g, f, data, nil
	}
	g, err := format.DecodeFormat(data, f)
	if err != nil {
		return nil, f, nil, fmt.Errorf("loading %q: %w", ref, err)
	}
	s.grids.add(key, g)
	return g, f, data, nil
}

// coarsenRun is the outcome of one coarsening request.
type coarsenRun struct {
	Grid   *vox.Grid
	Cached bool
	Stats  coarsen.Stats
}

func (s *Service) coarsen(ctx context.Context, ref string, k int, cfg coarsen.Config) (coarsenRun, error) {
	if k < 1 {
		return coarsenRun{}, vox.NewError(vox.CodeInvalidFactor, "coarsen factor must be at least 1, got %d", k)
	}
	grid, _, data, err := s.load(ctx, ref)
	if err != nil {
		return coarsenRun{}, err
	}
	key := storage.NewResultKey(data, k, cfg)
	if s.results != nil {
		g, found, err := s.results.Get(key)
		if err != nil {
			vox.Errorf("result cache lookup of %s: %v\n", key, err)
		} else if found {
			return coarsenRun{Grid: g, Cached: true}, nil
		}
	}
	out, stats, err := coarsen.CoarsenStats(ctx, grid, k, cfg)
	if err != nil {
		return coarsenRun{}, err
	}
	if err := s.results.Put(key, out); err != nil {
		vox.Errorf("unable to store result %s: %v\n", key, err)
	}
	return coarsenRun{Grid: out, Stats: stats}, nil
}

func (s *Service) countRequest() uint64 {
	return atomic.AddUint64(&s.requests, 1)
}
