package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/cors"
	"github.com/twinj/uuid"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/voxcoarsen"
	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/result"
	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

const (
	// WebAPIPath is the prefix of all HTTP API endpoints.
	WebAPIPath = "/api/"

	// RequestIDHeader carries a unique id for each request.  If a client supplies one,
	// it is reused.
	RequestIDHeader = "X-Request-Id"

	// ShapeHeader gives the "nx,ny,nz" shape of a coarsened grid.
	ShapeHeader = "X-Voxel-Shape"

	// CacheHeader is "hit" if a coarsened grid came from the result store.
	CacheHeader = "X-Voxel-Cache"
)

// WebHelp is returned by /api/help.
const WebHelp = `
voxcoarsen server HTTP API

GET  /api/help

	Returns this help message.

GET  /api/server/info

	Returns JSON describing the server, result store, and caches.

GET  /api/info?file=<dataset>

	Returns JSON with the format, dimensions, voxel count, and number of distinct
	labels of a dataset.

GET  /api/coarsen?file=<dataset>&factor=<k>[&rule=...][&boundary=...][&background=...][&format=...][&compress=...]

	Returns the dataset coarsened by the integer factor k along each axis.

	rule        mode (default), mode-nonzero, or first-nonzero
	boundary    truncate (default), fold, or partial
	background  label ignored by the nonzero rules, default 0
	format      vxl (default), txt, json, msgpack, or arrow
	compress    none (default), snappy, zstd, or gzip; only applies to vxl

	The "X-Voxel-Shape" response header gives the coarsened shape as "nx,ny,nz".

Datasets are local paths, relative to the server data root if one is configured.
If the server sets allow_blobs, gs:// and s3:// blob URLs are also accepted and are
read with the server's own cloud credentials, so any bucket those credentials can
read is open to clients.  Otherwise blob URLs are refused with 403 Forbidden.
`

func (s *Service) routes() http.Handler {
	mux := web.New()
	mux.Use(s.requestID)
	mux.Get(WebAPIPath+"help", helpHandler)
	mux.Get(WebAPIPath+"server/info", s.serverInfoHandler)
	mux.Get(WebAPIPath+"info", s.infoHandler)
	mux.Get(WebAPIPath+"coarsen", s.coarsenHandler)
	mux.NotFound(notFoundHandler)

	if len(s.config.Server.CorsOrigins) == 0 {
		return mux
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.CorsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		ExposedHeaders: []string{ShapeHeader, CacheHeader, RequestIDHeader},
	})
	return c.Handler(mux)
}

// requestID is middleware that tags each request with an id and logs its duration.
func (s *Service) requestID(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewV4().String()
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["request_id"] = id
		w.Header().Set(RequestIDHeader, id)
		n := s.countRequest()
		t0 := time.Now()
		h.ServeHTTP(w, r)
		vox.Debugf("request %d [%s] %s %s: %s\n", n, id, r.Method, r.URL, time.Since(t0))
	}
	return http.HandlerFunc(fn)
}

func requestIDOf(c web.C) string {
	id, _ := c.Env["request_id"].(string)
	return id
}

// BadRequest writes an error message with a 400 status and logs it.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	vox.Errorf("%s %s (%d): %s\n", r.Method, r.URL, status, message)
	http.Error(w, message, status)
}

// errorStatus maps an error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errOutsideRoot), errors.Is(err, errBlobsDisabled):
		return http.StatusForbidden
	case vox.IsCode(err, vox.CodeFormat), vox.IsCode(err, vox.CodeInvalidFactor):
		return http.StatusBadRequest
	case vox.IsCode(err, vox.CodeIO) && errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, errorStatus(err), err.Error())
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		vox.Errorf("unable to write JSON response to %s: %v\n", r.URL, err)
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, fmt.Sprintf("no endpoint %s %s; see %shelp", r.Method, r.URL.Path, WebAPIPath))
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, WebHelp)
}

func (s *Service) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"Version":         voxcoarsen.Version,
		"Host":            s.config.WebServer(),
		"Note":            s.config.Server.Note,
		"Started":         s.started.Format(time.RFC3339),
		"Uptime":          time.Since(s.started).Round(time.Second).String(),
		"Cores":           vox.NumCPU,
		"Maximum Cores":   runtime.GOMAXPROCS(0),
		"Requests":        atomic.LoadUint64(&s.requests),
		"Default Config":  s.defaults.String(),
		"Storage Engines": storage.EnginesAvailable(),
		"Grid Cache":      s.grids.stats(),
		"Kafka Topic":     s.activity.Topic(),
	}
	if s.store != nil {
		info["Result Store"] = s.store.String()
	}
	writeJSON(w, r, info)
}

// datasetInfo is the JSON response of /api/info.
type datasetInfo struct {
	File   string
	Format string
	Dims   vox.Dims
	Voxels int
	Labels int
	Bytes  string
	Memory string
}

func (s *Service) infoHandler(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		BadRequest(w, r, "dataset must be specified via 'file' query string")
		return
	}
	ref, err := s.resolve(file)
	if err != nil {
		serverError(w, r, err)
		return
	}
	g, f, data, err := s.load(r.Context(), ref)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, r, datasetInfo{
		File:   file,
		Format: f.String(),
		Dims:   g.Size,
		Voxels: g.NumVoxels(),
		Labels: len(g.CountLabels()),
		Bytes:  humanize.Bytes(uint64(len(data))),
		Memory: vox.MemSize(g),
	})
}

// parseCoarsenQuery returns the factor and settings of a coarsen request, starting
// from the server defaults.
func (s *Service) parseCoarsenQuery(r *http.Request) (k int, cfg coarsen.Config, f format.Format, opts format.Options, err error) {
	q := r.URL.Query()
	cfg = s.defaults
	factor := q.Get("factor")
	if factor == "" {
		err = vox.NewError(vox.CodeInvalidFactor, "coarsen factor must be specified via 'factor' query string")
		return
	}
	k64, perr := strconv.ParseUint(factor, 10, 63)
	if perr != nil || k64 == 0 || k64 > uint64(vox.MaxVoxels) || k64 > math.MaxInt {
		err = vox.NewError(vox.CodeInvalidFactor, "bad coarsen factor %q", factor)
		return
	}
	k = int(k64)
	if v := q.Get("rule"); v != "" {
		if cfg.Rule, err = coarsen.ParseRule(v); err != nil {
			return
		}
	}
	if v := q.Get("boundary"); v != "" {
		if cfg.Boundary, err = coarsen.ParseBoundary(v); err != nil {
			return
		}
	}
	if v := q.Get("background"); v != "" {
		bg, perr := strconv.ParseInt(v, 10, 32)
		if perr != nil {
			err = fmt.Errorf("bad background label %q: %v", v, perr)
			return
		}
		cfg.Background = int32(bg)
	}
	f = format.VXL
	if v := q.Get("format"); v != "" {
		if f, err = format.ParseFormat(v); err != nil {
			return
		}
	}
	if v := q.Get("compress"); v != "" {
		if opts.Compression, err = format.ParseCompression(v); err != nil {
			return
		}
	}
	return
}

func (s *Service) coarsenHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	timedLog := vox.NewTimeLog()
	file := r.URL.Query().Get("file")
	if file == "" {
		BadRequest(w, r, "dataset must be specified via 'file' query string")
		return
	}
	k, cfg, f, opts, err := s.parseCoarsenQuery(r)
	if err != nil {
		if vox.ErrorCode(err) == "" {
			BadRequest(w, r, "%v", err)
		} else {
			serverError(w, r, err)
		}
		return
	}
	ref, err := s.resolve(file)
	if err != nil {
		serverError(w, r, err)
		return
	}
	run, err := s.coarsen(r.Context(), ref, k, cfg)
	if err != nil {
		serverError(w, r, err)
		return
	}
	body, err := format.Marshal(run.Grid, f, opts)
	if err != nil {
		serverError(w, r, err)
		return
	}

	shape := result.ShapeOf(run.Grid.Size)
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set(ShapeHeader, shape.String())
	if run.Cached {
		w.Header().Set(CacheHeader, "hit")
	} else {
		w.Header().Set(CacheHeader, "miss")
	}
	if _, err := w.Write(body); err != nil {
		vox.Errorf("unable to write coarsened grid to %s: %v\n", r.URL, err)
	}

	s.activity.Log(map[string]interface{}{
		"Time":     time.Now().Unix(),
		"Request":  requestIDOf(c),
		"Host":     s.config.Server.Host,
		"File":     file,
		"Factor":   k,
		"Rule":     cfg.Rule.String(),
		"Boundary": cfg.Boundary.String(),
		"Shape":    shape.String(),
		"Cached":   run.Cached,
		"Uniform":  run.Stats.UniformBlocks,
		"Bytes":    len(body),
		"Duration": timedLog.Elapsed().Milliseconds(),
	})
	timedLog.Debugf("coarsened %s by %d to %s (%s)", file, k, shape, cfg)
}
