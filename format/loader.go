package format

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BucketOpener opens a blob bucket given a gocloud URL like "gs://bucket".
type BucketOpener func(ctx context.Context, bucketURL string) (*blob.Bucket, error)

// Loader reads voxel datasets from local paths or cloud blob URLs.
type Loader struct {
	// OpenBucket is used for references with a URL scheme other than "file".
	// If nil, blob.OpenBucket is used.
	OpenBucket BucketOpener
}

// DefaultLoader reads local files and gs:// or s3:// objects.
var DefaultLoader = &Loader{}

// Reference is a parsed dataset reference.
type Reference struct {
	// Bucket is the gocloud bucket URL or empty for a local file.
	Bucket string

	// Key is the object key within Bucket or the local file path.
	Key string
}

// IsLocal returns true if the reference names a local file.
func (r Reference) IsLocal() bool {
	return r.Bucket == ""
}

func (r Reference) String() string {
	if r.IsLocal() {
		return r.Key
	}
	return strings.TrimSuffix(r.Bucket, "/") + "/" + r.Key
}

// ParseReference splits a dataset reference into bucket and key.  Plain paths and
// file:// URLs are local.  Anything else of the form scheme://bucket/key is a blob.
func ParseReference(ref string) (Reference, error) {
	if ref == "" {
		return Reference{}, vox.NewError(vox.CodeIO, "empty voxel dataset reference")
	}
	if !strings.Contains(ref, "://") {
		return Reference{Key: ref}, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Reference{}, vox.WrapError(vox.CodeIO, err, "bad voxel dataset reference %q", ref)
	}
	if u.Scheme == "file" {
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = path.Join(u.Host, u.Path)
		}
		return Reference{Key: p}, nil
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Reference{}, vox.NewError(vox.CodeIO, "blob reference %q must be of form scheme://bucket/key", ref)
	}
	bucketURL := u.Scheme + "://" + u.Host
	if u.RawQuery != "" {
		bucketURL += "?" + u.RawQuery
	}
	return Reference{Bucket: bucketURL, Key: key}, nil
}

// Read returns the complete contents of the referenced dataset.  Failures are
// returned as vox.CodeIO errors.
func (l *Loader) Read(ctx context.Context, ref string) ([]byte, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}
	if r.IsLocal() {
		return readFile(r.Key)
	}
	return l.readBlob(ctx, r)
}

func readFile(filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, vox.WrapError(vox.CodeIO, err, "can't open voxel file %q", filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, vox.WrapError(vox.CodeIO, err, "can't read voxel file %q", filename)
	}
	return data, nil
}

func (l *Loader) readBlob(ctx context.Context, r Reference) ([]byte, error) {
	open := l.OpenBucket
	if open == nil {
		open = blob.OpenBucket
	}
	bucket, err := open(ctx, r.Bucket)
	if err != nil {
		return nil, vox.WrapError(vox.CodeIO, err, "can't open bucket %q", r.Bucket)
	}
	defer bucket.Close()
	data, err := bucket.ReadAll(ctx, r.Key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, vox.WrapError(vox.CodeIO, os.ErrNotExist, "no object %q in bucket %q", r.Key, r.Bucket)
		}
		return nil, vox.WrapError(vox.CodeIO, err, "can't read %s", r)
	}
	return data, nil
}

// Load reads and decodes the referenced dataset.
func (l *Loader) Load(ctx context.Context, ref string) (*vox.Grid, error) {
	g, _, err := l.LoadFormat(ctx, ref)
	return g, err
}

// LoadFormat is like Load but also returns the detected format.
func (l *Loader) LoadFormat(ctx context.Context, ref string) (*vox.Grid, Format, error) {
	timedLog := vox.NewTimeLog()
	data, err := l.Read(ctx, ref)
	if err != nil {
		return nil, Unknown, err
	}
	g, f, err := Decode(data, ref)
	if err != nil {
		return nil, f, fmt.Errorf("loading %q: %w", ref, err)
	}
	timedLog.Debugf("Loaded %s %s grid from %q", f, g.Size, ref)
	return g, f, nil
}

// Load uses the DefaultLoader.
func Load(ctx context.Context, ref string) (*vox.Grid, error) {
	return DefaultLoader.Load(ctx, ref)
}

// WriteFile encodes the grid to a local file, choosing the format by extension
// unless f is given.
func WriteFile(filename string, g *vox.Grid, f Format, opts Options) (err error) {
	if f == Unknown {
		if f = FromExtension(filename); f == Unknown {
			f = VXL
		}
	}
	out, err := os.Create(filename)
	if err != nil {
		return vox.WrapError(vox.CodeIO, err, "can't create %q", filename)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = vox.WrapError(vox.CodeIO, cerr, "can't close %q", filename)
		}
	}()
	return Encode(out, g, f, opts)
}
