package format

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref    string
		bucket string
		key    string
	}{
		{"grains.txt", "", "grains.txt"},
		{"/data/grains.vxl", "", "/data/grains.vxl"},
		{"file:///data/grains.vxl", "", "/data/grains.vxl"},
		{"gs://mybucket/dir/grains.vxl", "gs://mybucket", "dir/grains.vxl"},
		{"s3://mybucket/grains.vxl?region=us-east-2", "s3://mybucket?region=us-east-2", "grains.vxl"},
	}
	for _, tc := range tests {
		r, err := ParseReference(tc.ref)
		if err != nil {
			t.Fatalf("can't parse %q: %v\n", tc.ref, err)
		}
		if r.Bucket != tc.bucket || r.Key != tc.key {
			t.Errorf("parsing %q: expected bucket %q key %q, got %q %q\n", tc.ref, tc.bucket, tc.key, r.Bucket, r.Key)
		}
	}
	for _, ref := range []string{"", "gs://mybucket", "gs:///key"} {
		if _, err := ParseReference(ref); !vox.IsCode(err, vox.CodeIO) {
			t.Errorf("expected io error parsing %q, got %v\n", ref, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.vxl")
	_, err := Load(context.Background(), missing)
	if err == nil {
		t.Fatalf("expected error loading nonexistent file\n")
	}
	if !errors.Is(err, vox.ErrIO) {
		t.Errorf("expected io error, got %v\n", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist cause, got %v\n", err)
	}
}

func TestWriteAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	g := makeTestGrid(t, vox.Dims{6, 5, 4})
	for _, f := range Formats {
		filename := filepath.Join(dir, "grid"+f.Extension())
		if err := WriteFile(filename, g, Unknown, Options{Compression: Zstd}); err != nil {
			t.Fatalf("can't write %s: %v\n", filename, err)
		}
		got, detected, err := DefaultLoader.LoadFormat(context.Background(), "file://"+filename)
		if err != nil {
			t.Fatalf("can't load %s: %v\n", filename, err)
		}
		if detected != f {
			t.Errorf("expected %s detected, got %s\n", f, detected)
		}
		if !got.Equals(g) {
			t.Errorf("grid loaded from %s differs\n", filename)
		}
	}

	garbage := filepath.Join(dir, "garbage.vxl")
	if err := os.WriteFile(garbage, []byte("VOXL"), 0644); err != nil {
		t.Fatalf("can't write garbage file: %v\n", err)
	}
	if _, err := Load(context.Background(), garbage); !errors.Is(err, vox.ErrFormat) {
		t.Errorf("expected format error loading garbage, got %v\n", err)
	}
}

func TestLoadBlob(t *testing.T) {
	ctx := context.Background()
	g := makeTestGrid(t, vox.Dims{4, 4, 2})
	data, err := Marshal(g, VXL, Options{Compression: Snappy})
	if err != nil {
		t.Fatalf("can't encode grid: %v\n", err)
	}

	// the loader closes buckets after each read, so each open gets a fresh bucket.
	var opened []string
	loader := &Loader{
		OpenBucket: func(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
			opened = append(opened, bucketURL)
			bucket := memblob.OpenBucket(nil)
			if err := bucket.WriteAll(ctx, "volumes/grains.vxl", data, nil); err != nil {
				return nil, err
			}
			return bucket, nil
		},
	}
	got, err := loader.Load(ctx, "gs://test-bucket/volumes/grains.vxl")
	if err != nil {
		t.Fatalf("can't load blob: %v\n", err)
	}
	if !got.Equals(g) {
		t.Errorf("blob grid differs\n")
	}
	if len(opened) != 1 || opened[0] != "gs://test-bucket" {
		t.Errorf("unexpected bucket opens: %v\n", opened)
	}

	_, err = loader.Load(ctx, "gs://test-bucket/volumes/missing.vxl")
	if !errors.Is(err, vox.ErrIO) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-found io error, got %v\n", err)
	}
}
