/*
	This file contains functions useful for testing the voxcoarsen server in other
	packages.  Due to the way Go handles compilation of *_test.go files, these
	functions cannot be in server_test.go since they would be unavailable to test
	files in external packages.  So these functions are exported and contain the
	"Test" keyword.
*/

package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/storage"
)

// NewTestService returns a service with a result store from the given testable
// engine, or no result store if te is nil, rooted at dataRoot.  The service is
// closed when the test completes.
func NewTestService(t *testing.T, dataRoot string, te storage.TestableEngine, loader *format.Loader) *Service {
	c := DefaultConfig()
	c.Server.DataRoot = dataRoot
	return NewTestServiceConfig(t, c, te, loader)
}

// NewTestServiceConfig is like NewTestService but starts from the given config.
func NewTestServiceConfig(t *testing.T, c *Config, te storage.TestableEngine, loader *format.Loader) *Service {
	if te != nil {
		c.Store = te.TestConfig()
	}
	s, err := New(c, loader)
	if err != nil {
		t.Fatalf("Unable to start test service: %v\n", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Error closing test service: %v\n", err)
		}
		if te != nil {
			if err := te.Delete(c.Store); err != nil {
				t.Errorf("Error deleting test store: %v\n", err)
			}
		}
	})
	return s
}

// TestHTTPResponse returns a response from a test run of the handler.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, h http.Handler, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	return TestHTTPResponseFor(t, h, req)
}

// TestHTTPResponseFor returns the response to a prepared request, e.g., one with
// custom headers.
func TestHTTPResponseFor(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// status OK.
func TestHTTP(t *testing.T, h http.Handler, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, h, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body)
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with the given error status code.
func TestBadHTTP(t *testing.T, h http.Handler, method, urlStr string, payload io.Reader, status int) {
	resp := TestHTTPResponse(t, h, method, urlStr, payload)
	if resp.Code != status {
		t.Fatalf("Expected status %d to %s on %q, got %d instead.\n", status, method, urlStr, resp.Code)
	}
}
