package rangehttp

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/segfetch/internal/utils"
)

// rangeOrigin serves content with full Range support and records the
// Range headers it saw.
type rangeOrigin struct {
	content  []byte
	mu       sync.Mutex
	ranges   []string
	requests atomic.Int32
}

func newRangeOrigin(t *testing.T, content []byte) (*rangeOrigin, *httptest.Server) {
	t.Helper()
	o := &rangeOrigin{content: content}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.requests.Add(1)
		if rh := r.Header.Get("Range"); rh != "" {
			o.mu.Lock()
			o.ranges = append(o.ranges, rh)
			o.mu.Unlock()
		}
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(o.content))
	}))
	t.Cleanup(srv.Close)
	return o, srv
}

func randomContent(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestFetcher(bufferSize int, readDelay time.Duration) *RangeFetcher {
	return NewRangeFetcher(http.DefaultClient, utils.FetchJob{BufferSize: bufferSize, ReadDelay: readDelay})
}

func TestRangeFetcher_FetchExactRange(t *testing.T) {
	content := randomContent(t, 1000)
	origin, srv := newRangeOrigin(t, content)

	plan := utils.ChunkPlan{Index: 1, Offset: 334, Length: 333}
	result := newTestFetcher(7, 0).Fetch(t.Context(), srv.URL, plan)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Warning != nil {
		t.Errorf("unexpected warning: %v", result.Warning)
	}
	if result.Index != 1 {
		t.Errorf("exp index 1, got %d", result.Index)
	}
	if !bytes.Equal(result.Bytes, content[334:667]) {
		t.Error("fetched bytes do not match the requested range")
	}
	if result.Reads < 333/7 {
		t.Errorf("exp at least %d reads with a 7 byte buffer, got %d", 333/7, result.Reads)
	}
	if len(origin.ranges) != 1 || origin.ranges[0] != "bytes=334-666" {
		t.Errorf("exp one Range header bytes=334-666, got %v", origin.ranges)
	}
}

func TestRangeFetcher_NonPartialResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("whole body, range ignored"))
	}))
	defer srv.Close()

	result := newTestFetcher(16, 0).Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 2, Offset: 0, Length: 5})

	var npErr *NonPartialResponseError
	if !errors.As(result.Err, &npErr) {
		t.Fatalf("exp NonPartialResponseError, got %v", result.Err)
	}
	if npErr.StatusCode != http.StatusOK || npErr.Index != 2 {
		t.Errorf("unexpected error detail: %+v", npErr)
	}
	if !errors.Is(result.Err, ErrNonPartialResponse) {
		t.Error("exp error to wrap ErrNonPartialResponse")
	}
	if result.Bytes != nil {
		t.Errorf("exp no bytes on failure, got %d", len(result.Bytes))
	}
}

func TestRangeFetcher_ShortLengthIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(bytes.Repeat([]byte("x"), 10))
	}))
	defer srv.Close()

	result := newTestFetcher(4, 0).Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 0, Offset: 0, Length: 12})

	if result.Err != nil {
		t.Fatalf("length mismatch must not be fatal at the worker: %v", result.Err)
	}
	var warn *LengthMismatchWarning
	if !errors.As(result.Warning, &warn) {
		t.Fatalf("exp LengthMismatchWarning, got %v", result.Warning)
	}
	if warn.Expected != 12 || warn.Reported != 10 {
		t.Errorf("unexpected warning detail: %+v", warn)
	}
	if len(result.Bytes) != 10 {
		t.Errorf("exp the 10 bytes actually sent, got %d", len(result.Bytes))
	}
}

func TestRangeFetcher_TruncatesOverlongBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(bytes.Repeat([]byte("y"), 20))
	}))
	defer srv.Close()

	result := newTestFetcher(8, 0).Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 0, Offset: 0, Length: 12})

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Warning == nil {
		t.Error("exp a length warning")
	}
	if len(result.Bytes) != 12 {
		t.Errorf("exp bytes truncated to 12, got %d", len(result.Bytes))
	}
}

func TestRangeFetcher_ReadDelay(t *testing.T) {
	content := randomContent(t, 64)
	_, srv := newRangeOrigin(t, content)

	const delay = 15 * time.Millisecond
	start := time.Now()
	result := newTestFetcher(16, delay).Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 0, Offset: 0, Length: 64})
	elapsed := time.Since(start)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if !bytes.Equal(result.Bytes, content) {
		t.Error("fetched bytes do not match content")
	}
	if minimum := time.Duration(result.Reads-1) * delay; elapsed < minimum {
		t.Errorf("exp at least %v across %d reads, took %v", minimum, result.Reads, elapsed)
	}
}

func TestRangeFetcher_ChunkTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := NewRangeFetcher(http.DefaultClient, utils.FetchJob{BufferSize: 16, ChunkTimeout: 50 * time.Millisecond})
	result := f.Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 3, Offset: 0, Length: 10})

	if !errors.Is(result.Err, ErrTransport) {
		t.Fatalf("exp ErrTransport, got %v", result.Err)
	}
	if !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Errorf("exp deadline exceeded inside the transport error, got %v", result.Err)
	}
}

func TestRangeFetcher_ZeroLengthPlan(t *testing.T) {
	origin, srv := newRangeOrigin(t, []byte("abc"))

	result := newTestFetcher(16, 0).Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 2, Offset: 3, Length: 0})

	if result.Err != nil || len(result.Bytes) != 0 {
		t.Errorf("exp empty success, got %d bytes, err %v", len(result.Bytes), result.Err)
	}
	if n := origin.requests.Load(); n != 0 {
		t.Errorf("exp no request for an empty range, got %d", n)
	}
}

func TestRangeFetcher_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := newTestFetcher(16, 0).Fetch(t.Context(), url, utils.ChunkPlan{Index: 0, Offset: 0, Length: 10})

	var tErr *TransportError
	if !errors.As(result.Err, &tErr) {
		t.Fatalf("exp TransportError, got %v", result.Err)
	}
	if tErr.Op != "executing request" {
		t.Errorf("unexpected op %q", tErr.Op)
	}
}

func TestRangeFetcher_ReportsReads(t *testing.T) {
	content := randomContent(t, 300)
	_, srv := newRangeOrigin(t, content)

	var total atomic.Int64
	f := newTestFetcher(32, 0)
	f.onRead = func(n int) { total.Add(int64(n)) }
	result := f.Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 0, Offset: 100, Length: 200})

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if got := total.Load(); got != 200 {
		t.Errorf("exp read hook to see 200 bytes, saw %s", strconv.FormatInt(got, 10))
	}
}

func TestRangeFetcher_ThrottledReadOutlivesClientTimeout(t *testing.T) {
	content := randomContent(t, 64*1024)
	_, srv := newRangeOrigin(t, content)

	client, err := utils.NewSegHTTPClient(utils.HTTPClientConfig{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	f := NewRangeFetcher(client, utils.FetchJob{BufferSize: 4 * 1024, ReadDelay: 20 * time.Millisecond})

	start := time.Now()
	result := f.Fetch(t.Context(), srv.URL, utils.ChunkPlan{Index: 0, Offset: 0, Length: int64(len(content))})
	if result.Err != nil {
		t.Fatalf("throttled read failed after %v: %v", time.Since(start), result.Err)
	}
	if !bytes.Equal(result.Bytes, content) {
		t.Error("fetched bytes do not match content")
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("exp the read to outlast the client timeout, took only %v", elapsed)
	}
}
