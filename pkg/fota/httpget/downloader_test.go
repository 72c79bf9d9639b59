package httpget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/gpionode/pkg/fota"
)

type memImage struct {
	flash *memFlash
	bank  fota.Bank
	buf   bytes.Buffer
}

func (m *memImage) Write(p []byte) (int, error) { return m.buf.Write(p) }

func (m *memImage) Commit() error {
	m.flash.committed[m.bank] = m.buf.Bytes()
	m.flash.active = m.bank
	return nil
}

func (m *memImage) Abort() error {
	m.flash.aborts++
	return nil
}

type memFlash struct {
	active    fota.Bank
	committed map[fota.Bank][]byte
	aborts    int
}

func newMemFlash() *memFlash {
	return &memFlash{committed: make(map[fota.Bank][]byte)}
}

func (f *memFlash) ActiveBank() (fota.Bank, error) { return f.active, nil }

func (f *memFlash) Begin(bank fota.Bank) (fota.Image, error) {
	if bank == f.active {
		return nil, errors.New("active")
	}
	return &memImage{flash: f, bank: bank}, nil
}

func newRequest(t *testing.T, srv *httptest.Server, bank fota.Bank, timeout time.Duration) *fota.Request {
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	buf := make([]byte, fota.RequestBufferSize)
	ip := net.ParseIP(host)
	n, err := fota.FormatRequest(buf, bank, ip, port)
	require.NoError(t, err)
	return &fota.Request{
		Server:  ip,
		Port:    port,
		LocalIP: net.IPv4(127, 0, 0, 1),
		Timeout: timeout,
		Bank:    bank,
		Payload: buf[:n],
	}
}

func TestDownloadSuccess(t *testing.T) {
	image := bytes.Repeat([]byte{0xe9, 0x01, 0x02}, 1000)
	var path, host string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, host = r.URL.Path, r.Host
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(image)
	}))
	defer srv.Close()

	flash := newMemFlash()
	req := newRequest(t, srv, fota.User2, time.Second)
	require.NoError(t, New(flash).Download(context.Background(), req))
	assert.Equal(t, "/user2.bin", path)
	assert.Equal(t, srv.Listener.Addr().String(), host)
	assert.Equal(t, image, flash.committed[fota.User2])
	assert.Equal(t, fota.User2, flash.active)
}

func TestDownloadNegotiatesIdentity(t *testing.T) {
	image := bytes.Repeat([]byte{0xe9, 0x03}, 512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
		}
		w.Write(image)
	}))
	defer srv.Close()

	flash := newMemFlash()
	require.NoError(t, New(flash).Download(context.Background(), newRequest(t, srv, fota.User2, time.Second)))
	assert.Equal(t, image, flash.committed[fota.User2])
}

func TestDownloadFailures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
		aborts  int
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			check: func(t *testing.T, err error) {
				se, ok := err.(*StatusError)
				require.True(t, ok, "%v", err)
				assert.Equal(t, http.StatusNotFound, se.StatusCode)
			},
		},
		{
			name: "encoded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", "gzip")
				w.Write([]byte{1, 2, 3})
			},
			check: func(t *testing.T, err error) {
				_, ok := err.(*EncodingError)
				assert.True(t, ok, "%v", err)
			},
		},
		{
			name: "empty",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "0")
				w.WriteHeader(http.StatusOK)
			},
			check: func(t *testing.T, err error) {
				assert.Equal(t, ErrEmptyImage, err)
			},
		},
		{
			name: "truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				conn, bufw, err := w.(http.Hijacker).Hijack()
				if err != nil {
					return
				}
				fmt.Fprintf(bufw, "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n0123456789")
				bufw.Flush()
				conn.Close()
			},
			check: func(t *testing.T, err error) {
				assert.Equal(t, ErrTruncated, err)
			},
			aborts: 1,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			flash := newMemFlash()
			err := New(flash).Download(context.Background(), newRequest(t, srv, fota.User2, time.Second))
			require.Error(t, err)
			tc.check(t, err)
			assert.Empty(t, flash.committed)
			assert.Equal(t, fota.User1, flash.active)
			assert.Equal(t, tc.aborts, flash.aborts)
		})
	}
}

func TestDownloadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte{1, 2, 3})
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	flash := newMemFlash()
	start := time.Now()
	err := New(flash).Download(context.Background(), newRequest(t, srv, fota.User2, 200*time.Millisecond))
	require.Error(t, err)
	assert.True(t, time.Since(start) < 5*time.Second)
	assert.Empty(t, flash.committed)
	assert.Equal(t, 1, flash.aborts)
}

func TestDownloadConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	req := newRequest(t, srv, fota.User2, time.Second)
	srv.Close()
	err := New(newMemFlash()).Download(context.Background(), req)
	assert.Error(t, err)
}

func TestStartUpgradeCompletesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image"))
	}))
	defer srv.Close()
	results := make(chan fota.Result, 2)
	New(newMemFlash()).StartUpgrade(newRequest(t, srv, fota.User2, time.Second), func(r fota.Result) {
		results <- r
	})
	select {
	case r := <-results:
		assert.True(t, r.OK(), "%v", r.Err)
		assert.Equal(t, fota.User2, r.Bank)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion")
	}
	select {
	case <-results:
		t.Fatal("completed twice")
	case <-time.After(50 * time.Millisecond):
	}
}
