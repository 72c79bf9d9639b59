// Package httpget downloads firmware images over plain HTTP.
package httpget

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/fota"
)

var (
	// ErrEmptyImage indicates the server sent no image data.
	ErrEmptyImage = errors.New("empty image")
	// ErrTruncated indicates fewer bytes than Content-Length arrived.
	ErrTruncated = errors.New("image truncated")
)

// StatusError is returned when the server doesn't reply 2xx.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status " + e.Status
}

// EncodingError is returned when the image is content-encoded.
type EncodingError struct {
	Encoding string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("unsupported content encoding %q", e.Encoding)
}

// Downloader implements fota.Upgrader.
type Downloader struct {
	Flash fota.Flash
}

// New creates a Downloader writing into flash.
func New(flash fota.Flash) *Downloader {
	return &Downloader{Flash: flash}
}

// StartUpgrade implements fota.Upgrader.
func (d *Downloader) StartUpgrade(req *fota.Request, done func(fota.Result)) {
	go func() {
		err := d.Download(context.Background(), req)
		done(fota.Result{Bank: req.Bank, Err: err})
	}()
}

// Download fetches the image and commits it into req.Bank. The whole
// exchange must finish within req.Timeout.
func (d *Downloader) Download(ctx context.Context, req *fota.Request) error {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	dialer := &net.Dialer{}
	if req.LocalIP != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: req.LocalIP}
	}
	conn, err := dialer.DialContext(ctx, "tcp", req.Addr())
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// unblock reads when ctx is cancelled by the caller.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()

	glog.V(2).Infof("httpget: %s request:\n%s", req.Addr(), req.Payload)
	if _, err = conn.Write(req.Payload); err != nil {
		return err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	glog.V(1).Infof("httpget: %s %s, length %d", req.Addr(), resp.Status, resp.ContentLength)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return &EncodingError{Encoding: enc}
	}
	if resp.ContentLength == 0 {
		return ErrEmptyImage
	}

	img, err := d.Flash.Begin(req.Bank)
	if err != nil {
		return err
	}
	n, err := io.Copy(img, resp.Body)
	if err == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		err = ErrTruncated
	}
	if err == io.ErrUnexpectedEOF {
		err = ErrTruncated
	}
	if err == nil && n == 0 {
		err = ErrEmptyImage
	}
	if err != nil {
		if aerr := img.Abort(); aerr != nil {
			glog.Warningf("httpget: abort %s: %v", req.Bank, aerr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	glog.Infof("httpget: %d bytes downloaded into %s", n, req.Bank)
	return img.Commit()
}
