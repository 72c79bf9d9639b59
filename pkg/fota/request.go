package fota

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// RequestBufferSize is the size of the request buffer of a session.
const RequestBufferSize = 512

// BrowserHeaders are sent after the Host header. Servers only need a
// valid GET, these keep the request looking like a browser. Images are
// written to flash as received, so no content coding is accepted.
const BrowserHeaders = "User-Agent: Mozilla/5.0 (Windows NT 10.0; WOW64; rv:46.0) Gecko/20100101 Firefox/46.0\r\n" +
	"Accept: text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8\r\n" +
	"Accept-Language: en-US,en;q=0.5\r\n" +
	"Accept-Encoding: identity\r\n" +
	"DNT: 1\r\n" +
	"Connection: keep-alive\r\n\r\n"

// ErrRequestTooLarge indicates the request does not fit in the buffer.
var ErrRequestTooLarge = errors.New("request exceeds buffer")

// FormatRequest writes the GET request for the bank image into buf and
// returns the number of bytes written.
func FormatRequest(buf []byte, bank Bank, server net.IP, port int) (int, error) {
	req := fmt.Sprintf("GET /%s HTTP/1.1\r\nHost: %s\r\n%s",
		bank.BinName(), net.JoinHostPort(server.String(), strconv.Itoa(port)), BrowserHeaders)
	if len(req) > len(buf) {
		return 0, ErrRequestTooLarge
	}
	return copy(buf, req), nil
}

// Request describes a download handed to an Upgrader. Payload is the
// session's request buffer, owned by the Upgrader until completion.
type Request struct {
	Server  net.IP
	Port    int
	LocalIP net.IP
	Timeout time.Duration
	Bank    Bank
	Payload []byte
}

// Addr returns the server address for dialing.
func (r *Request) Addr() string {
	return net.JoinHostPort(r.Server.String(), strconv.Itoa(r.Port))
}

// Result is the outcome of a download. On success the target bank has
// been written and marked bootable.
type Result struct {
	Bank Bank
	Err  error
}

// OK tells if the upgrade succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Image is a bank image being written.
type Image interface {
	io.Writer
	// Commit makes the image bootable.
	Commit() error
	// Abort discards the image.
	Abort() error
}

// Flash stores bank images.
type Flash interface {
	BankQuerier
	Begin(bank Bank) (Image, error)
}
