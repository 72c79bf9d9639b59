// Package fota orchestrates firmware-over-the-air upgrades into the
// inactive firmware bank.
package fota

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

var (
	// ErrSessionActive indicates a session is already in progress.
	ErrSessionActive = errors.New("FOTA session active")
	// ErrAllocFailed indicates the request buffer can't be allocated.
	ErrAllocFailed = errors.New("request buffer allocation failed")
	// ErrNoServer indicates no FOTA server is configured.
	ErrNoServer = errors.New("FOTA server not configured")
)

// Defaults
const (
	DefaultPort    = 80
	DefaultTimeout = 10 * time.Second
)

// BankQuerier reports the bank currently running.
type BankQuerier interface {
	ActiveBank() (Bank, error)
}

// Upgrader downloads an image into a bank. StartUpgrade must return
// promptly; done is invoked exactly once, from any goroutine.
type Upgrader interface {
	StartUpgrade(req *Request, done func(Result))
}

// Rebooter restarts the device into the active bank.
type Rebooter interface {
	Reboot() error
}

// Buffers allocates and releases request buffers. Alloc returns nil
// when no memory is available.
type Buffers interface {
	Alloc(size int) []byte
	Free([]byte)
}

type heapBuffers struct{}

func (heapBuffers) Alloc(size int) []byte { return make([]byte, size) }
func (heapBuffers) Free([]byte)           {}

// Config configures the Orchestrator.
type Config struct {
	Server  net.IP
	Port    int
	Timeout time.Duration
}

// State is the state of the orchestrator.
type State int

// States
const (
	StateIdle State = iota
	StateDownloading
	StateRebooting
	StateFailed
)

var stateNames = [...]string{"idle", "downloading", "rebooting", "failed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is reported to the Observer on every transition.
type Status struct {
	State  State
	Target Bank
	Err    error
}

// Session is an upgrade in flight. At most one exists at a time.
type Session struct {
	Target  Bank
	Server  net.IP
	Port    int
	Timeout time.Duration
	Started time.Time

	buf []byte
}

// Orchestrator owns the FOTA session. It is not safe for concurrent
// use: Start and Complete must be called from the same goroutine.
type Orchestrator struct {
	Config   Config
	Banks    BankQuerier
	Upgrader Upgrader
	Rebooter Rebooter
	Buffers  Buffers

	// LocalIP is the address of the node, updated on link-up.
	LocalIP net.IP
	// Notify receives the upgrade result. It defaults to Complete; an
	// event loop replaces it to deliver the result on its own goroutine.
	Notify func(Result)
	// Observer is optional.
	Observer func(Status)

	session *Session
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(conf Config, banks BankQuerier, upgrader Upgrader, rebooter Rebooter) *Orchestrator {
	if conf.Port == 0 {
		conf.Port = DefaultPort
	}
	if conf.Timeout == 0 {
		conf.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		Config:   conf,
		Banks:    banks,
		Upgrader: upgrader,
		Rebooter: rebooter,
		Buffers:  heapBuffers{},
	}
}

// Active tells if a session is in flight.
func (o *Orchestrator) Active() bool {
	return o.session != nil
}

// Session returns the session in flight, nil if idle.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// Start starts a session downloading the image of the inactive bank.
// A trigger while a session is active is rejected with ErrSessionActive.
func (o *Orchestrator) Start() error {
	if o.session != nil {
		return ErrSessionActive
	}
	if o.Config.Server == nil {
		return ErrNoServer
	}
	active, err := o.Banks.ActiveBank()
	if err != nil {
		return fmt.Errorf("query active bank: %w", err)
	}
	target := active.Other()

	buf := o.Buffers.Alloc(RequestBufferSize)
	if buf == nil {
		glog.Warning("FOTA: failed to allocate request buffer")
		return ErrAllocFailed
	}
	n, err := FormatRequest(buf, target, o.Config.Server, o.Config.Port)
	if err != nil {
		o.Buffers.Free(buf)
		return err
	}

	o.session = &Session{
		Target:  target,
		Server:  o.Config.Server,
		Port:    o.Config.Port,
		Timeout: o.Config.Timeout,
		Started: time.Now(),
		buf:     buf,
	}
	req := &Request{
		Server:  o.Config.Server,
		Port:    o.Config.Port,
		LocalIP: o.LocalIP,
		Timeout: o.Config.Timeout,
		Bank:    target,
		Payload: buf[:n],
	}
	glog.Infof("FOTA: performing firmware upgrade over the air, %s -> %s from %s", active, target, req.Addr())
	o.observe(Status{State: StateDownloading, Target: target})
	notify := o.Notify
	if notify == nil {
		notify = o.Complete
	}
	o.Upgrader.StartUpgrade(req, notify)
	return nil
}

// Complete finishes the session with the upgrade result. On success
// the device is rebooted, otherwise the session returns to idle and
// the device stays on the current firmware.
func (o *Orchestrator) Complete(res Result) {
	s := o.session
	if s == nil {
		glog.Warning("FOTA: completion without session")
		return
	}
	err := res.Err
	if res.OK() {
		glog.Infof("FOTA: firmware upgraded into %s, rebooting", s.Target)
		o.observe(Status{State: StateRebooting, Target: s.Target})
		if err = o.Rebooter.Reboot(); err != nil {
			// the new bank is already marked active and boots on the
			// next restart.
			glog.Errorf("FOTA: reboot into %s error: %v", s.Target, err)
			err = fmt.Errorf("reboot: %w", err)
		}
	} else {
		glog.Warningf("FOTA: firmware upgrade into %s failed: %v", s.Target, err)
	}
	if err != nil {
		o.observe(Status{State: StateFailed, Target: s.Target, Err: err})
	}
	o.Buffers.Free(s.buf)
	s.buf = nil
	o.session = nil
	if err != nil {
		o.observe(Status{State: StateIdle, Target: s.Target})
	}
}

func (o *Orchestrator) observe(st Status) {
	if o.Observer != nil {
		o.Observer(st)
	}
}
