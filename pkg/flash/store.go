// Package flash keeps the two firmware banks as files in a directory.
package flash

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/fota"
)

// Files in the store directory.
const (
	ActiveFile  = "active"
	StagingFile = "staging.tmp"
)

var (
	// ErrBankActive indicates writing into the running bank.
	ErrBankActive = errors.New("bank is active")
	// ErrBusy indicates another image is being written.
	ErrBusy = errors.New("flash busy")
	// ErrImageClosed indicates the image is already committed or aborted.
	ErrImageClosed = errors.New("image closed")
)

// Store is a file-backed dual-bank flash.
type Store struct {
	Dir string

	lock    sync.Mutex
	writing bool
}

// Open opens the store in dir. A new store boots from user1.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &Store{Dir: dir}
	if _, err := os.Stat(s.path(ActiveFile)); os.IsNotExist(err) {
		if err = s.markActive(fota.User1); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return s, nil
}

// BankPath returns the image file of the bank.
func (s *Store) BankPath(bank fota.Bank) string {
	return s.path(bank.BinName())
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name)
}

// ActiveBank implements fota.BankQuerier.
func (s *Store) ActiveBank() (fota.Bank, error) {
	data, err := ioutil.ReadFile(s.path(ActiveFile))
	if err != nil {
		return fota.User1, err
	}
	return fota.ParseBank(strings.TrimSpace(string(data)))
}

// Begin starts writing an image into bank, which must not be active.
func (s *Store) Begin(bank fota.Bank) (fota.Image, error) {
	if !bank.IsValid() {
		return nil, fmt.Errorf("invalid bank %d", int(bank))
	}
	active, err := s.ActiveBank()
	if err != nil {
		return nil, err
	}
	if active == bank {
		return nil, ErrBankActive
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.writing {
		return nil, ErrBusy
	}
	f, err := os.Create(s.path(StagingFile))
	if err != nil {
		return nil, err
	}
	s.writing = true
	glog.V(1).Infof("flash: writing %s", bank)
	return &Image{store: s, bank: bank, file: f}, nil
}

func (s *Store) markActive(bank fota.Bank) error {
	tmp := s.path(ActiveFile + ".tmp")
	if err := ioutil.WriteFile(tmp, []byte(bank.String()+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(ActiveFile))
}

func (s *Store) release() {
	s.lock.Lock()
	s.writing = false
	s.lock.Unlock()
}

// Image is a bank image being staged.
type Image struct {
	store   *Store
	bank    fota.Bank
	file    *os.File
	written int64
}

// Bank returns the target bank.
func (m *Image) Bank() fota.Bank {
	return m.bank
}

// Written returns the number of bytes written.
func (m *Image) Written() int64 {
	return m.written
}

// Write implements io.Writer.
func (m *Image) Write(p []byte) (int, error) {
	if m.file == nil {
		return 0, ErrImageClosed
	}
	n, err := m.file.Write(p)
	m.written += int64(n)
	return n, err
}

// Commit moves the staged image into the bank and boots from it next.
func (m *Image) Commit() error {
	if m.file == nil {
		return ErrImageClosed
	}
	defer m.store.release()
	f := m.file
	m.file = nil
	err := f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), m.store.BankPath(m.bank))
	}
	if err == nil {
		err = m.store.markActive(m.bank)
	}
	if err != nil {
		os.Remove(f.Name())
		return err
	}
	glog.Infof("flash: %s committed, %d bytes", m.bank, m.written)
	return nil
}

// Abort discards the staged image.
func (m *Image) Abort() error {
	if m.file == nil {
		return ErrImageClosed
	}
	defer m.store.release()
	f := m.file
	m.file = nil
	f.Close()
	glog.V(1).Infof("flash: %s aborted", m.bank)
	return os.Remove(f.Name())
}
