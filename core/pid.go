package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PID names a process. It is a plain value: copying, comparing and keeping
// a PID after the process exited are all safe. Resolving it to the process
// goes through the runtime's table and fails once the process is gone.
type PID struct {
	// ID is unique within the runtime that spawned the process
	ID string

	// Host and Port identify that runtime
	Host string
	Port uint16
}

// String returns id@host:port, or the bare id when no address is set.
func (p PID) String() string {
	if p.Host == "" {
		return p.ID
	}
	return fmt.Sprintf("%s@%s:%d", p.ID, p.Host, p.Port)
}

// IsZero reports whether p names nothing.
func (p PID) IsZero() bool {
	return p.ID == ""
}

// ParsePID parses the String form of a PID.
func ParsePID(s string) (PID, error) {
	if s == "" {
		return PID{}, errors.New("empty pid")
	}

	at := strings.LastIndex(s, "@")
	if at < 0 {
		return PID{ID: s}, nil
	}

	id, addr := s[:at], s[at+1:]
	if id == "" {
		return PID{}, errors.Errorf("invalid pid '%s': missing id", s)
	}

	colon := strings.LastIndex(addr, ":")
	if colon < 0 {
		return PID{}, errors.Errorf("invalid pid '%s': missing port", s)
	}

	port, err := strconv.ParseUint(addr[colon+1:], 10, 16)
	if err != nil {
		return PID{}, errors.Wrapf(err, "invalid pid '%s'", s)
	}

	return PID{ID: id, Host: addr[:colon], Port: uint16(port)}, nil
}
