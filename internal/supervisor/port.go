package supervisor

import (
	"fmt"
	"net"
	"strconv"
)

// PortConflictError reports a descriptor whose port is already bound by
// another process. Fatal for that service; siblings are unaffected by
// the failed spawn itself.
type PortConflictError struct {
	Service string
	Port    int
	Err     error
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("service %s: port %d already in use", e.Service, e.Port)
}

func (e *PortConflictError) Unwrap() error { return e.Err }

// checkPortFree bind-tests the wildcard address. The check is a
// best-effort guard, not an atomic reservation: an external actor can
// still grab the port between check and spawn.
func checkPortFree(name string, port int) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return &PortConflictError{Service: name, Port: port, Err: err}
	}
	_ = ln.Close()
	return nil
}
