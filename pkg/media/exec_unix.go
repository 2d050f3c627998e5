//go:build unix

package media

import (
	"os"

	"golang.org/x/sys/unix"
)

func suspend(p *os.Process) error {
	return p.Signal(unix.SIGSTOP)
}
