//go:build !unix

package media

import (
	"errors"
	"os"
)

func suspend(*os.Process) error {
	return errors.New("pausing is not supported on this platform")
}
