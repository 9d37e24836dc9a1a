//go:build !linux

package gpio

import (
	"fmt"
	"io"
)

func openLine(chipName, lineName string, onLevel func(high bool)) (io.Closer, bool, error) {
	return nil, false, fmt.Errorf("gpio unsupported on this platform")
}
