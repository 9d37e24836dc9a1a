//go:build linux

package gpio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const debounce = 10 * time.Millisecond

type cdevLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (l *cdevLine) Close() error {
	err := l.line.Close()
	_ = l.chip.Close()
	return err
}

func openLine(chipName, lineName string, onLevel func(high bool)) (io.Closer, bool, error) {
	if strings.TrimSpace(lineName) == "" {
		return nil, false, fmt.Errorf("line is empty")
	}

	chipCandidates := []string{chipName}
	if chipName == "" {
		chipCandidates = nil
		entries, _ := os.ReadDir("/dev")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "gpiochip") {
				chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
			}
		}
	}

	handler := func(evt gpiocdev.LineEvent) {
		onLevel(evt.Type == gpiocdev.LineEventRisingEdge)
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := strconv.Atoi(lineName)
		if err != nil {
			offset, err = chip.FindLine(lineName)
			if err != nil {
				_ = chip.Close()
				continue
			}
		}
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer("compass-ng"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		v, err := line.Value()
		if err != nil {
			_ = line.Close()
			_ = chip.Close()
			return nil, false, err
		}
		return &cdevLine{chip: chip, line: line}, v != 0, nil
	}
	return nil, false, fmt.Errorf("line %q not found (or busy)", lineName)
}
