// Package nmea formats heading sentences for marine/avionics consumers and
// pushes them out at a bounded rate.
package nmea

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sentence is a parsed NMEA 0183 sentence.
type Sentence struct {
	Talker string
	Type   string
	// Fields excludes the address field ($ttsss).
	Fields []string
}

// Checksum XORs every byte of payload (the text between '$' and '*').
func Checksum(payload string) byte {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

func frame(payload string) string {
	return fmt.Sprintf("$%s*%02X\r\n", payload, Checksum(payload))
}

// HDM builds a magnetic heading sentence, e.g. "$HCHDM,355.0,M*2A\r\n".
// deg is normalized into [0,360).
func HDM(talker string, deg float64) (string, error) {
	talker = strings.ToUpper(strings.TrimSpace(talker))
	if len(talker) != 2 {
		return "", fmt.Errorf("nmea: talker %q must be 2 characters", talker)
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return "", fmt.Errorf("nmea: heading is not finite")
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// 359.96 would print as "360.0".
	if deg >= 359.95 {
		deg = 0
	}
	return frame(talker + "HDM," + strconv.FormatFloat(deg, 'f', 1, 64) + ",M"), nil
}

// Parse validates the checksum and splits a sentence into fields.
func Parse(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, fmt.Errorf("nmea: bad checksum")
	}
	if Checksum(payload) != want[0] {
		return Sentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	addr := parts[0]
	if len(addr) != 5 {
		return Sentence{}, fmt.Errorf("nmea: bad address field %q", addr)
	}
	return Sentence{
		Talker: strings.ToUpper(addr[:2]),
		Type:   strings.ToUpper(addr[2:]),
		Fields: parts[1:],
	}, nil
}
