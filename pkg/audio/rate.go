package audio

import (
	"fmt"
	"strings"
)

// SystemType identifies the video/timing system of the emulated machine. The
// audio DAC clock, and with it the source sample rate, is derived from it.
type SystemType int

const (
	SystemNTSC SystemType = iota
	SystemPAL
	SystemMPAL
)

// String returns the human-readable name of the system type.
func (s SystemType) String() string {
	switch s {
	case SystemNTSC:
		return "NTSC"
	case SystemPAL:
		return "PAL"
	case SystemMPAL:
		return "MPAL"
	default:
		return fmt.Sprintf("SystemType(%d)", int(s))
	}
}

// ParseSystem parses a system name such as "ntsc", case-insensitively.
func ParseSystem(name string) (SystemType, error) {
	switch strings.ToLower(name) {
	case "ntsc":
		return SystemNTSC, nil
	case "pal":
		return SystemPAL, nil
	case "mpal":
		return SystemMPAL, nil
	}
	return 0, fmt.Errorf("audio: unknown system type %q", name)
}

// DAC clock numerators per system type.
const (
	clockNTSC = 48681812
	clockPAL  = 49656530
	clockMPAL = 48628316
)

// DacrateFrequency derives the source sample rate from the DAC rate register
// for the given system. ok is false for an unknown system type, in which case
// the caller should keep its current frequency.
func DacrateFrequency(system SystemType, dacrate uint32) (freq int, ok bool) {
	div := int64(dacrate) + 1
	switch system {
	case SystemNTSC:
		return int(clockNTSC / div), true
	case SystemPAL:
		return int(clockPAL / div), true
	case SystemMPAL:
		return int(clockMPAL / div), true
	}
	return 0, false
}

// SelectOutputRate picks the output device rate for a source running at
// sourceFreq. A non-zero override is returned unchanged; otherwise the rate is
// chosen by kHz bracket.
func SelectOutputRate(sourceFreq, override int) int {
	if override != 0 {
		return override
	}
	switch khz := sourceFreq / 1000; {
	case khz <= 11:
		return 11025
	case khz <= 22:
		return 22050
	case khz <= 32:
		return 32000
	default:
		return 44100
	}
}
