package aprs

import (
	"strconv"
	"strings"
)

// Passcode computes the APRS-IS passcode for a callsign.
// The SSID is ignored and the result is always in 0..32767.
func Passcode(callsign string) string {
	base, _, _ := strings.Cut(callsign, "-")
	base = strings.ToUpper(base)

	hash := uint16(0x73e2)
	for i := 0; i < len(base); i++ {
		if i%2 == 0 {
			hash ^= uint16(base[i]) << 8
		} else {
			hash ^= uint16(base[i])
		}
	}
	return strconv.Itoa(int(hash & 0x7fff))
}
