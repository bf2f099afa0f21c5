// Package validation provides validation functions for coordinator entities.
// Player identifier rules follow Mojang's account constraints (usernames and
// UUIDs); IP and device targets are validated structurally.
package validation

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// isHex returns true if the byte is a lowercase hex digit.
func isHex(b byte) bool {
	return isNum(b) || (b >= 'a' && b <= 'f')
}

// ValidateServerID validates a server identifier.
// Server ids must start with a letter and contain only letters, numbers,
// hyphens, or underscores.
func ValidateServerID(id string) error {
	if id == "" {
		return fmt.Errorf("server id must not be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("server id must be at most 64 characters")
	}
	if !isAlpha(id[0]) {
		return fmt.Errorf("server id must start with a letter")
	}
	for _, b := range []byte(id) {
		if !isAlphaNum(b) && b != '-' && b != '_' {
			return fmt.Errorf("server ids can only contain letters, numbers, hyphens, or underscores")
		}
	}
	return nil
}

// ValidatePlayerID validates a player identifier: either a Mojang username
// (3-16 characters of letters, numbers, underscores) or a UUID with or
// without dashes.
func ValidatePlayerID(id string) error {
	if id == "" {
		return fmt.Errorf("player id must not be empty")
	}
	if isUUID(id) {
		return nil
	}
	if len(id) < 3 || len(id) > 16 {
		return fmt.Errorf("player name must be 3-16 characters (or a UUID)")
	}
	for _, b := range []byte(id) {
		if !isAlphaNum(b) && b != '_' {
			return fmt.Errorf("player names can only contain letters, numbers, or underscores")
		}
	}
	return nil
}

// isUUID reports whether s looks like a Minecraft profile UUID,
// dashed (36 chars) or compact (32 chars).
func isUUID(s string) bool {
	s = strings.ToLower(s)
	switch len(s) {
	case 32:
		for _, b := range []byte(s) {
			if !isHex(b) {
				return false
			}
		}
		return true
	case 36:
		for i, b := range []byte(s) {
			if i == 8 || i == 13 || i == 18 || i == 23 {
				if b != '-' {
					return false
				}
				continue
			}
			if !isHex(b) {
				return false
			}
		}
		return true
	}
	return false
}

// ValidateBanTarget validates a ban target according to its ban type.
// Player targets follow player id rules, ip targets must parse as an IP
// address or CIDR, device targets are opaque hardware ids with a bounded
// charset.
func ValidateBanTarget(banType domain.BanType, target string) error {
	if target == "" {
		return fmt.Errorf("target must not be empty")
	}
	switch banType {
	case domain.BanTypePlayer:
		return ValidatePlayerID(target)
	case domain.BanTypeIP:
		if ip := net.ParseIP(target); ip != nil {
			return nil
		}
		if _, _, err := net.ParseCIDR(target); err == nil {
			return nil
		}
		return fmt.Errorf("must be a valid IP address or CIDR")
	case domain.BanTypeDevice:
		if len(target) > 128 {
			return fmt.Errorf("device id must be at most 128 characters")
		}
		for _, b := range []byte(target) {
			if !isAlphaNum(b) && b != '-' && b != '_' && b != ':' {
				return fmt.Errorf("device ids can only contain letters, numbers, hyphens, underscores, or colons")
			}
		}
		return nil
	default:
		return fmt.Errorf("invalid ban type: %s", banType)
	}
}

// ValidateBanDuration validates a ban duration. Zero means permanent;
// negative durations are rejected.
func ValidateBanDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// ValidateExecutor validates the executor attribution on a mutation request.
func ValidateExecutor(executor string) error {
	if executor == "" {
		return fmt.Errorf("executor must not be empty")
	}
	if len(executor) > 64 {
		return fmt.Errorf("executor must be at most 64 characters")
	}
	return nil
}
