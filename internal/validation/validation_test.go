package validation

import (
	"testing"
	"time"

	"github.com/mochilink/mochi-sync/internal/domain"
)

func TestValidateServerID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid simple id", "survival", false},
		{"valid id with numbers", "lobby2", false},
		{"valid id with hyphen", "skyblock-eu", false},
		{"valid id with underscore", "creative_flat", false},
		{"empty", "", true},
		{"starts with number", "1survival", true},
		{"starts with hyphen", "-survival", true},
		{"contains space", "survival one", true},
		{"contains dot", "survival.eu", true},
		{"too long", "srv-" + string(make([]byte, 64)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePlayerID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid username", "Steve", false},
		{"valid username with underscore", "The_Greg", false},
		{"valid username with numbers", "xX42Xx", false},
		{"valid dashed uuid", "069a79f4-44e9-4726-a5be-fca90e38aaf5", false},
		{"valid compact uuid", "069a79f444e94726a5befca90e38aaf5", false},
		{"valid uppercase uuid", "069A79F4-44E9-4726-A5BE-FCA90E38AAF5", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", "seventeen_letters", true},
		{"contains hyphen", "not-a-name", true},
		{"malformed uuid", "069a79f4-44e9-4726-a5be-fca90e38aaf", true},
		{"uuid with bad hex", "069a79f4-44e9-4726-a5be-fca90e38aazz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlayerID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlayerID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBanTarget(t *testing.T) {
	tests := []struct {
		name    string
		banType domain.BanType
		target  string
		wantErr bool
	}{
		{"player name", domain.BanTypePlayer, "Greg", false},
		{"player uuid", domain.BanTypePlayer, "069a79f4-44e9-4726-a5be-fca90e38aaf5", false},
		{"player empty", domain.BanTypePlayer, "", true},
		{"player with space", domain.BanTypePlayer, "Greg The", true},
		{"ipv4", domain.BanTypeIP, "203.0.113.7", false},
		{"ipv6", domain.BanTypeIP, "2001:db8::1", false},
		{"cidr", domain.BanTypeIP, "203.0.113.0/24", false},
		{"ip garbage", domain.BanTypeIP, "not-an-ip", true},
		{"device id", domain.BanTypeDevice, "a1:b2:c3:d4", false},
		{"device id with underscore", domain.BanTypeDevice, "hw_0042", false},
		{"device id with slash", domain.BanTypeDevice, "hw/0042", true},
		{"unknown ban type", domain.BanType("mac"), "whatever", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBanTarget(tt.banType, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBanTarget(%q, %q) error = %v, wantErr %v", tt.banType, tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBanDuration(t *testing.T) {
	if err := ValidateBanDuration(0); err != nil {
		t.Errorf("zero duration should be valid (permanent): %v", err)
	}
	if err := ValidateBanDuration(time.Hour); err != nil {
		t.Errorf("positive duration should be valid: %v", err)
	}
	if err := ValidateBanDuration(-time.Second); err == nil {
		t.Error("negative duration should be rejected")
	}
}

func TestValidateExecutor(t *testing.T) {
	if err := ValidateExecutor("admin"); err != nil {
		t.Errorf("simple executor should be valid: %v", err)
	}
	if err := ValidateExecutor(""); err == nil {
		t.Error("empty executor should be rejected")
	}
}
