package mqtt

import (
	"strings"
	"testing"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

func TestEffectiveClientID(t *testing.T) {
	b := config.BrokerConfig{ClientID: "bench-rig-01"}
	if got := effectiveClientID(b); got != "bench-rig-01" {
		t.Errorf("effectiveClientID() = %q, want %q", got, "bench-rig-01")
	}

	b.ClientID = ""
	first := effectiveClientID(b)
	if !strings.HasPrefix(first, generatedIDPrefix) {
		t.Errorf("generated ID %q missing prefix %q", first, generatedIDPrefix)
	}
	if second := effectiveClientID(b); second == first {
		t.Errorf("generated IDs collide: %q", first)
	}
}

func TestBuildConnectPacketAnonymous(t *testing.T) {
	b := config.BrokerConfig{
		ClientID:     "probe",
		KeepAlive:    60,
		CleanSession: true,
		Auth:         config.AuthConfig{Mode: config.AuthModeAnonymous},
	}

	cp := buildConnectPacket(b, "probe")
	if cp.ClientID != "probe" {
		t.Errorf("ClientID = %q, want %q", cp.ClientID, "probe")
	}
	if !cp.CleanStart {
		t.Error("CleanStart = false, want true")
	}
	if cp.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", cp.KeepAlive)
	}
	if cp.UsernameFlag || cp.PasswordFlag {
		t.Error("anonymous packet carries credential flags")
	}
	if cp.Properties != nil {
		t.Errorf("Properties = %+v, want nil", cp.Properties)
	}
}

func TestBuildConnectPacketUserPass(t *testing.T) {
	b := config.BrokerConfig{
		KeepAlive: 30,
		Auth: config.AuthConfig{
			Mode:     config.AuthModeUserPass,
			Username: "monitor",
			Password: "hunter2",
		},
	}

	cp := buildConnectPacket(b, "probe")
	if !cp.UsernameFlag || cp.Username != "monitor" {
		t.Errorf("Username = %q (flag %v), want %q", cp.Username, cp.UsernameFlag, "monitor")
	}
	if !cp.PasswordFlag || string(cp.Password) != "hunter2" {
		t.Errorf("Password = %q (flag %v), want %q", cp.Password, cp.PasswordFlag, "hunter2")
	}
}

func TestBuildConnectPacketUserWithoutPassword(t *testing.T) {
	b := config.BrokerConfig{
		Auth: config.AuthConfig{
			Mode:     config.AuthModeUserPass,
			Username: "monitor",
		},
	}

	cp := buildConnectPacket(b, "probe")
	if !cp.UsernameFlag {
		t.Error("UsernameFlag = false, want true")
	}
	if cp.PasswordFlag {
		t.Error("PasswordFlag = true for empty password")
	}
}

func TestBuildConnectPacketEnhancedAuth(t *testing.T) {
	b := config.BrokerConfig{
		Auth: config.AuthConfig{
			Mode:   config.AuthModeEnhanced,
			Method: "K8S-SAT",
			Data:   "service-account-token",
		},
	}

	cp := buildConnectPacket(b, "probe")
	if cp.Properties == nil {
		t.Fatal("Properties = nil, want enhanced auth properties")
	}
	if cp.Properties.AuthMethod != "K8S-SAT" {
		t.Errorf("AuthMethod = %q, want %q", cp.Properties.AuthMethod, "K8S-SAT")
	}
	if string(cp.Properties.AuthData) != "service-account-token" {
		t.Errorf("AuthData = %q, want %q", cp.Properties.AuthData, "service-account-token")
	}
}

func TestBuildConnectPacketSessionExpiry(t *testing.T) {
	expiry := uint32(3600)
	b := config.BrokerConfig{SessionExpiry: &expiry}

	cp := buildConnectPacket(b, "probe")
	if cp.Properties == nil || cp.Properties.SessionExpiryInterval == nil {
		t.Fatal("SessionExpiryInterval not set")
	}
	if *cp.Properties.SessionExpiryInterval != 3600 {
		t.Errorf("SessionExpiryInterval = %d, want 3600", *cp.Properties.SessionExpiryInterval)
	}
}

func TestAutherFor(t *testing.T) {
	if a := autherFor(config.BrokerConfig{Auth: config.AuthConfig{Mode: config.AuthModeAnonymous}}); a != nil {
		t.Errorf("autherFor(anonymous) = %T, want nil", a)
	}
	if a := autherFor(config.BrokerConfig{Auth: config.AuthConfig{Mode: config.AuthModeUserPass}}); a != nil {
		t.Errorf("autherFor(userpass) = %T, want nil", a)
	}

	a := autherFor(config.BrokerConfig{
		Auth: config.AuthConfig{Mode: config.AuthModeEnhanced, Method: "K8S-SAT", Data: "token"},
	})
	if a == nil {
		t.Fatal("autherFor(enhanced) = nil, want Auther")
	}

	reply := a.Authenticate(nil)
	if reply.ReasonCode != authContinue {
		t.Errorf("ReasonCode = 0x%02x, want 0x%02x", reply.ReasonCode, authContinue)
	}
	if reply.Properties.AuthMethod != "K8S-SAT" {
		t.Errorf("AuthMethod = %q, want %q", reply.Properties.AuthMethod, "K8S-SAT")
	}
	if string(reply.Properties.AuthData) != "token" {
		t.Errorf("AuthData = %q, want %q", reply.Properties.AuthData, "token")
	}
}
