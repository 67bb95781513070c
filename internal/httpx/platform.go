package httpx

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformMac     Platform = "mac"
	PlatformWindows Platform = "win"
	PlatformLinux   Platform = "linux"
	PlatformWeb     Platform = "web"
)

// DeviceMeta describes the calling client. It only feeds audit logs and is
// never trusted for authentication.
type DeviceMeta struct {
	DeviceID   string   `header:"X-Device-Id"      validate:"omitempty,min=8,max=128"` // allow UUID/ULID/custom
	DeviceName string   `header:"X-Device-Name"    validate:"omitempty,min=1,max=64"`  // human label
	Platform   Platform `header:"X-Client-Platform" validate:"omitempty,oneof=ios android mac win linux web"`
	AppVersion string   `header:"X-App-Version"    validate:"omitempty,min=1,max=32"` // optional semantic version
	UserAgent  string   `header:"-"                validate:"omitempty,max=256"`      // from r.UserAgent()
	IP         string   `header:"-"                validate:"omitempty,max=64"`       // RemoteAddr after chi RealIP
}

// ClientMeta reads DeviceMeta from the request. Header values that fail
// validation are dropped rather than rejected.
func ClientMeta(r *http.Request, v *validator.Validate) DeviceMeta {
	meta := DeviceMeta{
		DeviceID:   strings.TrimSpace(r.Header.Get("X-Device-Id")),
		DeviceName: strings.TrimSpace(r.Header.Get("X-Device-Name")),
		Platform:   Platform(strings.ToLower(strings.TrimSpace(r.Header.Get("X-Client-Platform")))),
		AppVersion: strings.TrimSpace(r.Header.Get("X-App-Version")),
		UserAgent:  truncate(r.UserAgent(), 256),
		IP:         remoteIP(r.RemoteAddr),
	}
	if err := v.Struct(meta); err != nil {
		return DeviceMeta{UserAgent: meta.UserAgent, IP: meta.IP}
	}
	return meta
}

func (m DeviceMeta) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("ip", m.IP),
		zap.String("user_agent", m.UserAgent),
	}
	if m.DeviceID != "" {
		fields = append(fields, zap.String("device_id", m.DeviceID))
	}
	if m.Platform != "" {
		fields = append(fields, zap.String("platform", string(m.Platform)))
	}
	if m.AppVersion != "" {
		fields = append(fields, zap.String("app_version", m.AppVersion))
	}
	return fields
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return truncate(addr, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
