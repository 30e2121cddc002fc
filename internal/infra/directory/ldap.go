package directory

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"expiry_notifier/internal/infra/config"
)

// NewLDAPConnection dials the directory, applies the per-request timeout and
// binds with the configured service account. An empty bind DN keeps the
// connection anonymous.
func NewLDAPConnection(cfg config.LDAPConfig) (*ldap.Conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout}),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec // opt-in for lab directories
	}

	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory %s: %w", cfg.URL, err)
	}
	conn.SetTimeout(cfg.Timeout)

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to bind to directory as %s: %w", cfg.BindDN, err)
		}
	}

	return conn, nil
}

// fileTimeEpoch is the Windows FILETIME epoch used by accountExpires.
var fileTimeEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// neverExpires is the accountExpires sentinel for accounts without an expiry.
const neverExpires int64 = 0x7FFFFFFFFFFFFFFF

// earliestExpiry is FILETIME 1; 0 means the account never expires.
var earliestExpiry = fileTimeEpoch.Add(100 * time.Nanosecond)

// ToFileTime converts t to 100-nanosecond intervals since 1601-01-01 UTC.
func ToFileTime(t time.Time) int64 {
	secs := t.UTC().Unix() - fileTimeEpoch.Unix()
	return secs*10_000_000 + int64(t.UTC().Nanosecond()/100)
}

// FromFileTime converts an accountExpires value back to a time. ok is false
// for the "never expires" sentinels.
func FromFileTime(ft int64) (t time.Time, ok bool) {
	if ft <= 0 || ft == neverExpires {
		return time.Time{}, false
	}
	secs := ft / 10_000_000
	nanos := (ft % 10_000_000) * 100
	return time.Unix(fileTimeEpoch.Unix()+secs, nanos).UTC(), true
}
