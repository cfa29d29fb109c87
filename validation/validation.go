package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidInput marks input that failed validation. No side effects have
// been attempted when it is returned.
var ErrInvalidInput = errors.New("invalid input")

var (
	domainPattern    = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	bodyLimitPattern = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)
	hostPathPattern  = regexp.MustCompile(`^/[A-Za-z0-9._/-]*$`)
)

// MaxUsernameLength is the useradd limit on Linux.
const MaxUsernameLength = 32

// Invalidf returns an error wrapping ErrInvalidInput.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Domain accepts letters, digits, dot and hyphen only.
func Domain(domain string) error {
	if domain == "" {
		return Invalidf("domain is required")
	}
	if !domainPattern.MatchString(domain) {
		return Invalidf("domain %q may only contain letters, digits, dot and hyphen", domain)
	}
	if strings.HasPrefix(domain, ".") || strings.HasPrefix(domain, "-") || strings.Contains(domain, "..") {
		return Invalidf("domain %q is malformed", domain)
	}
	return nil
}

// Username accepts [A-Za-z0-9_]+.
func Username(username string) error {
	if username == "" {
		return Invalidf("username is required")
	}
	if len(username) > MaxUsernameLength {
		return Invalidf("username longer than %d characters", MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return Invalidf("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// BackendHost accepts an IPv4 address or a hostname in the domain character
// class. IPv6 literals are refused: host:port would be ambiguous in
// fastcgi_pass.
func BackendHost(host string) error {
	if strings.Contains(host, ":") {
		return Invalidf("backend host %q must be an IPv4 address or hostname", host)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if err := Domain(host); err != nil {
		return Invalidf("backend host %q is not an IP address or hostname", host)
	}
	return nil
}

// Port parses a TCP port in the range 1-65535.
func Port(port string) (int, error) {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return 0, Invalidf("port %q must be a number between 1 and 65535", port)
	}
	return n, nil
}

// BodyLimit accepts an nginx size such as 128m or 1024.
func BodyLimit(limit string) error {
	if !bodyLimitPattern.MatchString(limit) {
		return Invalidf("body size limit %q must look like 128m", limit)
	}
	return nil
}

// HostPath accepts an absolute, clean path made of safe characters. It is used
// for paths that end up inside generated configuration text.
func HostPath(path string) error {
	if !hostPathPattern.MatchString(path) {
		return Invalidf("path %q must be absolute and contain only letters, digits, '.', '_', '-' and '/'", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." || part == "." {
			return Invalidf("path %q must not contain relative segments", path)
		}
	}
	return nil
}

// Password rejects secrets that cannot be passed to chpasswd as "user:secret".
func Password(password string) error {
	if password == "" {
		return Invalidf("password is required")
	}
	for _, r := range password {
		if r == ':' || unicode.IsControl(r) {
			return Invalidf("password must not contain ':' or control characters")
		}
	}
	return nil
}
