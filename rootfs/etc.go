//go:build linux

package rootfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// SetHostname writes <root>/etc/hostname.
func (r *Root) SetHostname(hostname string) error {
	path := filepath.Join(r.Path, "etc", "hostname")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	if err := os.WriteFile(path, []byte(hostname+"\n"), 0o644); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	return nil
}

// SetHosts writes <root>/etc/hosts with loopback entries for hostname.
func (r *Root) SetHosts(hostname string) error {
	path := filepath.Join(r.Path, "etc", "hosts")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	content := fmt.Sprintf("127.0.0.1 localhost\n::1 localhost\n127.0.0.1 %s\n", hostname)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	return nil
}

// SetResolvConf writes <root>/etc/resolv.conf with one nameserver line per
// entry in nameservers.
func (r *Root) SetResolvConf(nameservers []string) error {
	path := filepath.Join(r.Path, "etc", "resolv.conf")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	var content string
	for _, ns := range nameservers {
		content += fmt.Sprintf("nameserver %s\n", ns)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &Error{Code: OsError, Path: path, Err: err}
	}
	return nil
}
