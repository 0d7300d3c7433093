//go:build linux

package procinit

import (
	"fmt"
	"strings"

	"github.com/moby/sys/capability"
)

// defaultCaps is the same allow-list Docker/runc ship by default: enough
// for a normal unprivileged workload to chown its own files, bind
// low-numbered ports, and change into its own root, nothing more.
var defaultCaps = []string{
	"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID", "CAP_FOWNER",
	"CAP_MKNOD", "CAP_NET_RAW", "CAP_SETGID", "CAP_SETUID",
	"CAP_SETFCAP", "CAP_SETPCAP", "CAP_NET_BIND_SERVICE",
	"CAP_SYS_CHROOT", "CAP_KILL", "CAP_AUDIT_READ", "CAP_AUDIT_WRITE",
}

var capNameToID = func() map[string]capability.Cap {
	m := make(map[string]capability.Cap)
	for _, c := range capability.ListKnown() {
		// Cap.String() yields the bare lowercase name ("chown"); key the
		// map by the CAP_-prefixed form defaultCaps uses.
		m["CAP_"+strings.ToUpper(c.String())] = c
	}
	return m
}()

func resolveCaps(names []string) ([]capability.Cap, error) {
	out := make([]capability.Cap, 0, len(names))
	for _, name := range names {
		id, ok := capNameToID[name]
		if !ok {
			return nil, fmt.Errorf("procinit: unknown capability %q", name)
		}
		out = append(out, id)
	}
	return out, nil
}

// DropToDefaultCapabilities restricts the calling process (meant to be
// called from the container init, after namespace entry and before
// execve) to defaultCaps across every capability set, and clears ambient
// capabilities entirely.
func DropToDefaultCapabilities() error {
	final, err := resolveCaps(defaultCaps)
	if err != nil {
		return err
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("procinit: get process capabilities: %w", err)
	}

	caps.Clear(capability.BOUNDS)
	caps.Set(capability.BOUNDING, final...)

	caps.Clear(capability.CAPS)
	caps.Set(capability.PERMITTED, final...)
	caps.Set(capability.EFFECTIVE, final...)
	caps.Set(capability.INHERITABLE, final...)

	caps.Clear(capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("procinit: apply capabilities: %w", err)
	}
	return nil
}
