//go:build linux

package namespace

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// IDMapEntry is a single line of a uid_map/gid_map file: length consecutive
// IDs starting at Inside map to length consecutive IDs starting at Outside.
type IDMapEntry struct {
	Inside  int
	Outside int
	Length  int
}

func (e IDMapEntry) line() string {
	return fmt.Sprintf("%d %d %d\n", e.Inside, e.Outside, e.Length)
}

// WriteUIDMap writes /proc/<pid>/uid_map for a child sitting in a new user
// namespace. It must be called exactly once per child before that child
// attempts any operation that depends on the mapping being in place.
func WriteUIDMap(pid int, entries []IDMapEntry) error {
	return writeIDMap(fmt.Sprintf("/proc/%d/uid_map", pid), entries)
}

// WriteGIDMap writes /proc/<pid>/gid_map. Per user_namespaces(7), an
// unprivileged writer must first disable setgroups(2) in the target
// namespace; callers should call DenySetgroups(pid) before this.
func WriteGIDMap(pid int, entries []IDMapEntry) error {
	return writeIDMap(fmt.Sprintf("/proc/%d/gid_map", pid), entries)
}

// DenySetgroups writes "deny" to /proc/<pid>/setgroups, required on modern
// kernels before an unprivileged process may write gid_map.
func DenySetgroups(pid int) error {
	path := fmt.Sprintf("/proc/%d/setgroups", pid)
	return os.WriteFile(path, []byte("deny"), 0o644)
}

func writeIDMap(path string, entries []IDMapEntry) error {
	if len(entries) == 0 {
		return &Error{Code: InvalidArgument}
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return &Error{Code: NotInNamespace, Name: path}
	}
	var buf strings.Builder
	for _, e := range entries {
		buf.WriteString(e.line())
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return &Error{Code: OsError, Name: path}
	}
	return nil
}

// IdentityMapping returns the single-entry mapping used when running as
// root: container uid/gid 0 maps onto host uid/gid 0. Only that one id is
// mapped (length 1).
func IdentityMapping() []IDMapEntry {
	return []IDMapEntry{{Inside: 0, Outside: 0, Length: 1}}
}

// RootlessMapping builds the uid or gid mapping used by unprivileged
// callers: container root is mapped onto the first subuid/subgid range
// owned by the current user, and the caller's own id is mapped onto
// itself so files it owns stay accessible from inside the namespace. This
// mirrors what newuidmap/newgidmap would be told to do.
func RootlessMapping(subStart, subLen, selfID int) []IDMapEntry {
	return []IDMapEntry{
		{Inside: 0, Outside: subStart, Length: subLen},
		{Inside: selfID, Outside: selfID, Length: 1},
	}
}

// SetupPrivilegedIDMappings configures uid_map/gid_map for pid using the
// identity mapping (container uid/gid 0 onto host uid/gid 0), the
// composition a privileged (root) caller uses in place of the
// newuidmap/newgidmap dance SetupRootlessIDMappings performs. setgroups
// must be denied before gid_map can be written by anyone but root acting
// on its own namespace, so DenySetgroups runs first; a missing setgroups
// file (older kernels) is ignored.
func SetupPrivilegedIDMappings(pid int) error {
	if err := DenySetgroups(pid); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := WriteUIDMap(pid, IdentityMapping()); err != nil {
		return err
	}
	return WriteGIDMap(pid, IdentityMapping())
}

// SetupRootlessIDMappings configures uid_map/gid_map for pid using the
// newuidmap/newgidmap setuid helpers and /etc/subuid /etc/subgid, the
// mechanism rootless container runtimes use because an unprivileged
// process cannot write a 0-based mapping directly.
func SetupRootlessIDMappings(pid int) error {
	newUIDMap, errUID := exec.LookPath("newuidmap")
	newGIDMap, errGID := exec.LookPath("newgidmap")
	if errUID != nil || errGID != nil {
		return &Error{Code: PermissionDenied, Name: "newuidmap/newgidmap not found"}
	}

	usr, err := user.Current()
	if err != nil {
		return &Error{Code: OsError, Name: "user.Current"}
	}

	euid := os.Geteuid()
	egid := os.Getegid()

	subUIDStart, subUIDLen, err := firstSubidRange("/etc/subuid", usr.Username)
	if err != nil {
		return &Error{Code: InvalidArgument, Name: "/etc/subuid"}
	}
	subGIDStart, subGIDLen, err := firstSubidRange("/etc/subgid", usr.Username)
	if err != nil {
		return &Error{Code: InvalidArgument, Name: "/etc/subgid"}
	}

	_ = DenySetgroups(pid)

	uidArgs := append([]string{strconv.Itoa(pid)}, mappingArgs(RootlessMapping(subUIDStart, subUIDLen, euid))...)
	gidArgs := append([]string{strconv.Itoa(pid)}, mappingArgs(RootlessMapping(subGIDStart, subGIDLen, egid))...)

	if out, err := exec.Command(newUIDMap, uidArgs...).CombinedOutput(); err != nil {
		return &Error{Code: OsError, Name: "newuidmap: " + string(out)}
	}
	if out, err := exec.Command(newGIDMap, gidArgs...).CombinedOutput(); err != nil {
		return &Error{Code: OsError, Name: "newgidmap: " + string(out)}
	}
	return nil
}

func mappingArgs(entries []IDMapEntry) []string {
	args := make([]string, 0, len(entries)*3)
	for _, e := range entries {
		args = append(args, strconv.Itoa(e.Inside), strconv.Itoa(e.Outside), strconv.Itoa(e.Length))
	}
	return args
}

func firstSubidRange(file, username string) (start, length int, err error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 || parts[0] != username {
			continue
		}
		start64, err1 := strconv.ParseInt(parts[1], 10, 64)
		len64, err2 := strconv.ParseInt(parts[2], 10, 64)
		if err1 != nil || err2 != nil || start64 < 0 || len64 <= 0 {
			continue
		}
		return int(start64), int(len64), nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", file, err)
	}
	return 0, 0, fmt.Errorf("no %s entry for user %q", filepath.Base(file), username)
}
