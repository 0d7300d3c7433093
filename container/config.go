//go:build linux

package container

import "github.com/sakamoro/alice-container/cgroup"

// Mount is a host directory bound into the container's rootfs before
// pivot_root, at the path Dest relative to the rootfs root.
type Mount struct {
	Host string
	Dest string
	RO   bool
}

// Config describes the resources and environment a container is created
// with. Command[0] is the entry point executed after namespace setup.
type Config struct {
	Rootfs      string
	Hostname    string
	Nameservers []string
	CPULimitUs  uint64
	CPUPeriodUs uint64
	MemoryLimit uint64
	IO          *cgroup.IoConfig
	Mounts      []Mount
	Command     []string
	Env         []string
}
