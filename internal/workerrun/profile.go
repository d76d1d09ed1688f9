package workerrun

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Profile is the worker's declared capacity, reported on every heartbeat
// and poll, mirroring the original's num_cpus/get_memory_bytes/
// fs2::free_space trio.
type Profile struct {
	LogicalCores  int32
	MemoryBytes   int64
	FreeDiskBytes int64
}

// CollectProfile reads the current host's resource profile. dir is the
// filesystem whose free space is reported (the worker's build directory).
func CollectProfile(dir string) (Profile, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Profile{}, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Profile{}, err
	}

	return Profile{
		LogicalCores:  int32(runtime.NumCPU()),
		MemoryBytes:   int64(si.Totalram) * int64(si.Unit),
		FreeDiskBytes: int64(st.Bavail) * int64(st.Bsize),
	}, nil
}
