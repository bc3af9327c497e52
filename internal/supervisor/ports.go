package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FindListener returns the pid of a process listening on the given local TCP
// port by walking /proc. Used for startup reconstruction and orphan detection.
func (l *OSLauncher) FindListener(port int) (int, bool) {
	inodes := listeningInodes(port)
	if len(inodes) == 0 {
		return 0, false
	}

	procs, err := os.ReadDir("/proc")
	if err != nil {
		return 0, false
	}

	for _, entry := range procs {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// Not ours to inspect
			continue
		}

		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			for _, inode := range inodes {
				if link == fmt.Sprintf("socket:[%s]", inode) {
					return pid, true
				}
			}
		}
	}

	return 0, false
}

// listeningInodes collects socket inodes in LISTEN state on the given port
// from /proc/net/tcp and /proc/net/tcp6
func listeningInodes(port int) []string {
	var inodes []string
	hexPort := fmt.Sprintf("%04X", port)

	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		data, err := os.ReadFile(table)
		if err != nil {
			continue
		}

		lines := strings.Split(string(data), "\n")
		for _, line := range lines[1:] {
			fields := strings.Fields(line)
			if len(fields) < 10 {
				continue
			}
			// local_address is addr:port in hex; state 0A is LISTEN
			local := fields[1]
			state := fields[3]
			if state != "0A" || !strings.HasSuffix(local, ":"+hexPort) {
				continue
			}
			inodes = append(inodes, fields[9])
		}
	}

	return inodes
}
