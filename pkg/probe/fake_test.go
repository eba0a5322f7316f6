package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResponse struct {
	out []byte
	err error
}

// fakeExec answers commands from a table keyed by the joined command line.
type fakeExec struct {
	mu        sync.Mutex
	binaries  map[string]bool
	responses map[string]fakeResponse
	block     map[string]bool
	calls     []string
	paths     []string
	lookups   []string
	envs      [][]string
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		binaries:  map[string]bool{},
		responses: map[string]fakeResponse{},
		block:     map[string]bool{},
	}
}

func (f *fakeExec) on(cmdline, out string, err error) *fakeExec {
	f.responses[cmdline] = fakeResponse{out: []byte(out), err: err}
	f.binaries[strings.Fields(cmdline)[0]] = true
	return f
}

// LookPath installs every known binary under /usr/bin and records each
// lookup.
func (f *fakeExec) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, name)
	base := filepath.Base(name)
	if f.binaries[base] && (name == base || filepath.Dir(name) == "/usr/bin") {
		return "/usr/bin/" + base, nil
	}
	return "", errors.New("executable file not found")
}

func (f *fakeExec) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmdline := strings.Join(append([]string{filepath.Base(name)}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	f.paths = append(f.paths, name)
	f.envs = append(f.envs, env)
	resp, ok := f.responses[cmdline]
	blocked := f.block[cmdline]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errors.New("exec: " + name + ": not found")
	}
	return resp.out, resp.err
}

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status" }
func (e exitError) ExitCode() int { return e.code }

// writeRoot lays out files under a temp dir used as the host root.
func writeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return root
}

func testHost(root string, exec *fakeExec) *Host {
	return NewHost(Options{Root: root, Exec: exec, ProbeTimeout: 2 * time.Second})
}

const sampleMeminfo = `MemTotal:        8048836 kB
MemFree:          512344 kB
MemAvailable:    4021112 kB
Buffers:          201212 kB
Cached:          3010004 kB
SwapCached:            0 kB
`

const sampleCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) CPU E5-2686 v4 @ 2.30GHz

processor	: 1
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) CPU E5-2686 v4 @ 2.30GHz
`

const sampleOSRelease = `NAME="Ubuntu"
VERSION="22.04.4 LTS (Jammy Jellyfish)"
ID=ubuntu
VERSION_ID="22.04"
PRETTY_NAME="Ubuntu 22.04.4 LTS"
`

const sampleTop = `top - 10:00:00 up 1 day,  1 user,  load average: 0.52, 0.40, 0.31
%Cpu(s):  1.0 us,  0.5 sy,  0.0 ni, 98.0 id,  0.5 wa,  0.0 hi,  0.0 si,  0.0 st

top - 10:00:01 up 1 day,  1 user,  load average: 0.52, 0.40, 0.31
%Cpu(s): 10.2 us,  2.1 sy,  0.0 ni, 87.25 id,  0.4 wa,  0.0 hi,  0.0 si,  0.0 st
`

const sampleDF = `Filesystem      Size  Used Avail Use% Mounted on
/dev/root        29G   25G  4.2G  87% /
/dev/loop0       64M   64M     0 100% /snap/core20/2105
/dev/nvme1n1p1  100G   10G   90G  10% /data
tmpfs           3.9G     0  3.9G   0% /dev/shm
`

const samplePSCPU = `  4242 www-data 55.0  2.1 php-fpm
  1001 mysql    20.5 30.2 mysqld
   812 root      3.0  0.5 containerd
   900 root      1.0  0.1 sshd
     1 root      0.5  0.2 systemd
   777 root      0.1  0.1 cron
`

const samplePSMem = `  1001 mysql    20.5 30.2 mysqld
  5000 elastic   0.8 20.0 java
  4242 www-data 55.0  2.1 php-fpm
   812 root      3.0  0.5 containerd
     1 root      0.5  0.2 systemd
`

func healthyRoot(t *testing.T) string {
	return writeRoot(t, map[string]string{
		"etc/os-release":            sampleOSRelease,
		"proc/sys/kernel/osrelease": "5.15.0-105-generic\n",
		"proc/sys/kernel/hostname":  "web-01\n",
		"proc/cpuinfo":              sampleCPUInfo,
		"proc/meminfo":              sampleMeminfo,
		"proc/loadavg":              "0.52 0.40 0.31 1/230 4242\n",
		"proc/uptime":               "93784.21 180000.00\n",
		"proc/1/status":             "Name: systemd\n",
		"proc/42/status":            "Name: bash\n",
		"proc/self/status":          "Name: self\n",
		"etc/ssh/sshd_config":       "# comment\nPermitRootLogin no\nPasswordAuthentication no\n",
	})
}

func healthyExec() *fakeExec {
	return newFakeExec().
		on("top -b -n 2 -d 0.5", sampleTop, nil).
		on("df -hPl", sampleDF, nil).
		on("ufw status", "Status: active\n", nil).
		on("apt list --upgradable", "Listing... Done\nopenssh-server/jammy-updates 1:8.9p1-3ubuntu0.10 amd64 [upgradable from: 1:8.9p1-3ubuntu0.6]\ncurl/jammy-updates 7.81.0-1ubuntu1.16 amd64 [upgradable from: 7.81.0-1ubuntu1.15]\n", nil).
		on("ps -eo pid=,user=,%cpu=,%mem=,comm= --sort=-%cpu", samplePSCPU, nil).
		on("ps -eo pid=,user=,%cpu=,%mem=,comm= --sort=-%mem", samplePSMem, nil)
}
