package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		OSInfo:   snapshot.OSInfo{Distro: "Ubuntu", Version: "22.04", Kernel: "5.15.0-105-generic", Hostname: "web-01"},
		Hardware: snapshot.Hardware{CPUModel: "AMD EPYC 7R13 <8-core> & \"quoted\"", CPUCores: 8, TotalRAMKB: 16318448},
		Performance: snapshot.Performance{
			LoadAverage:     []float64{0.52, 0.4, 0.31},
			UptimeSeconds:   93784,
			ProcessCount:    231,
			CPUUsagePercent: 12.8,
		},
		Memory: snapshot.Memory{TotalKB: 16318448, FreeKB: 512344, AvailableKB: 9021112, BuffersKB: 201212, CachedKB: 7010004},
		DiskUsage: []snapshot.DiskEntry{
			{Filesystem: "/dev/root", Size: "29G", Used: "25G", Available: "4.2G", UsePercent: "87%", MountPoint: "/"},
		},
		Security:       snapshot.Security{SSHPermitRootLogin: "no", SSHPasswordAuth: "yes", FirewallStatus: snapshot.FirewallUFW},
		PackageUpdates: "openssh-server 1:8.9p1-3ubuntu0.10, curl 7.81.0-1ubuntu1.16",
		TopProcesses: []snapshot.ProcessEntry{
			{PID: 1001, User: "mysql", CPUPercent: "20.5", MemPercent: "30.2", Command: "mysqld --defaults\nfile"},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for name, snap := range map[string]*snapshot.Snapshot{
		"populated": sampleSnapshot(),
		"sentinels": snapshot.Empty(),
	} {
		t.Run(name, func(t *testing.T) {
			line, err := Encode(snap)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if strings.ContainsAny(line, "\n\r \t\"") {
				t.Fatalf("encoded line is not copy-paste safe: %q", line)
			}

			got, err := DecodeSnapshot(line)
			if err != nil {
				t.Fatalf("DecodeSnapshot() error: %v", err)
			}
			if !reflect.DeepEqual(got, snap) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, snap)
			}
		})
	}
}

func TestDecodeToleratesTerminalWrapping(t *testing.T) {
	line, err := Encode(sampleSnapshot())
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	wrapped := "  " + line[:20] + "\r\n" + line[20:40] + "\n" + line[40:] + "\n"

	got, err := DecodeSnapshot(wrapped)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error: %v", err)
	}
	if got.OSInfo.Hostname != "web-01" {
		t.Errorf("Hostname = %q", got.OSInfo.Hostname)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	line, err := Encode(sampleSnapshot())
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	tests := map[string]string{
		"empty":          "",
		"whitespace":     " \n\t",
		"bad alphabet":   "not*base64!!",
		"truncated":      line[:len(line)-3],
		"url alphabet":   "ab-_cd==",
		"binary garbage": "\x00\x01\x02",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("Decode() error = %v, want *DecodeError", err)
			}
			if decodeErr.Code() != CodeDecode {
				t.Errorf("Code() = %q", decodeErr.Code())
			}
		})
	}
}

func TestMarshalKeepsKeyOrder(t *testing.T) {
	data, err := Marshal(snapshot.Empty())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"os_info":{"distro":"Unknown"`) {
		t.Errorf("unexpected prefix: %s", data)
	}
	if !strings.HasSuffix(string(data), `"package_updates":"","top_processes":[]}`) {
		t.Errorf("unexpected suffix: %s", data)
	}
}
