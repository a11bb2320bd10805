// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}
}

func TestCollectFromSyntheticFS(t *testing.T) {
	root := t.TempDir()
	procRoot := filepath.Join(root, "proc")
	sysRoot := filepath.Join(root, "sys")

	writeSyntheticFile(t, root, "proc/cpuinfo", "processor\t: 0\nmodel name\t: AMD EPYC 7763 64-Core Processor\n\n")
	writeSyntheticFile(t, root, "sys/class/dmi/id/sys_vendor", "Acme Corp\n")
	writeSyntheticFile(t, root, "sys/class/dmi/id/product_name", "Server X1\n")

	data := collectFrom(procRoot, sysRoot)

	if data.CPUModel != "AMD EPYC 7763 64-Core Processor" {
		t.Errorf("unexpected CPU model: %q", data.CPUModel)
	}
	if data.Platform != "Acme Corp Server X1" {
		t.Errorf("unexpected platform: %q", data.Platform)
	}
	if data.Hostname == "" {
		t.Errorf("expected non-empty hostname")
	}
	if data.CPUCount <= 0 {
		t.Errorf("expected positive CPU count, got %d", data.CPUCount)
	}
}

func TestCollectFromMissingSources(t *testing.T) {
	root := t.TempDir()
	data := collectFrom(filepath.Join(root, "proc"), filepath.Join(root, "sys"))

	if data.CPUModel != "" {
		t.Errorf("expected empty CPU model for missing /proc/cpuinfo, got %q", data.CPUModel)
	}
	if data.Platform != data.OS {
		t.Errorf("expected platform to fall back to OS, got %q", data.Platform)
	}
}

func TestProbeMemoryAndDisk(t *testing.T) {
	total, used, free := probeMemory()
	if total == 0 {
		t.Skip("sysinfo unavailable in this environment")
	}
	if used+free > total+1 {
		t.Errorf("used+free should not exceed total: used=%d free=%d total=%d", used, free, total)
	}

	diskTotal, diskUsed, diskFree := probeDisk("/")
	if diskTotal == 0 {
		t.Skip("statfs unavailable in this environment")
	}
	if diskUsed+diskFree > diskTotal+1 {
		t.Errorf("used+free should not exceed total: used=%d free=%d total=%d", diskUsed, diskFree, diskTotal)
	}
}
