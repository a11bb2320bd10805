// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/bureau-foundation/bureau/lib/wire"
)

// Collector produces inventory snapshots from /proc, /sys, and the
// local network stack. The zero value is ready to use; NewCollector
// exists for symmetry with other agent components and to leave room
// for future fields.
type Collector struct {
	procRoot string
	sysRoot  string
}

// NewCollector returns a Collector reading from the real /proc and /sys.
func NewCollector() *Collector {
	return &Collector{procRoot: "/proc", sysRoot: "/sys"}
}

// Collect gathers one inventory snapshot.
func (c *Collector) Collect() wire.InventoryData {
	procRoot, sysRoot := c.procRoot, c.sysRoot
	if procRoot == "" {
		procRoot = "/proc"
	}
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	return collectFrom(procRoot, sysRoot)
}

func collectFrom(procRoot, sysRoot string) wire.InventoryData {
	data := wire.InventoryData{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}

	data.Hostname, _ = os.Hostname()
	data.Platform = readPlatform(sysRoot)
	data.CPUModel = readCPUModel(filepath.Join(procRoot, "cpuinfo"))
	data.MemoryTotal, data.MemoryUsed, data.MemoryFree = probeMemory()
	data.DiskTotal, data.DiskUsed, data.DiskFree = probeDisk("/")
	data.IPList, data.MACList = probeNetwork()

	return data
}

// readPlatform reports the DMI board vendor/name pair, falling back to
// runtime.GOOS when sysfs is unavailable (containers, VMs without DMI).
func readPlatform(sysRoot string) string {
	vendor := readSysfsString(filepath.Join(sysRoot, "class/dmi/id/sys_vendor"))
	name := readSysfsString(filepath.Join(sysRoot, "class/dmi/id/product_name"))
	switch {
	case vendor != "" && name != "":
		return vendor + " " + name
	case vendor != "":
		return vendor
	default:
		return runtime.GOOS
	}
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

// probeMemory returns total, used, and free system memory in bytes via
// sysinfo(2).
func probeMemory() (total, used, free uint64) {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return 0, 0, 0
	}
	unit := uint64(info.Unit)
	total = uint64(info.Totalram) * unit
	free = uint64(info.Freeram) * unit
	if total < free {
		return total, 0, free
	}
	used = total - free
	return total, used, free
}

// probeDisk returns total, used, and free space in bytes for the
// filesystem mounted at path via statfs(2).
func probeDisk(path string) (total, used, free uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0
	}
	blockSize := uint64(stat.Bsize)
	total = stat.Blocks * blockSize
	free = stat.Bavail * blockSize
	if total < free {
		return total, 0, free
	}
	used = total - free
	return total, used, free
}

// probeNetwork enumerates non-loopback interface addresses and MACs.
func probeNetwork() (ips, macs []string) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.HardwareAddr != nil && len(iface.HardwareAddr) > 0 {
			macs = append(macs, iface.HardwareAddr.String())
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips, macs
}
