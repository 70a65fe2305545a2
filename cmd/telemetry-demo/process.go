package main

import (
	"os"
	"runtime"
)

// getProcessInfo returns process information for logging
func getProcessInfo() map[string]interface{} {
	return map[string]interface{}{
		"pid":        os.Getpid(),
		"ppid":       os.Getppid(),
		"hostname":   getHostname(),
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"args":       os.Args,
	}
}

// getHostname safely gets hostname
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
