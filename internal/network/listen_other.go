//go:build !linux && !darwin && !freebsd && !windows

package network

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error { return nil }
