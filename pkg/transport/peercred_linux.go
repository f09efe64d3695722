// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

//go:build linux

package transport

import (
	"fmt"
	"net"
	"slices"

	"golang.org/x/sys/unix"
)

// checkPeer reads SO_PEERCRED from conn and accepts the peer only when its
// uid is in allowed.
func checkPeer(conn net.Conn, allowed []uint32) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("%w: not a unix socket", ErrPeerRejected)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerRejected, err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerRejected, err)
	}
	if credErr != nil {
		return fmt.Errorf("%w: %v", ErrPeerRejected, credErr)
	}
	if !slices.Contains(allowed, cred.Uid) {
		return fmt.Errorf("%w: uid %d (pid %d)", ErrPeerRejected, cred.Uid, cred.Pid)
	}
	return nil
}
