// Copyright (c) 2015-2021 MinIO, Inc.
//
// This file is part of MinIO Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package smbpool

import (
	"context"
	"net"
	"time"
)

// dialTimeout and keepAlive mirror MinIO's internode dialer
// (internal/http/dial_linux.go NewInternodeDialContext): a short connect
// timeout and an aggressive keepalive, since a share mount that goes
// half-dead should be detected by TCP before a long SMB read times out.
const (
	dialTimeout = 10 * time.Second
	keepAlive   = 15 * time.Second
)

// dialTCP opens a plain TCP connection with the pool's standard timeout and
// keepalive settings. The platform-specific socket tuning MinIO
// applies via golang.org/x/sys/unix (SO_REUSEPORT, TCP_QUICKACK, custom
// keepalive interval/count) does not carry over: those options exist to let
// many short-lived inter-node connections share a listening port and detect
// node death within a few seconds, which does not apply to a single
// long-lived outbound mount per device. net.Dialer's portable KeepAlive
// field covers the one property this client actually needs.
func dialTCP(ctx context.Context, address string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAlive,
	}
	return d.DialContext(ctx, "tcp", address)
}
