// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package blockdevice

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/fantom-foundation/cachekit/common"
	"github.com/fantom-foundation/cachekit/pageserver"
)

//go:generate mockgen -source client.go -destination client_mock.go -package blockdevice

// Client is the Front-End's view of a page server connection:
// the operations the fetcher and per-I/O dispatch issue against the
// remote collaborator. Exists as an interface so the Device can be driven
// against a mock in tests instead of a live TCP connection.
type Client interface {
	Read(offset uint64, length uint32) ([]byte, error)
	Write(offset uint64, data []byte) error
	Flush() error
	Discard(offset uint64, length uint32) error
	Stat() (pageserver.StatPayload, error)
	Close() error
}

// ErrDisconnected mirrors the page-server protocol's Disconnect error kind:
// the remote closed the connection or a transport error occurred
// mid-frame. The caller must reconnect before issuing further requests.
const ErrDisconnected = common.ConstError("blockdevice: disconnected from page server")

// tcpClient is the production Client: one TCP connection to a page server,
// speaking the framed protocol of pageserver/protocol.go.
type tcpClient struct {
	conn net.Conn
}

// Dial connects to a page server at addr.
func Dial(addr string, timeout time.Duration) (*tcpClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return &tcpClient{conn: conn}, nil
}

func (c *tcpClient) roundTrip(req pageserver.Request, payload []byte) (pageserver.Response, []byte, error) {
	if err := pageserver.WriteRequest(c.conn, req); err != nil {
		return pageserver.Response{}, nil, c.disconnect(err)
	}
	if len(payload) > 0 {
		if _, err := c.conn.Write(payload); err != nil {
			return pageserver.Response{}, nil, c.disconnect(err)
		}
	}
	resp, err := pageserver.ReadResponse(c.conn)
	if err != nil {
		return pageserver.Response{}, nil, c.disconnect(err)
	}
	var body []byte
	if resp.Length > 0 {
		body = make([]byte, resp.Length)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return pageserver.Response{}, nil, c.disconnect(err)
		}
	}
	return resp, body, nil
}

func (c *tcpClient) disconnect(cause error) error {
	return fmt.Errorf("%w: %v", ErrDisconnected, cause)
}

func (c *tcpClient) Read(offset uint64, length uint32) ([]byte, error) {
	resp, body, err := c.roundTrip(pageserver.Request{Cmd: pageserver.CmdRead, Offset: offset, Length: length}, nil)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case pageserver.StatusOK, pageserver.StatusEOF:
		return body, nil
	default:
		return nil, fmt.Errorf("blockdevice: remote READ failed at offset %d", offset)
	}
}

func (c *tcpClient) Write(offset uint64, data []byte) error {
	resp, _, err := c.roundTrip(pageserver.Request{Cmd: pageserver.CmdWrite, Offset: offset, Length: uint32(len(data))}, data)
	if err != nil {
		return err
	}
	if resp.Status != pageserver.StatusOK {
		return fmt.Errorf("blockdevice: remote WRITE failed at offset %d", offset)
	}
	return nil
}

func (c *tcpClient) Flush() error {
	resp, _, err := c.roundTrip(pageserver.Request{Cmd: pageserver.CmdFlush}, nil)
	if err != nil {
		return err
	}
	if resp.Status != pageserver.StatusOK {
		return fmt.Errorf("blockdevice: remote FLUSH failed")
	}
	return nil
}

func (c *tcpClient) Discard(offset uint64, length uint32) error {
	resp, _, err := c.roundTrip(pageserver.Request{Cmd: pageserver.CmdDiscard, Offset: offset, Length: length}, nil)
	if err != nil {
		return err
	}
	if resp.Status != pageserver.StatusOK {
		return fmt.Errorf("blockdevice: remote DISCARD failed at offset %d", offset)
	}
	return nil
}

func (c *tcpClient) Stat() (pageserver.StatPayload, error) {
	resp, body, err := c.roundTrip(pageserver.Request{Cmd: pageserver.CmdStat}, nil)
	if err != nil {
		return pageserver.StatPayload{}, err
	}
	if resp.Status != pageserver.StatusOK {
		return pageserver.StatPayload{}, fmt.Errorf("blockdevice: remote STAT failed")
	}
	return pageserver.DecodeStat(body)
}

func (c *tcpClient) Close() error {
	return c.conn.Close()
}
