// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package pageserver implements the TCP-reachable backing store consulted by
// the cached block device front-end on a cache miss: a single backing file
// addressed by byte offset and length, served over a small fixed framed
// protocol.
package pageserver

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fantom-foundation/cachekit/common"
)

const (
	magic   uint32 = 0x50414745 // "PAGE"
	version uint32 = 1

	requestSize  = 24
	responseSize = 16
)

// Command identifies the operation requested of the page server.
type Command uint8

const (
	CmdRead Command = 1 + iota
	CmdWrite
	CmdFlush
	CmdDiscard
	CmdStat
)

func (c Command) String() string {
	switch c {
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdFlush:
		return "FLUSH"
	case CmdDiscard:
		return "DISCARD"
	case CmdStat:
		return "STAT"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// Status is the outcome reported in a Response.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
	StatusEOF
)

// ErrProtocolViolation is returned when a peer sends a frame with a bad
// magic, version, or a request whose bounds fail validation.
const ErrProtocolViolation = common.ConstError("pageserver: protocol violation")

// ErrDisconnected is returned when a read of a frame observes a clean peer
// close (0 bytes) or a transport error partway through a frame.
const ErrDisconnected = common.ConstError("pageserver: disconnected")

// Request is the 24-byte framed request header. Reserved bytes are
// always sent as zero and are not represented here.
type Request struct {
	Cmd    Command
	Offset uint64
	Length uint32
}

// Response is the 16-byte framed response header, not including
// any payload that follows it.
type Response struct {
	Status Status
	Length uint32
}

// StatPayload is the 16-byte body of an OK response to a STAT request.
type StatPayload struct {
	TotalSize uint64
	PageSize  uint32
}

// WriteRequest encodes and sends a request frame, in the bit-exact 24-byte
// layout: magic, version, cmd, 3 reserved, offset, length. The length
// field ends the frame; no reserved bytes follow it.
func WriteRequest(w io.Writer, req Request) error {
	var buf [requestSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	buf[8] = byte(req.Cmd)
	// buf[9:12] reserved, already zero
	binary.LittleEndian.PutUint64(buf[12:20], req.Offset)
	binary.LittleEndian.PutUint32(buf[20:24], req.Length)
	// buf[24:28] would overrun; length field ends the 24-byte frame at offset 24
	_, err := w.Write(buf[:])
	return err
}

// ReadRequest reads and decodes a request frame, validating the magic and
// version.
func ReadRequest(r io.Reader) (Request, error) {
	var buf [requestSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return Request{}, err
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic || binary.LittleEndian.Uint32(buf[4:8]) != version {
		return Request{}, ErrProtocolViolation
	}
	return Request{
		Cmd:    Command(buf[8]),
		Offset: binary.LittleEndian.Uint64(buf[12:20]),
		Length: binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

// WriteResponse encodes and sends a response frame. The caller is
// responsible for writing the payload bytes afterward, if any.
func WriteResponse(w io.Writer, resp Response) error {
	var buf [responseSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	buf[8] = byte(resp.Status)
	binary.LittleEndian.PutUint32(buf[12:16], resp.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadResponse reads and decodes a response frame. The caller reads the
// payload (resp.Length bytes) separately.
func ReadResponse(r io.Reader) (Response, error) {
	var buf [responseSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return Response{}, err
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic || binary.LittleEndian.Uint32(buf[4:8]) != version {
		return Response{}, ErrProtocolViolation
	}
	return Response{
		Status: Status(buf[8]),
		Length: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// EncodeStat packs a StatPayload into its 16-byte wire representation.
func EncodeStat(s StatPayload) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], s.TotalSize)
	binary.LittleEndian.PutUint32(buf[8:12], s.PageSize)
	return buf
}

// DecodeStat unpacks a 16-byte STAT response payload.
func DecodeStat(buf []byte) (StatPayload, error) {
	if len(buf) < 16 {
		return StatPayload{}, fmt.Errorf("pageserver: short stat payload: %d bytes", len(buf))
	}
	return StatPayload{
		TotalSize: binary.LittleEndian.Uint64(buf[0:8]),
		PageSize:  binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrDisconnected
		}
		return err
	}
	return nil
}
