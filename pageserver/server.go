// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pageserver

import (
	"context"
	"errors"
	"log"
	"math"
	"net"
	"sync"

	"github.com/fantom-foundation/cachekit/common"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is reported by STAT when Config.PageSize is zero; it sizes
// no I/O buffer and does not constrain the length a READ/WRITE request may
// carry.
const DefaultPageSize uint32 = 4096

// Config describes how to open and serve a backing file.
type Config struct {
	Addr     string
	File     string
	Size     int64 // only consulted when File does not already exist
	PageSize uint32
	Verbose  bool
}

// Server is the page server: a TCP listener in front of a
// single flat backing file, speaking the framed protocol of §6.
type Server struct {
	listener net.Listener
	file     *backingFile
	lock     common.LockFile
	lockPath string
	pageSize uint32
	verbose  bool
	fileMu   sync.Mutex // serializes requests against the shared backing file
}

// Open creates or opens the backing file, acquires an exclusive lock on it
// (a Server is a single-writer collaborator; concurrent server processes on
// the same file would corrupt each other's writes), and binds the listener.
func Open(cfg Config) (*Server, error) {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	lockPath := cfg.File + ".lock"
	lock, err := common.CreateLockFile(lockPath)
	if err != nil {
		return nil, err
	}

	f, err := openBackingFile(cfg.File, cfg.Size, pageSize)
	if err != nil {
		lock.Release()
		return nil, err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		f.close()
		lock.Release()
		return nil, err
	}

	return &Server{
		listener: ln,
		file:     f,
		lock:     lock,
		lockPath: lockPath,
		pageSize: pageSize,
		verbose:  cfg.Verbose,
	}, nil
}

// Addr reports the address the listener is bound to, useful when Config.Addr
// used port 0.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close shuts down the listener, flushes and closes the backing file, and
// releases the lock.
func (s *Server) Close() error {
	return errors.Join(s.listener.Close(), s.file.close(), s.lock.Release())
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// Each connection is handled on its own goroutine and processes requests
// one at a time; multiple concurrent connections are permitted, their
// requests serialized against the shared backing file by fileMu.
func (s *Server) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return s.listener.Close()
	})

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return group.Wait()
			}
			return errors.Join(err, group.Wait())
		}
		group.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr()
	if s.verbose {
		log.Printf("pageserver: connection from %s opened", peer)
	}
	for {
		req, err := ReadRequest(conn)
		if err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				s.replyError(conn)
			}
			if s.verbose && !errors.Is(err, ErrDisconnected) {
				log.Printf("pageserver: %s: %v", peer, err)
			}
			return
		}
		if !s.dispatch(conn, req) {
			return
		}
	}
}

// dispatch serves one request and reports whether the connection should
// remain open.
func (s *Server) dispatch(conn net.Conn, req Request) bool {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	switch req.Cmd {
	case CmdRead:
		return s.handleRead(conn, req)
	case CmdWrite:
		return s.handleWrite(conn, req)
	case CmdFlush:
		return s.handleFlush(conn)
	case CmdDiscard:
		return s.handleDiscard(conn, req)
	case CmdStat:
		return s.handleStat(conn)
	default:
		s.replyError(conn)
		return false
	}
}

func (s *Server) validBounds(offset uint64, length uint32) bool {
	if length == 0 {
		return offset <= uint64(s.file.totalSize())
	}
	end := offset + uint64(length)
	if end < offset { // overflow
		return false
	}
	if end > math.MaxInt64 {
		return false
	}
	return int64(end) <= s.file.totalSize()
}

func (s *Server) handleRead(conn net.Conn, req Request) bool {
	if !s.validBounds(req.Offset, req.Length) {
		s.replyError(conn)
		return false
	}
	buf := make([]byte, req.Length)
	n, short, err := s.file.readAt(buf, int64(req.Offset))
	if err != nil {
		s.replyError(conn)
		return true
	}
	status := StatusOK
	if short {
		status = StatusEOF
	}
	if err := WriteResponse(conn, Response{Status: status, Length: uint32(n)}); err != nil {
		return false
	}
	if n > 0 {
		if _, err := conn.Write(buf[:n]); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) handleWrite(conn net.Conn, req Request) bool {
	if !s.validBounds(req.Offset, req.Length) {
		s.replyError(conn)
		return false
	}
	payload := make([]byte, req.Length)
	if err := readFull(conn, payload); err != nil {
		return false
	}
	if err := s.file.writeAt(payload, int64(req.Offset)); err != nil {
		s.replyError(conn)
		return true
	}
	return s.replyOK(conn)
}

func (s *Server) handleFlush(conn net.Conn) bool {
	if err := s.file.flush(); err != nil {
		s.replyError(conn)
		return true
	}
	return s.replyOK(conn)
}

func (s *Server) handleDiscard(conn net.Conn, req Request) bool {
	if !s.validBounds(req.Offset, req.Length) {
		s.replyError(conn)
		return false
	}
	if err := s.file.discard(int64(req.Offset), int64(req.Length)); err != nil {
		s.replyError(conn)
		return true
	}
	return s.replyOK(conn)
}

func (s *Server) handleStat(conn net.Conn) bool {
	payload := EncodeStat(StatPayload{TotalSize: uint64(s.file.totalSize()), PageSize: s.pageSize})
	if err := WriteResponse(conn, Response{Status: StatusOK, Length: uint32(len(payload))}); err != nil {
		return false
	}
	_, err := conn.Write(payload)
	return err == nil
}

func (s *Server) replyOK(conn net.Conn) bool {
	return WriteResponse(conn, Response{Status: StatusOK}) == nil
}

// replyError makes a best-effort attempt to tell the peer a request failed.
// Callers close the connection after protocol and bounds violations and
// keep it open after backing-file I/O errors.
func (s *Server) replyError(conn net.Conn) {
	_ = WriteResponse(conn, Response{Status: StatusError})
}
