// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/fantom-foundation/cachekit/blockdevice"
	"github.com/fantom-foundation/cachekit/cache"
	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./blockdevice/tool -c /tmp/cache.img -r 127.0.0.1:8964 read 12
//
// This is a diagnostic harness, not the block device's production entry
// point: the host I/O ring a Device backs is served by the kernel, not by
// this process, so there is nothing for a CLI to "serve". It exists to
// exercise a Device's logical-sector operations by hand against a running
// page server.

var (
	cacheFlag    = &cli.StringFlag{Name: "cache", Aliases: []string{"c"}, Required: true, Usage: "local cache file path"}
	remoteFlag   = &cli.StringFlag{Name: "remote", Aliases: []string{"r"}, Required: true, Usage: "page server address"}
	capacityFlag = &cli.Int64Flag{Name: "capacity", Aliases: []string{"n"}, Value: 1024, Usage: "cache capacity, in sectors"}
	offsetFlag   = &cli.Uint64Flag{Name: "start-offset", Value: 0, Usage: "byte offset into the remote device that logical sector 0 maps to"}
)

func main() {
	app := &cli.App{
		Name:      "blockdevice",
		Usage:     "exercise a cached block device front-end against a running page server",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags:     []cli.Flag{cacheFlag, remoteFlag, capacityFlag, offsetFlag},
		Commands: []*cli.Command{
			&readCmd,
			&writeCmd,
			&flushCmd,
			&discardCmd,
			&statCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// device is the subset of Device[X]'s exported surface this tool drives.
// Kept as an interface (rather than naming blockdevice.Device[...]
// directly) because X is an unexported cache-policy extension type that
// only the cache package's constructors can produce.
type device interface {
	Read(logical uint64, dst []byte) error
	Write(logical uint64, src []byte) error
	Flush() error
	Discard(logical uint64) error
	WriteBack(n int) error
	Close() error
}

func open(c *cli.Context) (device, error) {
	mgr := cache.NewLRU[uint64, int64](int(c.Int64("capacity")))
	return blockdevice.NewDevice(blockdevice.Config{
		CacheFile:       c.String("cache"),
		RemoteAddr:      c.String("remote"),
		StartOffset:     c.Uint64("start-offset"),
		CapacitySectors: c.Int64("capacity"),
		DialTimeout:     5 * time.Second,
	}, mgr)
}

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "read one logical sector and print it as hex",
	ArgsUsage: "<logical-sector>",
	Action: func(c *cli.Context) error {
		logical, err := parseSector(c)
		if err != nil {
			return err
		}
		dev, err := open(c)
		if err != nil {
			return err
		}
		defer dev.Close()

		buf := make([]byte, blockdevice.SectorSize)
		if err := dev.Read(logical, buf); err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(buf))
		return nil
	},
}

var writeCmd = cli.Command{
	Name:      "write",
	Usage:     "write one logical sector from hex-encoded data",
	ArgsUsage: "<logical-sector> <hex-data>",
	Action: func(c *cli.Context) error {
		logical, err := parseSector(c)
		if err != nil {
			return err
		}
		if c.Args().Len() < 2 {
			return fmt.Errorf("write requires <logical-sector> <hex-data>")
		}
		data, err := hex.DecodeString(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("decoding hex data: %w", err)
		}
		if len(data) > blockdevice.SectorSize {
			return fmt.Errorf("data exceeds sector size %d", blockdevice.SectorSize)
		}
		buf := make([]byte, blockdevice.SectorSize)
		copy(buf, data)

		dev, err := open(c)
		if err != nil {
			return err
		}
		defer dev.Close()
		return dev.Write(logical, buf)
	},
}

var flushCmd = cli.Command{
	Name:  "flush",
	Usage: "flush the local cache file and forward FLUSH to the remote",
	Action: func(c *cli.Context) error {
		dev, err := open(c)
		if err != nil {
			return err
		}
		defer dev.Close()
		return dev.Flush()
	},
}

var discardCmd = cli.Command{
	Name:      "discard",
	Usage:     "discard one logical sector",
	ArgsUsage: "<logical-sector>",
	Action: func(c *cli.Context) error {
		logical, err := parseSector(c)
		if err != nil {
			return err
		}
		dev, err := open(c)
		if err != nil {
			return err
		}
		defer dev.Close()
		return dev.Discard(logical)
	},
}

var statCmd = cli.Command{
	Name:  "stat",
	Usage: "run one write-back sweep over up to one batch of dirty sectors",
	Action: func(c *cli.Context) error {
		dev, err := open(c)
		if err != nil {
			return err
		}
		defer dev.Close()
		if err := dev.WriteBack(blockdevice.DefaultWriteBackBatch); err != nil {
			return err
		}
		fmt.Println("write-back sweep complete")
		return nil
	},
}

func parseSector(c *cli.Context) (uint64, error) {
	if c.Args().Len() < 1 {
		return 0, fmt.Errorf("missing <logical-sector> argument")
	}
	var logical uint64
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &logical); err != nil {
		return 0, fmt.Errorf("invalid logical sector %q: %w", c.Args().First(), err)
	}
	return logical, nil
}
