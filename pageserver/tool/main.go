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
	"fmt"
	"log"
	"os"

	"github.com/fantom-foundation/cachekit/common/interrupt"
	"github.com/fantom-foundation/cachekit/pageserver"
	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./pageserver/tool -f disk.img -s 64M

func main() {
	app := &cli.App{
		Name:      "pageserver",
		Usage:     "serve a flat file over the cached-block-device wire protocol",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "backing file path"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8964, Usage: "TCP port to listen on"},
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "0.0.0.0", Usage: "address to listen on"},
			&cli.StringFlag{Name: "size", Aliases: []string{"s"}, Usage: "size to create the backing file with, if it does not exist (accepts K/M/G suffixes)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log each connection and protocol error"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	file := c.String("file")
	sizeFlag := c.String("size")

	_, statErr := os.Stat(file)
	exists := statErr == nil

	var size int64
	switch {
	case exists && sizeFlag != "":
		return fmt.Errorf("-s/--size is forbidden when %s already exists", file)
	case !exists && sizeFlag == "":
		return fmt.Errorf("-s/--size is required to create %s", file)
	case !exists:
		parsed, err := pageserver.ParseSize(sizeFlag)
		if err != nil {
			return err
		}
		size = parsed
	}

	srv, err := pageserver.Open(pageserver.Config{
		Addr:    fmt.Sprintf("%s:%d", c.String("addr"), c.Int("port")),
		File:    file,
		Size:    size,
		Verbose: c.Bool("verbose"),
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	log.Printf("pageserver: listening on %s, backing file %s", srv.Addr(), file)
	ctx := interrupt.Register(c.Context)
	return srv.Serve(ctx)
}
