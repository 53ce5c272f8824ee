// Copyright (C) 2025-2026 Cliprally, Inc.
// This file is part of cliprally
//
// cliprally is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// cliprally is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with cliprally.  If not, see <https://www.gnu.org/licenses/>.

// voted is the vote ingestion daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cliprally/cliprally/config"
	"github.com/cliprally/cliprally/daemon/voted"
)

var dataDirectory = flag.String("d", "", "Root voted data path")
var listenAddr = flag.String("l", "", "Override config.ListenAddress (REST listening address) with ip:port")
var logToStdout = flag.Bool("o", false, "Write to stdout instead of voted.log by overriding config.LogSizeLimit to 0")
var noFastPath = flag.Bool("s", false, "Force the durable recording path by overriding config.EnableFastVoting to false")

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	dataDir := resolveDataDir()
	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "Data directory not specified. Please use -d or set $VOTED_DATA in your environment.")
		return 1
	}
	absolutePath, err := filepath.Abs(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't resolve data directory %s: %v\n", dataDir, err)
		return 1
	}
	if fi, err := os.Stat(absolutePath); err != nil || !fi.IsDir() {
		fmt.Fprintf(os.Stderr, "Data directory %s does not exist\n", absolutePath)
		return 1
	}

	cfg, err := config.LoadConfigFromDisk(absolutePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		return 1
	}
	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *logToStdout {
		cfg.LogSizeLimit = 0
	}
	if *noFastPath {
		cfg.EnableFastVoting = false
	}

	s := voted.Server{RootPath: absolutePath}
	if err := s.Initialize(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot initialize: %v\n", err)
		return 1
	}

	done := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		fmt.Printf("Exiting on %v\n", sig)
		s.Stop()
		close(done)
	}()

	if err := s.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "voted: %v\n", err)
		return 1
	}
	<-done
	return 0
}

func resolveDataDir() string {
	// Figure out what data directory to tell voted to use.
	// If not specified on cmdline with '-d', look for default in environment.
	var dir string
	if dataDirectory == nil || *dataDirectory == "" {
		dir = os.Getenv("VOTED_DATA")
	} else {
		dir = *dataDirectory
	}
	return dir
}
