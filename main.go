// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/beevik/go2a03/host"
)

var (
	scriptFile string
	batch      bool
)

func init() {
	flag.StringVar(&scriptFile, "s", "", "run a Lua script before processing commands")
	flag.BoolVar(&batch, "b", false, "exit after running scripts and command files")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: go2a03 [options] [command-file] ..\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	h := host.New()

	// Break on Ctrl-C.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go handleInterrupt(h, c)

	// Seed the emulator from a Lua script if requested.
	if scriptFile != "" {
		if err := h.RunScript(scriptFile, os.Stdout); err != nil {
			exitOnError(err)
		}
	}

	// Run commands contained in command-line files.
	for _, filename := range flag.Args() {
		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		h.RunCommands(file, os.Stdout, false)
		file.Close()

		if h.Exited() {
			return
		}
	}

	if batch {
		return
	}

	// Run commands interactively.
	h.RunCommands(os.Stdin, os.Stdout, true)
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for {
		<-c
		h.Break()
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
