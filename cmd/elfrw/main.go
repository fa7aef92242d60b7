// Package main is the elfrw command-line driver: ingest an ELF binary,
// optionally relocate it into a sandbox and call an entry function, or
// just dump the resulting chunk tree's positions for inspection.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/pass"
	"github.com/scigolib/elfrw/rewriter"
)

func main() {
	arch := flag.String("arch", "x86_64", "architecture profile to use (x86_64, arm, aarch64)")
	profilePath := flag.String("profile", "", "path to a YAML ArchProfile override")
	dumpPositions := flag.Bool("dump-positions", false, "dump every chunk's resolved position and exit")
	call := flag.String("call", "", "name of a function to relocate into a sandbox and call")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: elfrw [flags] <elf-file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	profile, err := resolveProfile(*arch, *profilePath)
	if err != nil {
		log.Fatalf("resolving architecture profile: %v", err)
	}

	prog, err := rewriter.Ingest(args[0], rewriter.Options{Profile: &profile, Log: entry})
	if err != nil {
		log.Fatalf("ingesting %s: %v", args[0], err)
	}
	defer func() {
		if err := prog.Close(); err != nil {
			log.Warnf("closing program: %v", err)
		}
	}()

	if *dumpPositions {
		dumper := pass.NewDumper(os.Stdout)
		mod := prog.Module()
		pass.Run(mod, dumper)
		for _, plt := range mod.PLTList() {
			pass.Run(plt, dumper)
		}
		for _, dr := range mod.DataRegions() {
			pass.Run(dr, dumper)
		}
		for _, jt := range mod.JumpTables() {
			pass.Run(jt, dumper)
		}
		return
	}

	if *call != "" {
		runCall(prog, *call, args[1:], entry, log)
		return
	}

	fmt.Printf("ingested %s: %d functions\n", args[0], len(prog.Module().Functions()))
}

func resolveProfile(arch, overridePath string) (config.ArchProfile, error) {
	profile, err := config.DefaultProfile(arch)
	if err != nil {
		return config.ArchProfile{}, err
	}
	if overridePath == "" {
		return profile, nil
	}
	return config.LoadProfile(overridePath)
}

func runCall(prog *rewriter.Program, name string, callArgs []string, entry *logrus.Entry, log *logrus.Logger) {
	sb, err := rewriter.NewSandbox(prog)
	if err != nil {
		log.Fatalf("creating sandbox: %v", err)
	}
	defer func() {
		if err := sb.Close(); err != nil {
			log.Warnf("closing sandbox: %v", err)
		}
	}()

	if err := sb.Relocate(prog.Module()); err != nil {
		log.Fatalf("relocating into sandbox: %v", err)
	}

	ret, err := sb.Call(prog.Module(), name, len(callArgs), callArgs)
	if err != nil {
		log.Fatalf("calling %s: %v", name, err)
	}
	fmt.Printf("%s returned %d\n", name, ret)
}
