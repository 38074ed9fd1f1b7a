// cmd/fms/main.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// Command-line scenario runner: loads scripted guidance scenarios, runs
// the flight directors over them, and reports what they commanded.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goforj/godump"
	"golang.org/x/sync/errgroup"

	"github.com/mmp/fms/log"
	"github.com/mmp/fms/nav"
	"github.com/mmp/fms/sim"
	"github.com/mmp/fms/util"
)

var (
	logLevel         = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir           = flag.String("logdir", "", "log file directory")
	lintScenarios    = flag.Bool("lint", false, "check the validity of the given scenarios without running them")
	tickLimit        = flag.Int("ticks", 0, "cap the number of update steps per scenario")
	record           = flag.Bool("record", false, "record guidance frames alongside each scenario file")
	replayFilename   = flag.String("replay", "", "print the frames of a recorded guidance run")
	dumpScenario     = flag.Bool("dumpscenario", false, "dump each parsed scenario before running it")
	quiet            = flag.Bool("quiet", false, "suppress per-event output")
	navLog           = flag.Bool("navlog", false, "enable navigation logging")
	navLogCategories = flag.String("navlog-categories", "all", "navigation log categories (comma-separated: state,waypoint,altitude,path,heading,sequence,slot,route,hold)")
	navLogCallsign   = flag.String("navlog-callsign", "", "filter navigation logs to only show this callsign (empty = show all)")
	cacheLimit       = flag.Int64("cachelimit", 64*1024*1024, "maximum size of the scenario cache in bytes")
)

func main() {
	flag.Parse()

	// Initialize the logging system first and foremost.
	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndLogCrash()

	if err := util.CacheCullObjects(*cacheLimit); err != nil {
		lg.Warnf("unable to cull the object cache: %v", err)
	}

	nav.InitNavLog(*navLog, *navLogCategories, *navLogCallsign)

	usage := func() {
		fmt.Fprintf(os.Stderr, "usage: fms [flags] scenario.json...\nwhere [flags] may be:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *replayFilename != "" {
		if err := printReplay(*replayFilename); err != nil {
			lg.Errorf("%s: %v", *replayFilename, err)
			os.Exit(1)
		}
	} else if *lintScenarios {
		if len(flag.Args()) == 0 {
			usage()
		}

		var e util.ErrorLogger
		for _, path := range flag.Args() {
			e.Push(path)
			f, err := os.Open(path)
			if err != nil {
				e.Error(err)
			} else {
				var sc sim.Scenario
				if err := util.UnmarshalJSON(f, &sc); err != nil {
					e.Error(err)
				} else {
					sc.PostDeserialize(&e)
				}
				f.Close()
			}
			e.Pop()
		}
		if e.HaveErrors() {
			e.PrintErrors(nil)
			os.Exit(1)
		}
		fmt.Printf("%d scenarios validated\n", len(flag.Args()))
	} else {
		if len(flag.Args()) == 0 {
			usage()
		}

		// Scenarios are independent, so batch runs go wide; the mutex just
		// keeps each scenario's report contiguous on stdout.
		var reportMu sync.Mutex
		var eg errgroup.Group
		for _, path := range flag.Args() {
			eg.Go(func() error { return runScenario(path, &reportMu, lg) })
		}
		if err := eg.Wait(); err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
	}
}

func runScenario(path string, reportMu *sync.Mutex, lg *log.Logger) error {
	sc, err := sim.LoadScenario(path, lg)
	if err != nil {
		return err
	}

	eventStream := sim.NewEventStream(lg)
	defer eventStream.Destroy()
	sub := eventStream.Subscribe()
	bus := sim.NewMemoryBus()

	var recorder *sim.Recorder
	var recPath string
	if *record {
		recPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".rec"
		f, err := os.Create(recPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if recorder, err = sim.NewRecorder(f); err != nil {
			return err
		}
	}

	player := sim.NewScenarioPlayer(sc)
	s := sim.NewSim(sim.Config{
		Callsign:   sc.Callsign,
		Plan:       sc.FlightPlan(),
		State:      player,
		Trajectory: player,
		Modes:      player,
		Bus:        bus,
		Recorder:   recorder,
	}, eventStream, lg)

	startTime := time.Now()
	updates := 0
	for s.Update() {
		updates++
		if *tickLimit > 0 && updates >= *tickLimit {
			break
		}
	}
	elapsed := time.Since(startTime)

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return err
		}
	}

	events := sub.Get()

	reportMu.Lock()
	defer reportMu.Unlock()

	fmt.Printf("%s: %s (%s)\n", path, sc.Name, sc.Callsign)
	if *dumpScenario {
		godump.Dump(*sc)
	}
	if !*quiet {
		for _, e := range events {
			fmt.Printf("  %s  %s\n", e.SimTime.Format("15:04:05"), e.String())
		}
	}

	if status, ok := bus.Int(sim.BusPathStatus); ok {
		fmt.Printf("  final path status %s", nav.PathStatus(status))
		if alt, ok := bus.Float(sim.BusAltitudeTarget); ok {
			fmt.Printf(", altitude target %.0f", alt)
		}
		if hdg, ok := bus.Float(sim.BusHeadingTarget); ok {
			fmt.Printf(", heading target %03.0f", hdg)
		}
		fmt.Printf("\n")
	}
	if recorder != nil {
		fmt.Printf("  recorded %d frames to %s\n", recorder.Frames(), recPath)
	}
	fmt.Printf("  %d updates in %.2f seconds (%.1fx real-time)\n",
		updates, elapsed.Seconds(), float64(updates)/elapsed.Seconds())
	return nil
}

func printReplay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := sim.NewReplay(f)
	if err != nil {
		return err
	}
	defer r.Close()

	n := 0
	for {
		fr, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		fmt.Printf("%5d: alt %5.0f hdg %03.0f gs %3.0f | path %s", fr.Tick,
			fr.State.Altitude, fr.State.Heading, fr.State.GS, fr.Outputs.PathStatus)
		if fr.Outputs.Altitude != nil {
			fmt.Printf(" | alt target %.0f", fr.Outputs.Altitude.Alt)
			if fr.Outputs.Altitude.ForceCapture {
				fmt.Printf(" (capture)")
			}
		}
		if fr.Outputs.VS != nil {
			fmt.Printf(" | vs %+.0f", *fr.Outputs.VS)
		}
		if fr.Outputs.Heading != nil {
			fmt.Printf(" | hdg target %03.0f", fr.Outputs.Heading.Heading)
		}
		if fr.Outputs.Sequenced != nil {
			fmt.Printf(" | sequenced %d", *fr.Outputs.Sequenced)
		}
		fmt.Printf("\n")
		n++
	}
	fmt.Printf("%d frames\n", n)
	return nil
}
