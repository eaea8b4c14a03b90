// bench-capture measures heap memory across recording splits while synthetic
// marker streams are captured, backed up and exported.
//
// Usage:
//
//	go run ./scripts/bench-capture --sources 4 --samples 20000 --splits 5 \
//	  --profile-dir docs/profiles/capture
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
	"github.com/Sumatoshi-tech/markrec/pkg/selection"
	"github.com/Sumatoshi-tech/markrec/pkg/session"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
)

const drainTimeout = time.Minute

type heapSnapshot struct {
	label     string
	heapInUse uint64
	heapSys   uint64
	numGC     uint32
}

func main() {
	sources := flag.Int("sources", 4, "Number of synthetic marker streams")
	samples := flag.Int("samples", 20000, "Samples pushed per segment, spread over all sources")
	splits := flag.Int("splits", 5, "Number of splits; the run records splits+1 segments")
	backupEvery := flag.Int("backup-every", session.DefaultBackupEvery, "Samples between backups")
	outputDir := flag.String("output-dir", "", "Recording directory (default: a temp dir, removed afterwards)")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *profileDir == "" {
		log.Fatal("--profile-dir is required")
	}

	err := os.MkdirAll(*profileDir, 0o755)
	if err != nil {
		log.Fatalf("mkdir profile-dir: %v", err)
	}

	if *outputDir == "" {
		tmp, tmpErr := os.MkdirTemp("", "bench-capture-")
		if tmpErr != nil {
			log.Fatalf("temp dir: %v", tmpErr)
		}

		defer os.RemoveAll(tmp)

		*outputDir = tmp
	}

	if *cpuProfile {
		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}
		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	network := loopback.NewNetwork()

	outlets := make([]*loopback.Outlet, 0, *sources)

	for i := range *sources {
		out, outErr := network.NewOutlet("Bench"+strconv.Itoa(i), stream.KindMarkers, "bench_"+strconv.Itoa(i), 1, stream.IrregularRate)
		if outErr != nil {
			log.Fatalf("create outlet: %v", outErr)
		}

		outlets = append(outlets, out)
	}

	disc := discovery.New(network, discovery.DefaultConfig(), discovery.WithLogger(logger))

	_, err = disc.DiscoverOnce(ctx, 0)
	if err != nil {
		log.Fatalf("discover: %v", err)
	}

	sel := selection.New()
	sel.SelectAll(disc.Catalog())

	orch := session.New(session.Options{
		Config:      session.Config{OutputDir: *outputDir, BackupEvery: *backupEvery},
		Catalog:     disc,
		Selection:   sel,
		Opener:      network,
		DeviceClock: network.LocalClock,
		Exporter:    export.New(export.Options{Logger: logger}),
		Logger:      logger,
	})

	var snapshots []heapSnapshot

	takeSnapshot := func(label string) {
		runtime.GC()
		runtime.GC()

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		snapshots = append(snapshots, heapSnapshot{
			label:     label,
			heapInUse: m.HeapInuse,
			heapSys:   m.HeapSys,
			numGC:     m.NumGC,
		})

		log.Printf("  [heap] %-32s inuse=%6.1f MB  sys=%6.1f MB",
			label, float64(m.HeapInuse)/1e6, float64(m.HeapSys)/1e6)
	}

	writeHeapProfile := func(name string) {
		runtime.GC()

		path := filepath.Join(*profileDir, name)

		f, ferr := os.Create(path)
		if ferr != nil {
			log.Printf("warning: create heap profile %s: %v", path, ferr)

			return
		}
		defer f.Close()

		if perr := pprof.WriteHeapProfile(f); perr != nil {
			log.Printf("warning: write heap profile %s: %v", path, perr)
		}
	}

	takeSnapshot("before_recording")
	writeHeapProfile("heap_before_recording.prof")

	_, err = orch.Start(ctx)
	if err != nil {
		log.Fatalf("start: %v", err)
	}

	started := time.Now()

	for segment := 0; segment <= *splits; segment++ {
		pushSegment(outlets, *samples)
		waitForSamples(orch, *samples)

		label := fmt.Sprintf("segment_%d_full", segment)
		takeSnapshot(label)
		writeHeapProfile("heap_" + label + ".prof")

		if segment == *splits {
			break
		}

		_, err = orch.Split(ctx)
		if err != nil {
			log.Fatalf("split %d: %v", segment+1, err)
		}

		takeSnapshot(fmt.Sprintf("segment_%d_after_split", segment))
	}

	_, err = orch.Stop(ctx)
	if err != nil {
		log.Fatalf("stop: %v", err)
	}

	elapsed := time.Since(started)

	takeSnapshot("after_stop")
	writeHeapProfile("heap_after_stop.prof")

	total := *samples * (*splits + 1)

	fmt.Println()
	fmt.Println("=== Heap Memory Timeline ===")
	fmt.Printf("%-34s %10s %10s %6s\n", "Phase", "InUse(MB)", "Sys(MB)", "GCs")
	fmt.Println("----------------------------------+----------+----------+------")

	for _, s := range snapshots {
		fmt.Printf("%-34s %10.1f %10.1f %6d\n", s.label, float64(s.heapInUse)/1e6, float64(s.heapSys)/1e6, s.numGC)
	}

	fmt.Println()
	fmt.Printf("Captured %d samples in %s (%.0f samples/s)\n", total, elapsed.Round(time.Millisecond),
		float64(total)/elapsed.Seconds())
}

// pushSegment spreads n samples round-robin over the outlets.
func pushSegment(outlets []*loopback.Outlet, n int) {
	for i := range n {
		out := outlets[i%len(outlets)]

		err := out.Push("marker " + strconv.Itoa(i))
		if err != nil {
			log.Fatalf("push: %v", err)
		}
	}
}

// waitForSamples blocks until the current segment holds n samples.
func waitForSamples(orch *session.Orchestrator, n int) {
	deadline := time.Now().Add(drainTimeout)

	for orch.Status().Samples < n {
		if time.Now().After(deadline) {
			log.Fatalf("only %d of %d samples captured after %s", orch.Status().Samples, n, drainTimeout)
		}

		time.Sleep(10 * time.Millisecond)
	}
}
