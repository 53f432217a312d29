package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"pulsegate4d/pkg/config"
	"pulsegate4d/pkg/pipeline"
	"pulsegate4d/pkg/simulation"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "pulsegate4d.yaml", "Path to YAML configuration file")
	outputDir := flag.String("output", "results", "Directory for checkpoint, projection, video and plot outputs")
	pulses := flag.Int("pulses", 0, "Override the configured pulse count (0 = use config)")
	gateWidth := flag.Int("gate-width", 0, "Override the configured gate width in time bins (0 = use config)")
	workers := flag.Int("workers", 0, "Override the configured worker count (0 = use config)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to the config path and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Load configuration (defaults when the file does not exist)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *pulses > 0 {
		cfg.Simulation.Pulses = *pulses
	}
	if *gateWidth > 0 {
		cfg.Gate.Width = *gateWidth
	}
	if *workers > 0 {
		cfg.Simulation.Workers = *workers
	}

	fmt.Println("================================")
	fmt.Println("TIME-GATED JACOBIAN ACCUMULATION AND GATED DETECTOR EMULATION")
	fmt.Println("================================")
	fmt.Printf("Volume: %dx%dx%d, %d time bins, %d pulses, gate width %d\n",
		cfg.Volume.NX, cfg.Volume.NY, cfg.Volume.NZ,
		cfg.Gate.Timing.TimeBins(), cfg.Simulation.Pulses, cfg.Gate.Width)

	driver := simulation.NewSyntheticDriver(cfg.Simulation.Seed)
	params := &pipeline.Params{
		Config:    cfg,
		OutputDir: *outputDir,
	}
	p := pipeline.New(params, driver)

	startTime := time.Now()
	if err := p.Run(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	elapsed := time.Since(startTime)

	s := p.Summary()
	fmt.Printf("\nRun completed in %.2f seconds\n\n", elapsed.Seconds())
	fmt.Printf("Accumulation summary:\n")
	fmt.Printf("=====================\n")
	fmt.Printf("Pulses accumulated: %d\n", s.Pulses)
	fmt.Printf("Gated frames exported: %d\n", s.Frames)
	fmt.Printf("Buffer mean: %.6g\n", s.Mean)
	fmt.Printf("Buffer std dev: %.6g\n", s.StdDev)
	fmt.Printf("Buffer max: %.6g\n", s.Max)

	fmt.Println("\nOutputs:")
	fmt.Printf("- Checkpoint: %s\n", p.CheckpointPath())
	fmt.Printf("- Static projection: %s\n", p.ProjectionPath())
	fmt.Printf("- Gated video: %s\n", p.VideoPath())
	if s.Frames > 0 {
		fmt.Printf("- Gate time course: %s\n", p.TimeCoursePath())
	}
}
