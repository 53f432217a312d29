// Package pipeline orchestrates the full run: the per-pulse
// simulate-then-replay loop feeding the volume accumulator, the checkpoint
// write, the static log projection, and the gated frame-sequence export.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"pulsegate4d/internal/models"
	"pulsegate4d/pkg/accumulation"
	"pulsegate4d/pkg/checkpoint"
	"pulsegate4d/pkg/config"
	"pulsegate4d/pkg/gating"
	"pulsegate4d/pkg/projection"
	"pulsegate4d/pkg/simulation"
	"pulsegate4d/pkg/visualization"
)

// CheckpointLabel is the descriptive key the accumulation buffer is
// persisted under.
const CheckpointLabel = "jacobian_accumulation"

// Params holds the run parameters.
type Params struct {
	// Config is the loaded application configuration
	Config *config.Config

	// OutputDir receives the checkpoint, projection image, video and plot
	OutputDir string
}

// Summary holds the statistics reported after a completed run.
type Summary struct {
	// Pulses is the number of contributions accumulated
	Pulses int

	// Frames is the number of gated volumes exported
	Frames int

	// Mean, StdDev and Max summarize the accumulated buffer values
	Mean   float64
	StdDev float64
	Max    float64
}

// Pipeline runs the accumulation, projection, gating and export stages in
// order over a single accumulation buffer.
type Pipeline struct {
	params *Params
	driver simulation.Driver

	// acc owns the accumulation buffer for the whole run
	acc *accumulation.VolumeAccumulator

	summary Summary
}

// New creates a pipeline for the given parameters and simulation driver.
func New(params *Params, driver simulation.Driver) *Pipeline {
	return &Pipeline{
		params: params,
		driver: driver,
	}
}

// Summary returns the run statistics. Valid after Run has returned nil.
func (p *Pipeline) Summary() Summary {
	return p.summary
}

// CheckpointPath returns where the accumulation buffer is persisted.
func (p *Pipeline) CheckpointPath() string {
	return filepath.Join(p.params.OutputDir, "jacobian_accumulation.pg4d")
}

// VideoPath returns the gated video path, named by the gate width.
func (p *Pipeline) VideoPath() string {
	return filepath.Join(p.params.OutputDir, fmt.Sprintf("gated_w%03d.avi", p.params.Config.Gate.Width))
}

// ProjectionPath returns the static log-projection image path.
func (p *Pipeline) ProjectionPath() string {
	return filepath.Join(p.params.OutputDir, "projection.png")
}

// TimeCoursePath returns the gate time-course plot path.
func (p *Pipeline) TimeCoursePath() string {
	return filepath.Join(p.params.OutputDir, "gate_timecourse.png")
}

// Run executes the complete pipeline.
func (p *Pipeline) Run() error {
	cfg := p.params.Config

	// The pulse configuration is built once and passed by value into every
	// driver invocation; nothing mutates it between iterations.
	pulseCfg := cfg.PulseConfig()
	if err := pulseCfg.Validate(); err != nil {
		return fmt.Errorf("invalid pulse configuration: %v", err)
	}

	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	shape := pulseCfg.VolumeShape()
	p.acc = accumulation.New(shape)

	fmt.Printf("Step 1: Accumulating %d pulse contributions into a %s buffer...\n",
		cfg.Simulation.Pulses, shape)
	if err := p.accumulatePulses(pulseCfg); err != nil {
		return fmt.Errorf("pulse accumulation failed: %v", err)
	}

	fmt.Println("Step 2: Writing accumulation checkpoint...")
	if err := checkpoint.Save(p.CheckpointPath(), CheckpointLabel, p.acc.Snapshot()); err != nil {
		return fmt.Errorf("checkpoint write failed: %v", err)
	}

	fmt.Println("Step 3: Computing static log projection...")
	if err := p.renderProjection(); err != nil {
		return fmt.Errorf("projection failed: %v", err)
	}

	fmt.Println("Step 4: Exporting gated frame sequence...")
	if err := p.exportGatedFrames(); err != nil {
		// Export failures abort the run but the checkpoint written in
		// Step 2 stays intact on disk.
		return fmt.Errorf("gated export failed: %v", err)
	}

	fmt.Println("Step 5: Computing summary statistics...")
	buf := p.acc.Snapshot()
	p.summary.Pulses = p.acc.Pulses()
	p.summary.Mean = stat.Mean(buf.Data, nil)
	p.summary.StdDev = stat.StdDev(buf.Data, nil)
	p.summary.Max = floats.Max(buf.Data)

	return nil
}

// accumulatePulses runs the simulate-then-replay loop. With a single worker
// it is the sequential reference behavior. With more workers each one
// accumulates into a private partial buffer and the partials are merged
// pairwise afterwards; accumulation is commutative and associative, so the
// final buffer matches the sequential result up to float rounding.
func (p *Pipeline) accumulatePulses(pulseCfg simulation.PulseConfig) error {
	pulses := p.params.Config.Simulation.Pulses
	workers := p.params.Config.Simulation.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > pulses {
		workers = pulses
	}

	if workers == 1 {
		for i := 0; i < pulses; i++ {
			if err := p.runPulse(pulseCfg, p.acc); err != nil {
				return fmt.Errorf("pulse %d: %v", i, err)
			}
			if pulses >= 10 && (i+1)%(pulses/10) == 0 {
				fmt.Printf("\rAccumulating pulses: %.0f%% complete", float64(i+1)/float64(pulses)*100)
			}
		}
		if pulses >= 10 {
			fmt.Println()
		}
		return nil
	}

	jobs := make(chan int)
	partials := make([]*accumulation.VolumeAccumulator, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			partial := accumulation.New(p.acc.Shape())
			for i := range jobs {
				// Keep draining the channel after a failure so the feeder
				// never blocks.
				if errs[worker] != nil {
					continue
				}
				if err := p.runPulse(pulseCfg, partial); err != nil {
					errs[worker] = fmt.Errorf("pulse %d: %v", i, err)
				}
			}
			partials[worker] = partial
		}(w)
	}

	for i := 0; i < pulses; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	// Reduce the partial sums into the run buffer.
	for _, partial := range partials {
		if partial == nil {
			continue
		}
		if err := p.acc.Merge(partial); err != nil {
			return err
		}
	}
	fmt.Printf("Accumulated %d pulses across %d workers\n", p.acc.Pulses(), workers)
	return nil
}

// runPulse performs one full simulate-then-replay iteration and adds the
// resulting Jacobian into the given accumulator. The add is all-or-nothing,
// so an interrupted loop never leaves a partial pulse in the buffer.
func (p *Pipeline) runPulse(pulseCfg simulation.PulseConfig, acc *accumulation.VolumeAccumulator) error {
	rec, err := p.driver.Forward(pulseCfg)
	if err != nil {
		return fmt.Errorf("forward simulation: %v", err)
	}
	jac, err := p.driver.Replay(pulseCfg, rec)
	if err != nil {
		return fmt.Errorf("sensitivity replay: %v", err)
	}
	return acc.Add(jac)
}

// renderProjection computes the log projection, clips it to the configured
// display window and saves the exported plane as a PNG.
func (p *Pipeline) renderProjection() error {
	cfg := p.params.Config

	windowDB := cfg.Display.ProjectionWindowDB
	if windowDB <= 0 {
		windowDB = 60
	}
	proj := projection.Project(p.acc.Snapshot())
	floor := projection.ClipDB(proj, windowDB)

	peak := floats.Max(proj.Data)
	if !(peak > floor) {
		// Nothing above the display floor; an all-zero accumulation ends up
		// here. The projection stays unrendered rather than failing the run.
		fmt.Println("Warning: projection has no dynamic range, skipping image")
		return nil
	}

	viewer, err := visualization.NewViewer(floor, peak, cfg.Display.Gamma, cfg.Display.Colormap)
	if err != nil {
		return err
	}
	img, err := viewer.RenderSlice(proj, cfg.Video.Axis, cfg.Video.PlaneIndex)
	if err != nil {
		return err
	}
	return visualization.SavePNG(img, p.ProjectionPath())
}

// exportGatedFrames streams the gated window sums into the video sink in
// strictly increasing offset order and plots the gate time course.
func (p *Pipeline) exportGatedFrames() error {
	cfg := p.params.Config

	engine, err := gating.NewEngine(p.acc.Snapshot(), cfg.Gate.Width)
	if err != nil {
		return err
	}
	fmt.Printf("Gate width %d bins over %d time bins: %d frames\n",
		cfg.Gate.Width, p.acc.Shape().T, engine.NumFrames())

	viewer, err := visualization.NewViewer(cfg.Display.GateMin, cfg.Display.GateMax,
		cfg.Display.Gamma, cfg.Display.Colormap)
	if err != nil {
		return err
	}

	shape := p.acc.Shape()
	exporter, err := visualization.CreateExporter(viewer, p.VideoPath(),
		cfg.Video.Axis, cfg.Video.PlaneIndex, shape.X, shape.Y, shape.Z, cfg.Video.FrameRate)
	if err != nil {
		return err
	}

	// The recorder taps each frame's mean intensity on its way to the sink.
	recorder := &gateMeanRecorder{src: engine.Frames()}
	if err := exporter.Export(recorder); err != nil {
		return err
	}
	p.summary.Frames = len(recorder.means)

	if len(recorder.means) == 0 {
		// W >= T: a validly finalized empty video, nothing to plot.
		return nil
	}
	return saveTimeCoursePlot(p.TimeCoursePath(), recorder.means)
}

// gateMeanRecorder forwards a gated frame sequence unchanged while recording
// the mean intensity of every frame.
type gateMeanRecorder struct {
	src   *gating.FrameSeq
	means []float64
}

func (r *gateMeanRecorder) Next() bool {
	if !r.src.Next() {
		return false
	}
	vol := r.src.Volume()
	r.means = append(r.means, floats.Sum(vol.Data)/float64(len(vol.Data)))
	return true
}

func (r *gateMeanRecorder) Offset() int { return r.src.Offset() }

func (r *gateMeanRecorder) Volume() *models.Volume3D { return r.src.Volume() }

// saveTimeCoursePlot renders mean gated intensity against window start
// offset.
func saveTimeCoursePlot(path string, means []float64) error {
	pl := plot.New()
	pl.Title.Text = "Gated intensity time course"
	pl.X.Label.Text = "Window start offset (bins)"
	pl.Y.Label.Text = "Mean gated intensity"

	xys := make(plotter.XYs, len(means))
	for i, m := range means {
		xys[i].X = float64(i)
		xys[i].Y = m
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("building time-course line: %v", err)
	}
	pl.Add(plotter.NewGrid(), line)

	return pl.Save(8*vg.Inch, 4*vg.Inch, path)
}
