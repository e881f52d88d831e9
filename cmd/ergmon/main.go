package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/ergmon/internal/analysis"
	"codeberg.org/mutker/ergmon/internal/config"
	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/export"
	"codeberg.org/mutker/ergmon/internal/logger"
	"codeberg.org/mutker/ergmon/internal/pid"
	"codeberg.org/mutker/ergmon/internal/session"
	"codeberg.org/mutker/ergmon/internal/stroke"
	"codeberg.org/mutker/ergmon/internal/telemetry"
)

// Recent strokes kept for the live status line.
const displayWindowSize = 5

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		if errors.HasCode(err, errors.ErrAlreadyRunning) {
			logger.Fatal().Msg("another instance is already running")
		}
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	app, err := newApp(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer app.shutdown()

	if err := app.run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

type app struct {
	cfg     *config.Config
	sink    *export.CSVSink
	archive export.Archive
	current *session.Session
	source  telemetry.Source

	mu      sync.Mutex
	recent  []stroke.Stroke
	samples int
}

func newApp(cfg *config.Config) (*app, error) {
	sink, err := export.NewCSVSink(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, sink: sink}
	if cfg.Archive {
		archive, err := export.NewArchive(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.archive = archive
	}

	return a, nil
}

func (a *app) shutdown() {
	if a.current != nil && a.current.State() == session.Recording {
		if err := a.current.Stop(); err != nil {
			logger.Error().Err(err).Msg("failed to stop session")
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close archive")
		}
	}
}

// run reads commands from stdin until quit or the context is canceled.
func (a *app) run(ctx context.Context) error {
	fmt.Println("Commands: start | stop | quit")

	commands := make(chan string)
	go func() {
		defer close(commands)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return a.finishCurrent()
		case cmd, ok := <-commands:
			if !ok {
				return a.finishCurrent()
			}
			switch cmd {
			case "":
			case "start":
				if err := a.startSession(); err != nil {
					logger.Error().Err(err).Msg("failed to start session")
				}
			case "stop":
				if err := a.finishCurrent(); err != nil {
					logger.Error().Err(err).Msg("failed to stop session")
				}
			case "quit", "q":
				return a.finishCurrent()
			default:
				fmt.Printf("unknown command: %s\n", cmd)
			}
		}
	}
}

func (a *app) startSession() error {
	errFactory := errors.New()

	if a.current != nil {
		if a.current.State() == session.Recording {
			return errFactory.WithMessage(errors.ErrMainLoop, "a session is already recording")
		}
		// A session that halted on its own still needs to be flushed
		if err := a.finishCurrent(); err != nil {
			return err
		}
	}

	source, err := a.openSource()
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.recent = nil
	a.samples = 0
	a.mu.Unlock()

	s := session.New(session.Options{
		PollTimeout:      time.Duration(a.cfg.PollTimeoutMs) * time.Millisecond,
		TimeoutThreshold: a.cfg.TimeoutThreshold,
		OnSample:         a.onSample,
	})
	if err := s.Start(source); err != nil {
		source.Close()
		return err
	}
	a.current = s
	a.source = source

	fmt.Printf("Recording session %s (%s source)\n", s.ID(), source.Kind())
	return nil
}

func (a *app) openSource() (telemetry.Source, error) {
	switch a.cfg.Source {
	case "live":
		transport, err := telemetry.OpenTransport()
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(a.cfg.PollTimeoutMs) * time.Millisecond
		return telemetry.NewLiveSource(transport, timeout), nil
	default:
		return telemetry.NewSimulatedSource(telemetry.SimulatorConfig{Seed: a.cfg.Seed})
	}
}

// finishCurrent stops, analyzes and exports the active session. A nil or
// already finished session is not an error.
func (a *app) finishCurrent() error {
	s := a.current
	if s == nil {
		return nil
	}
	a.current = nil

	if s.State() == session.Recording {
		if err := s.Stop(); err != nil {
			return err
		}
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close source")
		}
		a.source = nil
	}
	fmt.Println()

	summary, err := s.Analyze()
	if err != nil {
		if errors.HasCode(err, session.ErrNotStopped) {
			return nil
		}
		return err
	}
	printSummary(summary)

	if rejected := s.RejectedSamples(); rejected > 0 {
		logger.Warn().Int("rejected_samples", rejected).Msg("Some samples failed validation")
	}

	rec, err := export.Snapshot(s)
	if err != nil {
		return err
	}
	path, err := a.sink.Write(rec, summary)
	if err != nil {
		return err
	}
	fmt.Printf("Saved to %s\n", path)

	if a.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.archive.Store(ctx, rec, summary); err != nil {
			return err
		}
	}

	return nil
}

// onSample runs on the session's polling goroutine; keep it short.
func (a *app) onSample(sample telemetry.Sample, closed *stroke.Stroke) {
	a.mu.Lock()
	a.samples++
	if closed != nil {
		a.recent = append(a.recent, *closed)
		if len(a.recent) > displayWindowSize {
			a.recent = a.recent[len(a.recent)-displayWindowSize:]
		}
	}
	rate, length := rollingAverages(a.recent)
	a.mu.Unlock()

	if logger.IsService() {
		return
	}
	fmt.Printf("\r%8.1fm  %5.1f spm  %s /500m  %5.1fW  avg %4.1f spm %4.1fm/stroke ",
		sample.Distance,
		sample.StrokeRate,
		analysis.FormatPace(sample.Pace),
		sample.Power,
		rate,
		length,
	)
}

func rollingAverages(strokes []stroke.Stroke) (rate, length float64) {
	if len(strokes) == 0 {
		return 0, 0
	}
	for _, s := range strokes {
		rate += s.AvgStrokeRate
		length += s.Length
	}
	n := float64(len(strokes))
	return rate / n, length / n
}

func printSummary(s analysis.SessionSummary) {
	fmt.Println("=== Session Summary ===")
	fmt.Printf("Distance:     %.1f m\n", s.TotalDistance)
	fmt.Printf("Duration:     %s\n", analysis.FormatDuration(s.TotalDuration))
	fmt.Printf("Strokes:      %d\n", s.StrokeCount)
	fmt.Printf("Stroke rate:  %.1f spm (%.1f-%.1f)\n", s.StrokeRate.Mean, s.StrokeRate.Min, s.StrokeRate.Max)
	fmt.Printf("Pace:         %s /500m (%s-%s)\n",
		analysis.FormatPace(s.Pace.Mean),
		analysis.FormatPace(s.Pace.Min),
		analysis.FormatPace(s.Pace.Max),
	)
	fmt.Printf("Power:        %.1f W (%.1f-%.1f)\n", s.Power.Mean, s.Power.Min, s.Power.Max)
	fmt.Printf("Stroke len:   %.2f m (%.2f-%.2f)\n", s.StrokeLength.Mean, s.StrokeLength.Min, s.StrokeLength.Max)
	fmt.Printf("Consistency:  %.1f%%\n", s.Consistency)

	if len(s.Splits) == 0 {
		return
	}
	fmt.Println("--- 500m Splits ---")
	for _, split := range s.Splits {
		fmt.Printf("  %4.0f-%4.0fm  %s  %4.1f spm  %5.1f W  %d strokes\n",
			split.StartDistance,
			split.EndDistance,
			analysis.FormatPace(split.AvgPace),
			split.AvgStrokeRate,
			split.AvgPower,
			split.StrokeCount,
		)
	}
}
