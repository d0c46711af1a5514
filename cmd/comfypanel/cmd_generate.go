package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/comfypanel/comfypanel/client"
	"github.com/comfypanel/comfypanel/session"
)

var generateOpts struct {
	negative  string
	width     int
	height    int
	steps     int
	cfg       float64
	sampler   string
	model     string
	loras     []string
	batchSize int
	workflow  string
	count     int
	noSave    bool
	noStream  bool
}

var generateCmd = &cobra.Command{
	Use:   "generate PROMPT",
	Short: "Generate images and save them to the gallery",
	Long: `Submit PROMPT --count times, one job after the other, wait for each job and
record its images in the gallery store.

A job that fails on the backend does not stop the remaining ones; a job the
backend refuses to queue does.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	defaults := client.DefaultGenerationRequest()
	f := generateCmd.Flags()
	f.StringVarP(&generateOpts.negative, "negative", "n", defaults.NegativePrompt, "Negative prompt")
	f.IntVar(&generateOpts.width, "width", defaults.Width, "Image width")
	f.IntVar(&generateOpts.height, "height", defaults.Height, "Image height")
	f.IntVar(&generateOpts.steps, "steps", defaults.Steps, "Sampling steps")
	f.Float64Var(&generateOpts.cfg, "cfg", defaults.CFG, "Classifier-free guidance scale")
	f.StringVar(&generateOpts.sampler, "sampler", defaults.SamplerName, "Sampler name")
	f.StringVarP(&generateOpts.model, "model", "m", "", "Checkpoint name (backend default when empty)")
	f.StringSliceVar(&generateOpts.loras, "lora", nil, "LoRA to apply, may be repeated")
	f.IntVar(&generateOpts.batchSize, "batch-size", defaults.BatchSize, "Images per job")
	f.StringVarP(&generateOpts.workflow, "workflow", "w", defaults.WorkflowID, "Workflow tag stored with the gallery items")
	f.IntVarP(&generateOpts.count, "count", "c", 1, "Number of jobs to submit")
	f.BoolVar(&generateOpts.noSave, "no-save", false, "Do not record images in the gallery")
	f.BoolVar(&generateOpts.noStream, "no-stream", false, "Do not subscribe to the backend event stream")
	f.Duration("poll-interval", 0, "Delay between status polls")
	f.Duration("max-wait", 0, "Give up on a job after this long (0 waits forever)")

	bindFlag("poll_interval", f.Lookup("poll-interval"))
	bindFlag("max_wait", f.Lookup("max-wait"))
}

func generateRequest(args []string) client.GenerationRequest {
	return client.GenerationRequest{
		PositivePrompt: strings.Join(args, " "),
		NegativePrompt: generateOpts.negative,
		Width:          generateOpts.width,
		Height:         generateOpts.height,
		Steps:          generateOpts.steps,
		CFG:            generateOpts.cfg,
		SamplerName:    generateOpts.sampler,
		Model:          generateOpts.model,
		LoraNames:      generateOpts.loras,
		BatchSize:      generateOpts.batchSize,
		WorkflowID:     generateOpts.workflow,
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := generateRequest(args)
	out := cmd.OutOrStdout()

	backend := backendClient()
	var store session.GalleryStore
	if !generateOpts.noSave {
		store = galleryClient()
	}
	coord := session.New(backend, store,
		session.WithPollInterval(cfg.PollInterval),
		session.WithMaxWait(cfg.MaxWait),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	streamCtx, stopStream := context.WithCancel(gctx)
	defer stopStream()

	bar := &jobProgress{}
	if !generateOpts.noStream {
		handlers := coord.StreamHandlers().
			Then(client.DefaultEventHandlers()).
			Then(bar.handlers())
		stream, err := backend.NewEventStream(handlers)
		if err != nil {
			return err
		}
		stream.MaxRetry = cfg.Stream.MaxRetry
		stream.BaseDelay = cfg.Stream.BaseDelay
		stream.MaxDelay = cfg.Stream.MaxDelay

		// progress is a hint; a dead stream must not fail the run
		g.Go(func() error {
			if err := stream.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("event stream stopped", "error", err)
			}
			return nil
		})
	}

	var final session.Update
	g.Go(func() error {
		defer stopStream()
		updates, err := coord.SubmitBatch(gctx, req, generateOpts.count)
		if err != nil {
			return err
		}
		for u := range updates {
			if u.Kind != session.UpdateGenerating {
				bar.finish()
			}
			fmt.Fprintln(out, u.Status)
			final = u
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %d image(s)\n", final.Saved)
	if final.Kind != session.UpdateFinished {
		if final.Err == nil {
			return errors.New(final.Status)
		}
		return fmt.Errorf("%s: %w", final.Status, final.Err)
	}
	return nil
}

// jobProgress draws a progress bar for the sampler of the executing job.
type jobProgress struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	promptID string
	max      int
}

func (p *jobProgress) handlers() *client.EventHandlers {
	return (&client.EventHandlers{}).
		WithProgressHandler(func(msg *client.EventProgressData) {
			p.mu.Lock()
			defer p.mu.Unlock()
			// every sampler node reports its own range
			if p.bar == nil || msg.PromptID != p.promptID || msg.Max != p.max {
				if p.bar != nil {
					p.bar.Finish()
				}
				p.bar = progressbar.Default(int64(msg.Max), "sampling")
				p.promptID = msg.PromptID
				p.max = msg.Max
			}
			p.bar.Set(msg.Value)
		}).
		WithExecutingHandler(func(msg *client.EventExecutingData) {
			if msg.Node == nil {
				p.finish()
			}
		})
}

func (p *jobProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
