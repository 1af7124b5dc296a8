package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/config"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/ui"
	"github.com/codeninja55/go-jpip/jpip"
	"golang.org/x/time/rate"
)

// RequestCmd drives a single in-process JPIP channel end to end: it opens
// target, applies one parsed window-of-interest request, and pulls
// GenerateChunk until the response completes, writing the raw framed
// message stream to a file. It exercises exactly the three entrypoints an
// HTTP front end would (Open, SetRequest, GenerateChunk), minus the HTTP
// framing itself.
type RequestCmd struct {
	Target string `arg:"" help:"Image path, joined with --images-folder (a leading '/' is stripped first)"`

	Fsiz           string  `name:"fsiz" help:"Target frame size \"Fx,Fy[,round-up|round-down|closest]\""`
	Roff           string  `name:"roff" default:"0,0" help:"Window origin \"Rx,Ry\""`
	Rsiz           string  `name:"rsiz" help:"Window extent \"Rw,Rh\""`
	Stream         string  `name:"stream" default:"0" help:"Codestream range \"a[:b]\""`
	Len            int     `name:"len" default:"1048576" help:"Byte budget for the full response"`
	Out            string  `name:"out" help:"File to write the raw JPIP message stream to (default <target base name>.jpip)"`
	RateLimitBytes float64 `name:"rate-limit-bytes" default:"0" help:"Throttle chunk delivery to N bytes/second (0 = unlimited)"`
}

// Run opens target, issues one WOI request against a fresh channel, and
// streams the response to disk, logging each chunk and finishing with a
// cache-model summary of what the (single, ephemeral) client now holds.
func (c *RequestCmd) Run(cfg *config.GlobalConfig) error {
	ui.PrintBanner()
	logger := log.Default()

	if c.Fsiz == "" || c.Rsiz == "" {
		if err := c.promptMissing(); err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
	}

	path := cfg.ResolveTarget(c.Target)
	cache := jpip.NewImageCacheWithRoot(cfg.ImagesFolder)
	sessions := jpip.NewSessionManager(cache)
	sess := sessions.NewChannel()

	logger.Info("opening channel", "cid", sess.Cid(), "target", path)
	if err := sess.Open(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer sess.Close()

	query := fmt.Sprintf("target=%s&fsiz=%s&roff=%s&rsiz=%s&stream=%s&len=%d",
		path, c.Fsiz, c.Roff, c.Rsiz, c.Stream, c.Len)
	req, err := jpip.ParseRequest(query)
	if err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := sess.SetRequest(req); err != nil {
		return fmt.Errorf("failed to apply request: %w", err)
	}

	outPath := c.Out
	if outPath == "" {
		outPath = filepath.Base(c.Target) + ".jpip"
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	var limiter *rate.Limiter
	if c.RateLimitBytes > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RateLimitBytes), int(c.RateLimitBytes))
	}

	total, err := streamResponse(sess, out, cfg.MaxChunkSize, limiter, logger)
	if err != nil {
		return err
	}
	logger.Info("response complete", "total_bytes", total, "out", outPath)

	return ui.RenderCacheModel(os.Stdout, sess.CacheModel(), req.Codestreams, cfg.Format)
}

// streamResponse drives GenerateChunk to completion, writing every chunk
// to out and, if limiter is set, pacing delivery to simulate a
// bandwidth-constrained client connection.
func streamResponse(sess *jpip.Session, out *os.File, maxChunkSize int, limiter *rate.Limiter, logger *log.Logger) (int, error) {
	buf := make([]byte, maxChunkSize)
	total := 0

	for {
		n, done, err := sess.GenerateChunk(buf, maxChunkSize)
		if err != nil {
			return total, fmt.Errorf("generate chunk: %w", err)
		}

		if limiter != nil && n > 0 {
			if err := limiter.WaitN(context.Background(), n); err != nil {
				return total, fmt.Errorf("rate limit: %w", err)
			}
		}

		if _, err := out.Write(buf[:n]); err != nil {
			return total, fmt.Errorf("write chunk: %w", err)
		}
		total += n
		logger.Debug("chunk written", "bytes", n, "done", done)

		if done {
			return total, nil
		}
	}
}

// promptMissing interactively collects fsiz/rsiz when the caller omitted
// them from the command line.
func (c *RequestCmd) promptMissing() error {
	fields := []huh.Field{}
	if c.Fsiz == "" {
		fields = append(fields, huh.NewInput().
			Title("Target frame size (Fx,Fy[,round-up|round-down|closest])").
			Placeholder("1024,1024").
			Value(&c.Fsiz))
	}
	if c.Rsiz == "" {
		fields = append(fields, huh.NewInput().
			Title("Window extent (Rw,Rh)").
			Placeholder("1024,1024").
			Value(&c.Rsiz))
	}
	if len(fields) == 0 {
		return nil
	}
	form := huh.NewForm(huh.NewGroup(fields...))
	return form.Run()
}
