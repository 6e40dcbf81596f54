// Autocrop - crop a photograph around its most prominent face
//
// Loads a local file or URL, asks the gateway for faces and writes the crop.
//
// Usage:
//
//	autocrop -in photo.jpg -out cropped.jpg
//	autocrop -in http://localhost:3001/uploads/abc.png -gateway http://localhost:3001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/teslashibe/go-posterface/internal/config"
	"github.com/teslashibe/go-posterface/internal/httpc"
	"github.com/teslashibe/go-posterface/internal/log"
	"github.com/teslashibe/go-posterface/pkg/autocrop"
	"github.com/teslashibe/go-posterface/pkg/crop"
	"github.com/teslashibe/go-posterface/pkg/gateway"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fatal("env file: %v", err)
	}

	cfg := config.DefaultConfig()
	if err := cfg.LoadEnvConfig(); err != nil {
		fatal("configuration error: %v", err)
	}

	in := flag.String("in", "", "Input image: file path, http(s) URL or /uploads/... path")
	out := flag.String("out", "cropped.jpg", "Output JPEG path")
	gatewayURL := flag.String("gateway", cfg.GatewayURL, "Gateway base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Gateway request timeout")
	quality := flag.Int("quality", crop.DefaultJPEGQuality, "Output JPEG quality")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := gateway.NewClient(*gatewayURL, httpc.NewClient(*timeout))
	session := autocrop.NewSession(client,
		autocrop.WithLogger(log.L()),
		autocrop.WithFetcher(gateway.NewFetcher(*gatewayURL)),
	)

	stateColor := color.New(color.FgCyan)
	session.OnState(func(st autocrop.State) {
		stateColor.Printf("• %s\n", st)
	})

	if err := load(ctx, session, *in); err != nil {
		fatal("load %s: %v", *in, err)
	}

	report, err := session.AutoCrop(ctx)
	if err != nil {
		fatal("autocrop: %v", err)
	}

	data, err := crop.EncodeJPEG(session.Image(), *quality)
	if err != nil {
		fatal("encode: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fatal("write %s: %v", *out, err)
	}

	printReport(report, *out)
}

func load(ctx context.Context, s *autocrop.Session, in string) error {
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") ||
		strings.HasPrefix(in, "data:") || strings.HasPrefix(in, "/uploads/") {
		return s.LoadURL(ctx, in)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return s.LoadBytes(data)
}

func printReport(r autocrop.Report, out string) {
	var outcome *color.Color
	switch r.Outcome {
	case autocrop.Real:
		outcome = color.New(color.FgGreen, color.Bold)
	case autocrop.Heuristic:
		outcome = color.New(color.FgYellow, color.Bold)
	default:
		outcome = color.New(color.FgBlue, color.Bold)
	}

	fmt.Println()
	outcome.Printf("%s: ", strings.ToUpper(r.Outcome.String()))
	fmt.Println(r.Message)
	for i, f := range r.Faces {
		fmt.Printf("  face %d  conf %.2f  box (%.0f, %.0f) %.0fx%.0f\n",
			i, f.Confidence, f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
	}
	fmt.Printf("  crop    (%.0f, %.0f) %.0fx%.0f\n", r.Crop.X, r.Crop.Y, r.Crop.Width, r.Crop.Height)
	color.New(color.Faint).Printf("  wrote %s\n", out)
}

func fatal(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
