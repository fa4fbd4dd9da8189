package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/vmic/internal/audio"
	"github.com/petems/vmic/internal/bridge"
	"github.com/petems/vmic/internal/config"
	"github.com/petems/vmic/internal/graph"
	"github.com/petems/vmic/internal/logging"
	"github.com/petems/vmic/internal/media"
	"github.com/petems/vmic/internal/recorder"
	"github.com/petems/vmic/internal/vmic"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "vmic",
	Short: "Virtual microphone fed by a translation engine",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the virtual microphone and the frame bridge",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices, including the virtual microphone",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vmic %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	return cfg, logging.NewWithLevel(cfg.LogLevel)
}

func newShim(cfg *config.Config, platform media.Devices, log zerolog.Logger) *vmic.Shim {
	return vmic.New(vmic.Config{
		Devices: platform,
		Graph: graph.Options{
			SampleRate: cfg.Graph.SampleRate,
			Channels:   cfg.Graph.Channels,
			Quantum:    cfg.Graph.Quantum,
		},
		Realtime:       true,
		FrameType:      cfg.Frames.MessageType,
		AllowedOrigins: cfg.Frames.AllowedOrigins,
		VideoPolicy:    vmic.VideoPolicy(cfg.Capture.VideoPolicy),
		Logger:         log,
	})
}

func serve() {
	cfg, log := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	platform, err := audio.New(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer platform.Close()

	shim := newShim(cfg, platform, log)
	defer shim.Close()

	server := bridge.New(bridge.Config{
		Addr:           cfg.Bridge.Addr,
		FramesPath:     cfg.Bridge.FramesPath,
		StatusPath:     cfg.Bridge.StatusPath,
		MaxMessageSize: int64(cfg.Bridge.MaxFrameKiB) * 1024,
		Target:         shim.Target(),
		Status:         shim.Status,
		Logger:         log,
	})
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("Bridge stopped")
			cancel()
		}
	}()

	log.Info().Str("version", Version).Msg("vmic starting...")

	// Act as the host application: find the virtual microphone and open it.
	devices, err := shim.EnumerateDevices(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enumerate devices")
	}
	for _, d := range devices {
		log.Debug().Str("id", d.DeviceID).Str("kind", string(d.Kind)).Str("label", d.Label).Msg("Device")
	}

	stream, err := shim.GetUserMedia(ctx, media.Constraints{
		Audio: media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Exact(vmic.VirtualDeviceID)}},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open virtual microphone")
	}
	log.Info().Str("stream", stream.ID()).Msg("Virtual microphone open")

	var wg sync.WaitGroup
	if cfg.Recorder.Path != "" {
		if track, ok := stream.AudioTracks()[0].(media.AudioTrack); ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := recorder.Record(ctx, track, cfg.Recorder.Path, log); err != nil {
					log.Error().Err(err).Msg("Recorder failed")
				}
			}()
		}
	}

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	wg.Wait()
}

func listDevices() {
	cfg, log := loadConfig()

	platform, err := audio.New(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer platform.Close()

	shim := newShim(cfg, platform, log)
	defer shim.Close()

	devices, err := shim.EnumerateDevices(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enumerate devices")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tLABEL\tGROUP")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Kind, d.DeviceID, d.Label, d.GroupID)
	}
	w.Flush()
}
