package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-cam/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Attendance Cam web server.

The server streams the annotated camera feed at /video_feed, records
attendance for recognized students and exposes the REST API under /api/v1.
The camera starts when the first viewer connects, or explicitly with
--camera-session or POST /api/v1/cameras.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().Bool("start-camera", false, "Start recognizing on CAMERA_DEVICE without waiting for a viewer")
	serveCmd.Flags().String("camera-session", "", "Subject code for --start-camera (empty records the daily check-in)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	info := a.engine.Gallery()
	fmt.Printf("Gallery: %d encodings for %d students\n", info.Entries, info.Subjects)
	if info.Entries == 0 {
		fmt.Printf("Warning: gallery is empty, run 'attendance-cam gallery rebuild' or POST /api/v1/gallery/rebuild\n")
	}

	if mustGetBool(cmd, "start-camera") {
		run, err := a.engine.StartCamera(cmd.Context(), a.cfg.Camera.Device, mustGetString(cmd, "camera-session"))
		if err != nil {
			a.Close()
			return fmt.Errorf("starting camera: %w", err)
		}
		fmt.Printf("Camera %s running (run %s)\n", run.Device, run.ID)
	}

	server := web.NewServer(a.cfg, a.engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		fmt.Println("\nShutting down...")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Attendance Cam on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		fmt.Printf("Warning: systemd notify failed: %v\n", err)
	} else if sent {
		fmt.Println("Notified systemd: ready")
	}

	if err := server.Start(); err != nil {
		a.Close()
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	a.Close()
	return nil
}
