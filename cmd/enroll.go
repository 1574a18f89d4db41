package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <student-id>",
	Short: "Capture enrollment images for a student from the camera",
	Long: `Capture face images of a student from the camera into the enrollment
corpus (CORPUS_DIR/<student-id>/<student-id>_<n>.jpg), save the student
record and rebuild the gallery.

Numbering continues after the images already enrolled for the student.

Examples:
  attendance-cam enroll 6401 --name-th "สมชาย ใจดี" --name-en "Somchai Jaidee" --classroom M.5/1
  attendance-cam enroll 6401 --frames 10 --device http://10.0.0.5:8080/video
  attendance-cam enroll 6401 --no-rebuild`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name-th", "", "Thai name")
	enrollCmd.Flags().String("name-en", "", "English name")
	enrollCmd.Flags().String("classroom", "", "Classroom, e.g. M.5/1")
	enrollCmd.Flags().Int("roll", 0, "Roll number in the classroom")
	enrollCmd.Flags().String("device", "", "Camera device (default CAMERA_DEVICE)")
	enrollCmd.Flags().Int("frames", 0, "Number of images to capture (default from config)")
	enrollCmd.Flags().Duration("interval", 0, "Pause between captures (default from config)")
	enrollCmd.Flags().Int("countdown", 3, "Seconds to wait before the first capture")
	enrollCmd.Flags().Bool("no-rebuild", false, "Skip the gallery rebuild")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	studentID := args[0]

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	device := mustGetString(cmd, "device")
	if device == "" {
		device = a.cfg.Camera.Device
	}
	frames := mustGetInt(cmd, "frames")
	if frames <= 0 {
		frames = a.cfg.Defaults.Enroll.Frames
	}
	interval := mustGetDuration(cmd, "interval")
	if interval <= 0 {
		interval = time.Duration(a.cfg.Defaults.Enroll.IntervalMs) * time.Millisecond
	}

	// Validates the id before touching the camera.
	if _, err := gallery.NextSamplePath(a.cfg.Gallery.CorpusDir, studentID); err != nil {
		return err
	}

	saved, err := captureSamples(ctx, device, a.cfg.Gallery.CorpusDir, studentID, frames, interval, mustGetInt(cmd, "countdown"))
	if err != nil {
		return err
	}
	fmt.Printf("Saved %d images for %s\n", len(saved), studentID)

	if err := upsertEnrolledStudent(ctx, a.backend.Students, database.Student{
		ID:         studentID,
		NameTH:     mustGetString(cmd, "name-th"),
		NameEN:     mustGetString(cmd, "name-en"),
		Classroom:  mustGetString(cmd, "classroom"),
		RollNumber: mustGetInt(cmd, "roll"),
	}); err != nil {
		return err
	}

	if mustGetBool(cmd, "no-rebuild") {
		fmt.Println("Skipping gallery rebuild")
		return nil
	}
	fmt.Println("Rebuilding gallery...")
	stats, err := a.engine.RebuildGallery(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuilding gallery: %w", err)
	}
	fmt.Printf("Gallery now holds %d encodings for %d students\n", stats.Entries, stats.Subjects)
	return nil
}

// captureSamples grabs frames from device after a countdown and writes them
// as JPEGs into the student's corpus directory.
func captureSamples(ctx context.Context, device, corpus, studentID string, frames int, interval time.Duration, countdown int) ([]string, error) {
	release, err := capture.Acquire(device, "enroll "+studentID)
	if err != nil {
		return nil, err
	}
	defer release()

	src, err := capture.Open(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("opening camera: %w", err)
	}
	defer src.Close()

	for i := countdown; i > 0; i-- {
		fmt.Printf("Look at the camera... %d\n", i)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	var saved []string
	for len(saved) < frames {
		frame, err := src.Next(ctx)
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return saved, fmt.Errorf("capturing frame: %w", err)
		}

		data, err := imaging.EncodeJPEG(frame.Image, 95)
		if err != nil {
			return saved, err
		}
		path, err := gallery.NextSamplePath(corpus, studentID)
		if err != nil {
			return saved, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, fmt.Errorf("writing %s: %w", path, err)
		}
		saved = append(saved, path)
		fmt.Printf("  [%d/%d] %s\n", len(saved), frames, path)

		if len(saved) < frames && interval > 0 {
			select {
			case <-ctx.Done():
				return saved, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	if len(saved) == 0 {
		return nil, errors.New("camera produced no frames")
	}
	return saved, nil
}

// upsertEnrolledStudent saves s, keeping stored fields the flags left empty.
func upsertEnrolledStudent(ctx context.Context, students database.StudentWriter, s database.Student) error {
	existing, err := students.GetStudent(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("loading student: %w", err)
	}
	if existing != nil {
		if s.NameTH == "" {
			s.NameTH = existing.NameTH
		}
		if s.NameEN == "" {
			s.NameEN = existing.NameEN
		}
		if s.Classroom == "" {
			s.Classroom = existing.Classroom
		}
		if s.RollNumber == 0 {
			s.RollNumber = existing.RollNumber
		}
	}
	if err := students.UpsertStudent(ctx, s); err != nil {
		return fmt.Errorf("saving student: %w", err)
	}
	return nil
}
