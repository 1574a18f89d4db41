package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the face encoding gallery",
	Long: `Manage the gallery of known face encodings built from the enrollment corpus.

The corpus holds one directory per student (CORPUS_DIR/<student-id>/) with
one or more face images. Every usable image contributes one encoding.`,
}

var galleryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the gallery from the enrollment corpus",
	Long: `Encode every image in the enrollment corpus, save the gallery snapshot
and mirror it to the database when the backend supports it.

Images without a detectable face or that cannot be decoded are skipped.

Examples:
  attendance-cam gallery rebuild
  attendance-cam gallery rebuild --json`,
	Args: cobra.NoArgs,
	RunE: runGalleryRebuild,
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the saved gallery snapshot",
	Args:  cobra.NoArgs,
	RunE:  runGalleryInfo,
}

var galleryPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy the saved gallery snapshot to the database mirror",
	Long: `Replace the database mirror of the gallery with the saved snapshot.

Useful after restoring a snapshot file or switching to a new database.`,
	Args: cobra.NoArgs,
	RunE: runGalleryPush,
}

var gallerySimilarCmd = &cobra.Command{
	Use:   "similar <image>",
	Short: "List the mirrored encodings closest to the face in an image",
	Long: `Encode the largest face in an image and list the nearest encodings
stored in the database mirror, closest first.

Examples:
  attendance-cam gallery similar photo.jpg
  attendance-cam gallery similar photo.jpg --limit 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGallerySimilar,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryRebuildCmd, galleryInfoCmd, galleryPushCmd, gallerySimilarCmd)

	galleryRebuildCmd.Flags().Bool("json", false, "Output stats as JSON")
	galleryInfoCmd.Flags().Bool("subjects", false, "List the enrolled student ids")
	gallerySimilarCmd.Flags().Int("limit", 5, "Maximum number of results")
	gallerySimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGalleryRebuild(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	jsonOutput := mustGetBool(cmd, "json")
	var bar *progressbar.ProgressBar
	progress := func(p gallery.Progress) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription("Encoding faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(p.Done)
	}

	stats, err := a.engine.RebuildGallery(cmd.Context(), progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("rebuilding gallery: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}
	fmt.Printf("Gallery rebuilt in %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Printf("  Images:     %d\n", stats.Images)
	fmt.Printf("  Encodings:  %d\n", stats.Entries)
	fmt.Printf("  Students:   %d\n", stats.Subjects)
	if stats.NoFace > 0 || stats.Unreadable > 0 || stats.Failed > 0 {
		fmt.Printf("  Skipped:    %d without a face, %d unreadable, %d failed\n", stats.NoFace, stats.Unreadable, stats.Failed)
	}
	fmt.Printf("Saved to %s\n", a.cfg.Gallery.SnapshotPath)
	return nil
}

func runGalleryInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	g, err := gallery.Load(cfg.Gallery.SnapshotPath)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot:   %s\n", cfg.Gallery.SnapshotPath)
	fmt.Printf("Built at:   %s\n", g.BuiltAt.Local().Format(time.DateTime))
	fmt.Printf("Encodings:  %d\n", g.Len())
	fmt.Printf("Students:   %d\n", len(g.Subjects()))
	fmt.Printf("Dimension:  %d\n", g.Dim())

	if mustGetBool(cmd, "subjects") {
		counts := make(map[string]int)
		for _, e := range g.Entries() {
			counts[e.SubjectID]++
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nSTUDENT\tENCODINGS")
		for _, id := range g.Subjects() {
			fmt.Fprintf(w, "%s\t%d\n", id, counts[id])
		}
		return w.Flush()
	}
	return nil
}

func runGalleryPush(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	g, err := gallery.Load(cfg.Gallery.SnapshotPath)
	if err != nil {
		return err
	}

	backend, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	mirror, err := database.GetGalleryMirror()
	if err != nil {
		return err
	}
	if err := mirror.ReplaceGallery(cmd.Context(), g.Entries()); err != nil {
		return fmt.Errorf("pushing gallery: %w", err)
	}
	count, err := mirror.CountGalleryEntries(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Mirrored %d encodings to the %s backend\n", count, backend.Name)
	return nil
}

// similarResult is one row of 'gallery similar'.
type similarResult struct {
	Position  int     `json:"position"`
	StudentID string  `json:"student_id"`
	Distance  float64 `json:"distance"`
}

func runGallerySimilar(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnreadableImage, err)
	}

	analyzer, release, err := openAnalyzer(cfg)
	if err != nil {
		return err
	}
	defer release()

	faces, err := analyzer.Analyze(cmd.Context(), img)
	if err != nil {
		return fmt.Errorf("analyzing image: %w", err)
	}
	if len(faces) == 0 {
		return errors.New("no face found in image")
	}
	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Box
	}
	face := faces[facematch.Largest(boxes)]

	backend, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	mirror, err := database.GetGalleryMirror()
	if err != nil {
		return err
	}
	entries, err := mirror.NearestEntries(cmd.Context(), face.Vector, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("querying gallery mirror: %w", err)
	}

	results := make([]similarResult, len(entries))
	for i, e := range entries {
		results[i] = similarResult{Position: e.Position, StudentID: e.SubjectID, Distance: e.Distance}
	}
	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("The gallery mirror is empty, run 'attendance-cam gallery push'")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTUDENT\tDISTANCE")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%.4f\n", r.Position, r.StudentID, r.Distance)
	}
	return w.Flush()
}
