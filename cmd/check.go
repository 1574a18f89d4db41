package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-cam/internal/engine"
)

var checkCmd = &cobra.Command{
	Use:   "check <image>",
	Short: "Identify the largest face in an image",
	Long: `Classify the largest face in an image against the saved gallery.

Prints the student id and distance when the face is identified, "unknown"
when it is not close enough to any enrolled face and "no face" when no face
is detected. With --record an identified student is also marked present
or late.

Examples:
  attendance-cam check snapshot.jpg
  attendance-cam check snapshot.jpg --record --session CS101
  attendance-cam check snapshot.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("record", false, "Record attendance for an identified student")
	checkCmd.Flags().String("session", "", "Subject code used with --record")
	checkCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	record := mustGetBool(cmd, "record")
	a, err := openApp(cmd.Context(), record)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.engine.ClassifyOnce(cmd.Context(), data, engine.ClassifyOptions{
		Record:  record,
		Session: mustGetString(cmd, "session"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(c)
	}

	switch c.Kind {
	case engine.KindNoFace:
		fmt.Println("no face")
	case engine.KindUnknown:
		fmt.Printf("unknown (%d faces, nearest distance %.4f)\n", c.Faces, c.Distance)
	case engine.KindIdentified:
		name := c.SubjectID
		if c.Student != nil {
			if n := c.Student.NameTH; n != "" {
				name += " " + n
			} else if n := c.Student.NameEN; n != "" {
				name += " " + n
			}
		}
		fmt.Printf("%s (distance %.4f, %d faces)\n", name, c.Distance, c.Faces)
		if c.Outcome != nil {
			printOutcome(*c.Outcome)
		}
	}
	return nil
}
