package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Record, correct and list attendance",
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark <student-id>",
	Short: "Record a recognition event for a student",
	Long: `Record attendance for a student as if they had been recognized.
The status (present or late) is decided by the live policy; a student already
recorded for the date and session is left unchanged.

Examples:
  attendance-cam attendance mark 6401
  attendance-cam attendance mark 6401 --session CS101 --at 2026-10-19T09:12:00+07:00`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceMark,
}

var attendanceManualCmd = &cobra.Command{
	Use:   "manual <student-id> <status>",
	Short: "Enter an absence or leave for a student",
	Long: `Enter a manual status for a student. Allowed statuses are absent,
sick_leave and personal_leave (or their Thai labels ขาด, ลาป่วย, ลากิจ).

Examples:
  attendance-cam attendance manual 6401 sick_leave
  attendance-cam attendance manual 6401 ลากิจ --date 2026-10-18 --session CS101`,
	Args: cobra.ExactArgs(2),
	RunE: runAttendanceManual,
}

var attendanceCorrectCmd = &cobra.Command{
	Use:   "correct <record-id> <status>",
	Short: "Change the status of an existing record",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttendanceCorrect,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records",
	Long: `List attendance records for a date (default today), optionally
restricted to one session or one student.`,
	Args: cobra.NoArgs,
	RunE: runAttendanceList,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceMarkCmd, attendanceManualCmd, attendanceCorrectCmd, attendanceListCmd)

	attendanceMarkCmd.Flags().String("session", "", "Subject code (empty for the daily check-in)")
	attendanceMarkCmd.Flags().String("at", "", "Observation time in RFC 3339 (default now)")

	attendanceManualCmd.Flags().String("session", "", "Subject code (empty for the daily check-in)")
	attendanceManualCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")

	attendanceListCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	attendanceListCmd.Flags().String("session", "", "Only this subject code (DAILY for the daily check-in)")
	attendanceListCmd.Flags().String("student", "", "Only this student")
	attendanceListCmd.Flags().Int("limit", 0, "Maximum number of records")
	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
}

func printOutcome(o attendance.Outcome) {
	r := o.Record
	if o.Created {
		fmt.Printf("Recorded %s as %s (%s) on %s", r.SubjectID, r.Status, r.Status.Label(), r.Date)
	} else {
		fmt.Printf("Already recorded: %s is %s (%s) on %s", r.SubjectID, r.Status, r.Status.Label(), r.Date)
	}
	fmt.Printf(" session %s [record %d]\n", r.Session, r.ID)
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	var observedAt time.Time
	if at := mustGetString(cmd, "at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		observedAt = t
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.engine.RecordAttendance(cmd.Context(), args[0], mustGetString(cmd, "session"), observedAt)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

func runAttendanceManual(cmd *cobra.Command, args []string) error {
	status, err := attendance.ParseStatus(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	date := time.Now().In(a.engine.Location())
	if d := mustGetString(cmd, "date"); d != "" {
		date, err = time.ParseInLocation(time.DateOnly, d, a.engine.Location())
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	outcome, err := a.engine.RecordManual(cmd.Context(), args[0], mustGetString(cmd, "session"), date, status)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

func runAttendanceCorrect(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id %q", args[0])
	}
	status, err := attendance.ParseStatus(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.CorrectStatus(cmd.Context(), id, status)
	if err != nil {
		return err
	}
	fmt.Printf("Record %d: %s is now %s (%s)\n", rec.ID, rec.SubjectID, rec.Status, rec.Status.Label())
	return nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	date := mustGetString(cmd, "date")
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.engine.ListAttendance(cmd.Context(), attendance.Filter{
		Date:      date,
		Session:   mustGetString(cmd, "session"),
		SubjectID: mustGetString(cmd, "student"),
		Limit:     mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if records == nil {
			records = []attendance.Record{}
		}
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	if len(records) == 0 {
		fmt.Println("No attendance records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSESSION\tSTUDENT\tSTATUS\tOBSERVED\tSOURCE")
	for _, r := range records {
		observed := "-"
		if r.ObservedAt != nil {
			observed = r.ObservedAt.In(a.engine.Location()).Format(time.TimeOnly)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Session, r.SubjectID, r.Status.Label(), observed, r.Source)
	}
	return w.Flush()
}
