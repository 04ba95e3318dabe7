package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quickledger/quickledger/internal/app/registration"
	"github.com/quickledger/quickledger/internal/daemon"
	"github.com/quickledger/quickledger/internal/domain"
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.AddCommand(registerApproveCmd)
	registerCmd.AddCommand(registerCloseCmd)
	registerCmd.AddCommand(registerGPACmd)
	registerCmd.AddCommand(registerShowCmd)
	registerCmd.AddCommand(registerCourseCmd)

	f := registerCmd.Flags()
	f.String("semester", "", "Semester code (default from config)")
	f.String("level", "", "Level code (default the student's level)")
	f.String("receipt", "", "Receipt number")
	f.Bool("legacy", false, "Legacy registration: no fees are charged")
	registerCourseCmd.Flags().Bool("carry-over", false, "Course is brought forward from an earlier session")

	rootCmd.AddCommand(resultCmd)
	resultCmd.AddCommand(resultAddCmd)
	resultCmd.AddCommand(resultBookCmd)
	f = resultAddCmd.Flags()
	f.Float64("exam", 0, "Examination score")
	f.Float64("test", 0, "Test score")
	f.Float64("practicals", 0, "Practicals score")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// ─── register ───────────────────────────────────────────────────────────────

var registerCmd = &cobra.Command{
	Use:   "register MATRIC SESSION",
	Short: "Register a student for a session and charge its fees",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			st, err := d.DB.FindStudentByMatric(ctx, args[0])
			if err != nil {
				return err
			}
			sess, err := d.DB.FindSession(ctx, args[1])
			if err != nil {
				return err
			}
			f := cmd.Flags()
			req := registration.Request{StudentID: st.ID, SessionID: sess.ID}
			req.ReceiptNumber, _ = f.GetString("receipt")
			req.IsLegacy, _ = f.GetBool("legacy")
			if code, _ := f.GetString("semester"); code != "" {
				sem, err := d.DB.FindSemester(ctx, code)
				if err != nil {
					return err
				}
				req.SemesterID = sem.ID
			}
			if code, _ := f.GetString("level"); code != "" {
				lvl, err := d.DB.FindLevel(ctx, code)
				if err != nil {
					return err
				}
				req.LevelID = lvl.ID
			}
			reg, err := d.Registrations.Register(ctx, req)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "registration %d created for %s in %s", reg.ID, st.Matric, sess.Code)
			return showRegistration(cmd, ctx, d, reg.ID)
		})
	},
}

func registrationTransition(use, short string, fn func(d *daemon.Daemon) func(context.Context, int64) (*domain.Registration, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
				reg, err := fn(d)(ctx, id)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "registration %d is %s (GPA %g)", reg.ID, reg.State, reg.GPA)
				return nil
			})
		},
	}
}

var registerApproveCmd = registrationTransition("approve", "Approve a New registration",
	func(d *daemon.Daemon) func(context.Context, int64) (*domain.Registration, error) { return d.Registrations.Approve })

var registerCloseCmd = registrationTransition("close", "Close an Approved registration and recompute its GPA",
	func(d *daemon.Daemon) func(context.Context, int64) (*domain.Registration, error) { return d.Registrations.Close })

var registerGPACmd = registrationTransition("gpa", "Recompute a registration's GPA from its approved results",
	func(d *daemon.Daemon) func(context.Context, int64) (*domain.Registration, error) { return d.Registrations.RecomputeGPA })

var registerShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a registration with its courses, fees and results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			return showRegistration(cmd, ctx, d, id)
		})
	},
}

var registerCourseCmd = &cobra.Command{
	Use:   "course REGISTRATION_ID COURSE_CODE",
	Short: "Add a course to a registration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			course, err := findCourse(ctx, d, id, args[1])
			if err != nil {
				return err
			}
			carry, _ := cmd.Flags().GetBool("carry-over")
			cr, err := d.Registrations.AddCourse(ctx, id, course.ID, carry)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s (%d units) on registration %d", course.Code, cr.Units, id)
			return nil
		})
	},
}

// findCourse resolves a course code within the registration's programme.
func findCourse(ctx context.Context, d *daemon.Daemon, registrationID int64, code string) (*domain.Course, error) {
	reg, err := d.DB.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return d.DB.FindCourse(ctx, reg.ProgrammeID, code)
}

func showRegistration(cmd *cobra.Command, ctx context.Context, d *daemon.Daemon, id int64) error {
	det, err := d.Registrations.Get(ctx, id)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	reg := det.Registration
	title(w, "Registration %d  state=%s  GPA=%g", reg.ID, reg.State, reg.GPA)
	fmt.Fprintf(w, "charges %s  credit units %d\n", det.TotalCharges, det.TotalCreditUnits)
	if len(det.Courses)+len(det.BroughtForward) > 0 {
		table := newTable(w, "Course", "Units", "Carry Over")
		for _, c := range append(det.Courses, det.BroughtForward...) {
			table.Append([]string{c.CourseCode, fmt.Sprint(c.Units), fmt.Sprint(c.BroughtForward)})
		}
		table.Render()
	}
	if len(det.FeeEntries) > 0 {
		table := newTable(w, "Fee Entry", "Type", "Due", "Paid")
		for _, f := range det.FeeEntries {
			table.Append([]string{fmt.Sprint(f.ID), f.TypeName, f.AmountDue.String(), f.AmountPaid.String()})
		}
		table.Render()
	}
	if len(det.Results) > 0 {
		table := newTable(w, "Course", "Units", "Score", "Grade", "Points", "Status")
		for _, e := range det.Results {
			table.Append([]string{e.CourseCode, fmt.Sprint(e.Units), fmt.Sprintf("%g", e.Score),
				e.GradeName, fmt.Sprintf("%g", e.GradePoint), string(e.Status)})
		}
		table.Render()
	}
	return nil
}

// ─── result ─────────────────────────────────────────────────────────────────

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Record results and show result books",
}

var resultAddCmd = &cobra.Command{
	Use:   "add REGISTRATION_ID COURSE_CODE",
	Short: "Record an approved result and recompute GPA and CGPA",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			course, err := findCourse(ctx, d, id, args[1])
			if err != nil {
				return err
			}
			f := cmd.Flags()
			var sc domain.Scores
			sc.Exam, _ = f.GetFloat64("exam")
			sc.Test, _ = f.GetFloat64("test")
			sc.Practicals, _ = f.GetFloat64("practicals")
			e, err := d.Registrations.AddResult(ctx, id, course.ID, sc)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s scored %g: grade %s", e.CourseCode, e.Score, e.GradeName)
			return nil
		})
	},
}

var resultBookCmd = &cobra.Command{
	Use:   "book MATRIC",
	Short: "Show a student's result book and outstanding courses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			st, err := d.DB.FindStudentByMatric(ctx, args[0])
			if err != nil {
				return err
			}
			book, err := d.Results.Book(ctx, st.ID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			title(w, "%s  CGPA %g  %s", st.Matric, book.ResultBook.CGPA, book.ResultBook.Honours)
			table := newTable(w, "Session", "Course", "Units", "Score", "Grade", "Status")
			for _, e := range book.Entries {
				table.Append([]string{fmt.Sprint(e.SessionID), e.CourseCode, fmt.Sprint(e.Units),
					fmt.Sprintf("%g", e.Score), e.GradeName, string(e.Status)})
			}
			table.Render()
			if len(book.Outstanding) > 0 {
				warn(w, "outstanding: %d course(s) not yet passed", len(book.OutstandingCourses))
				for _, e := range book.Outstanding {
					fmt.Fprintf(w, "  %s\n", e.CourseCode)
				}
			}
			return nil
		})
	},
}
