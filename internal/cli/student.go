package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/daemon"
	"github.com/quickledger/quickledger/internal/domain"
)

func init() {
	rootCmd.AddCommand(studentCmd)
	studentCmd.AddCommand(studentAddCmd)
	studentCmd.AddCommand(studentShowCmd)
	rootCmd.AddCommand(payCmd)

	f := studentAddCmd.Flags()
	f.String("name", "", "Full name")
	f.Int64("programme", 0, "Programme id")
	f.String("level", "", "Level code")
	f.String("admission-session", "", "Admission session code")
	f.String("bf", "0", "Balance brought forward (positive means owed)")
	f.String("phone", "", "Phone number")
	f.String("email", "", "Email address")
	studentAddCmd.MarkFlagRequired("name")
	studentAddCmd.MarkFlagRequired("programme")

	f = payCmd.Flags()
	f.String("session", "", "Session code the payment is for")
	f.String("date", "", "Payment date YYYY-MM-DD (default today)")
	f.String("bank", "", "Bank account; requires --teller")
	f.String("teller", "", "Teller number")
	f.String("receipt", "", "Receipt number")
	f.Int64Slice("fee", nil, "Restrict allocation to these fee entry ids")
	f.Bool("balance-forward", false, "Pay against the balance brought forward")
}

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Enrol students and show their ledgers",
}

var studentAddCmd = &cobra.Command{
	Use:   "add MATRIC",
	Short: "Enrol a student with a ledger and result book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			f := cmd.Flags()
			name, _ := f.GetString("name")
			prog, _ := f.GetInt64("programme")
			bfText, _ := f.GetString("bf")
			bf, err := domain.ParseMoney(bfText)
			if err != nil {
				return err
			}
			st := domain.Student{Matric: args[0], Name: name, ProgrammeID: prog, BalanceBroughtForward: bf}
			st.Phone, _ = f.GetString("phone")
			st.Email, _ = f.GetString("email")
			if code, _ := f.GetString("level"); code != "" {
				lvl, err := d.DB.FindLevel(ctx, code)
				if err != nil {
					return err
				}
				st.LevelID = lvl.ID
			}
			if code, _ := f.GetString("admission-session"); code != "" {
				sess, err := d.DB.FindSession(ctx, code)
				if err != nil {
					return err
				}
				st.AdmissionSessionID = sess.ID
			}

			en, err := d.Ledger.EnrollStudent(ctx, st)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "enrolled %s (%s) student=%d ledger=%d",
				en.Student.Name, en.Student.Matric, en.Student.ID, en.Ledger.ID)
			return nil
		})
	},
}

var studentShowCmd = &cobra.Command{
	Use:   "show MATRIC",
	Short: "Show a student's ledger, fees and payments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			sum, err := d.Ledger.SummaryByMatric(ctx, args[0])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		})
	},
}

func printSummary(w io.Writer, sum *ledger.Summary) {
	title(w, "%s  %s", sum.Student.Matric, sum.Student.Name)
	table := newTable(w, "Balance B/F", "Carried Forward", "Current Charges", "Amount Due", "Paid", "Balance")
	table.Append([]string{
		sum.Student.BalanceBroughtForward.String(),
		sum.Ledger.BalanceCarriedForward.String(),
		sum.Ledger.CurrentCharges.String(),
		sum.Totals.TotalAmountDue.String(),
		sum.Totals.TotalAmountPaid.String(),
		sum.Totals.TotalBalance.String(),
	})
	table.Render()

	if len(sum.FeeEntries) > 0 {
		title(w, "Fees")
		table = newTable(w, "ID", "Type", "Session", "Due", "Paid", "Balance")
		for _, f := range sum.FeeEntries {
			table.Append([]string{fmt.Sprint(f.ID), f.TypeName, fmt.Sprint(f.SessionID),
				f.AmountDue.String(), f.AmountPaid.String(), f.Balance().String()})
		}
		table.Render()
	}
	if len(sum.Payments) > 0 {
		title(w, "Payments")
		table = newTable(w, "Date", "Reference", "Purpose", "Method", "Amount", "Fees")
		for _, p := range sum.Payments {
			table.Append([]string{p.PaymentDate.Format(time.DateOnly), p.Reference, p.Purpose,
				string(p.Method), p.Amount.String(), ids(p.FeeEntryIDs)})
		}
		table.Render()
	}
}

var payCmd = &cobra.Command{
	Use:   "pay MATRIC AMOUNT",
	Short: "Record a payment and allocate it across outstanding fees",
	Long: `Record a payment. Fees payments are allocated to the largest
outstanding balances first and are rejected when they exceed what is owed.
With --balance-forward the payment reduces the balance brought forward.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			amount, err := domain.ParseMoney(args[1])
			if err != nil {
				return err
			}
			st, err := d.DB.FindStudentByMatric(ctx, args[0])
			if err != nil {
				return err
			}
			f := cmd.Flags()
			var sessionID int64
			if code, _ := f.GetString("session"); code != "" {
				sess, err := d.DB.FindSession(ctx, code)
				if err != nil {
					return err
				}
				sessionID = sess.ID
			}
			var date time.Time
			if s, _ := f.GetString("date"); s != "" {
				if date, err = time.Parse(time.DateOnly, s); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			bank, _ := f.GetString("bank")
			teller, _ := f.GetString("teller")
			receipt, _ := f.GetString("receipt")

			var rec *ledger.Receipt
			if bbf, _ := f.GetBool("balance-forward"); bbf {
				rec, err = d.Ledger.PayBalanceBroughtForward(ctx, ledger.BalanceForwardRequest{
					StudentID: st.ID, SessionID: sessionID, Amount: amount, PaymentDate: date,
					BankAccount: bank, TellerNumber: teller, ReceiptNumber: receipt,
				})
			} else {
				fees, _ := f.GetInt64Slice("fee")
				rec, err = d.Ledger.RecordPayment(ctx, ledger.PaymentRequest{
					StudentID: st.ID, SessionID: sessionID, Amount: amount, PaymentDate: date,
					BankAccount: bank, TellerNumber: teller, ReceiptNumber: receipt, FeeEntryIDs: fees,
				})
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			success(w, "payment %s recorded: %s for %s", rec.Payment.Reference, rec.Payment.Amount, rec.Payment.Purpose)
			if len(rec.Allocation.Applications) > 0 {
				table := newTable(w, "Fee Entry", "Applied")
				for _, ap := range rec.Allocation.Applications {
					table.Append([]string{fmt.Sprint(ap.FeeEntryID), ap.Amount.String()})
				}
				table.Render()
			}
			fmt.Fprintf(w, "balance now %s\n", rec.Totals.TotalBalance)
			return nil
		})
	},
}
