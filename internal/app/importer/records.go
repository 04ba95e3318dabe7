package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quickledger/quickledger/internal/app/catalog"
	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/app/registration"
	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Record Variants ────────────────────────────────────────────────────────
// Each legacy kind is a record that sanitizes its columns at staging time
// and validates then applies itself at processing time. A returned
// *failure is a row-level rejection; any other error also fails the row.

type record interface {
	Kind() domain.ImportKind
	Key() string
	Fields() map[string]string
	apply(ctx context.Context, r domain.Repository, env applyEnv) error
}

// applyEnv is what a record needs while it is applied.
type applyEnv struct {
	inst domain.Institution
	now  time.Time
}

type failure struct{ reason string }

func (f *failure) Error() string { return f.reason }

func failf(format string, args ...interface{}) error {
	return &failure{reason: fmt.Sprintf(format, args...)}
}

// lookup turns a not-found error into a row failure with reason. Other
// errors pass through.
func lookup(err error, format string, args ...interface{}) error {
	if errors.Is(err, domain.ErrNotFound) {
		return failf(format, args...)
	}
	return err
}

// parseRecord builds the record for kind from raw columns.
func parseRecord(kind domain.ImportKind, raw map[string]string) (record, error) {
	f := normalizeKeys(raw)
	var rec record
	switch kind {
	case domain.ImportStudent:
		rec = newStudentRecord(f)
	case domain.ImportCourse:
		rec = newCourseRecord(f)
	case domain.ImportResult:
		rec = newResultRecord(f)
	case domain.ImportPayment:
		rec = newPaymentRecord(f)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownImportKind, kind)
	}
	if missing := missingFields(rec.Fields(), required[kind]); len(missing) > 0 {
		return nil, domain.Invalid(missing[0], domain.ErrMissingField, "%s row missing %s", kind, strings.Join(missing, ", "))
	}
	return rec, nil
}

var required = map[domain.ImportKind][]string{
	domain.ImportStudent: {"name", "matric", "level", "dept"},
	domain.ImportCourse:  {"title", "code", "units", "semester", "level", "department"},
	domain.ImportResult:  {"session", "course", "level", "dept", "semester", "matric", "exam", "test"},
	domain.ImportPayment: {"date", "level", "dept", "matric", "session", "amount", "purpose"},
}

// aliases maps spreadsheet headers onto field names.
var aliases = map[string]string{
	"registration":         "matric",
	"registration no":      "matric",
	"matriculation":        "matric",
	"matriculation_number": "matric",
	"application no":       "application_number",
	"phone number":         "phone",
	"c/a":                  "test",
	"payment_date":         "date",
	"teller_number":        "teller",
}

func normalizeKeys(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(k), ".")))
		if a, ok := aliases[k]; ok {
			k = a
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func missingFields(f map[string]string, names []string) []string {
	var missing []string
	for _, n := range names {
		if f[n] == "" {
			missing = append(missing, n)
		}
	}
	return missing
}

func noSpaces(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), " ", "") }

func parseScore(name, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, failf("invalid %s score %q", name, s)
	}
	return v, nil
}

// ─── Student ────────────────────────────────────────────────────────────────

type studentRecord struct {
	Name, Matric, ApplicationNumber, Phone, Email, Level, Dept string
}

func newStudentRecord(f map[string]string) *studentRecord {
	return &studentRecord{
		Name:              domain.TitleCase(f["name"]),
		Matric:            noSpaces(f["matric"]),
		ApplicationNumber: f["application_number"],
		Phone:             f["phone"],
		Email:             f["email"],
		Level:             noSpaces(f["level"]),
		Dept:              strings.ToUpper(f["dept"]),
	}
}

func (s *studentRecord) Kind() domain.ImportKind { return domain.ImportStudent }
func (s *studentRecord) Key() string             { return strings.ToUpper(s.Matric) }

func (s *studentRecord) Fields() map[string]string {
	return map[string]string{
		"name": s.Name, "matric": s.Matric, "application_number": s.ApplicationNumber,
		"phone": s.Phone, "email": s.Email, "level": s.Level, "dept": s.Dept,
	}
}

// AdmissionSession derives the admission session code from a matric number
// of the form PREFIX/YEAR/SERIAL: NAU/2001/484557 yields 2001/2002.
func AdmissionSession(matric string) (string, error) {
	parts := strings.Split(matric, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid registration number %s", matric)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid registration number %s", matric)
	}
	return fmt.Sprintf("%d/%d", year, year+1), nil
}

func (s *studentRecord) apply(ctx context.Context, r domain.Repository, env applyEnv) error {
	code, err := AdmissionSession(s.Matric)
	if err != nil {
		return failf("%v", err)
	}
	sess, err := r.FindSession(ctx, code)
	if err != nil {
		return lookup(err, "invalid registration number %s: no session %s", s.Matric, code)
	}
	lvl, err := r.FindLevel(ctx, s.Level)
	if err != nil {
		return lookup(err, "invalid level %s", s.Level)
	}
	dept, err := r.FindDepartmentByCode(ctx, s.Dept)
	if err != nil {
		return lookup(err, "invalid department code %s", s.Dept)
	}
	prog, err := r.FindProgrammeByDepartment(ctx, dept.ID)
	if err != nil {
		return lookup(err, "no programme for department %s", dept.Name)
	}

	if _, err := r.FindStudentByMatric(ctx, s.Matric); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	phone := s.Phone
	if phone != "" && !strings.HasPrefix(phone, "0") && !strings.HasPrefix(phone, "+") {
		phone = "0" + phone
	}
	_, err = ledger.Enroll(ctx, r, domain.Student{
		Matric:             s.Matric,
		Name:               s.Name,
		ProgrammeID:        prog.ID,
		LevelID:            lvl.ID,
		AdmissionSessionID: sess.ID,
		Phone:              phone,
		Email:              s.Email,
	}, env.now)
	return err
}

// ─── Course ─────────────────────────────────────────────────────────────────

type courseRecord struct {
	Title, Code, Units, Semester, Level, Department string
}

func newCourseRecord(f map[string]string) *courseRecord {
	return &courseRecord{
		Title:      domain.TitleCase(f["title"]),
		Code:       catalog.NormalizeCourseCode(f["code"]),
		Units:      f["units"],
		Semester:   strings.ToLower(noSpaces(f["semester"])),
		Level:      noSpaces(f["level"]),
		Department: strings.Join(strings.Fields(f["department"]), " "),
	}
}

func (c *courseRecord) Kind() domain.ImportKind { return domain.ImportCourse }
func (c *courseRecord) Key() string {
	return strings.ToUpper(c.Department) + "|" + c.Code
}

func (c *courseRecord) Fields() map[string]string {
	return map[string]string{
		"title": c.Title, "code": c.Code, "units": c.Units, "semester": c.Semester,
		"level": c.Level, "department": c.Department,
	}
}

func (c *courseRecord) apply(ctx context.Context, r domain.Repository, _ applyEnv) error {
	units, err := strconv.Atoi(c.Units)
	if err != nil || units < 0 {
		return failf("invalid units %q for %s", c.Units, c.Code)
	}
	dept, err := r.FindDepartmentByName(ctx, c.Department)
	if err != nil {
		return lookup(err, "invalid department '%s'", c.Department)
	}
	prog, err := r.FindProgrammeByDepartment(ctx, dept.ID)
	if err != nil {
		return lookup(err, "no programme for department %s", dept.Name)
	}
	lvl, err := r.FindLevel(ctx, c.Level)
	if err != nil {
		return lookup(err, "invalid level %s", c.Level)
	}
	sem, err := r.FindSemester(ctx, c.Semester)
	if err != nil {
		return lookup(err, "invalid semester %s", c.Semester)
	}
	if _, err := r.FindCourse(ctx, prog.ID, c.Code); err == nil {
		return failf("%s already exist for %s", c.Code, prog.Name)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return r.CreateCourse(ctx, &domain.Course{
		Code:        c.Code,
		Title:       c.Title,
		Units:       units,
		ProgrammeID: prog.ID,
		LevelID:     lvl.ID,
		SemesterID:  sem.ID,
	})
}

// ─── Result ─────────────────────────────────────────────────────────────────

type resultRecord struct {
	Session, Course, Level, Dept, Semester, Matric string
	Exam, Test, Practicals                         string
}

func newResultRecord(f map[string]string) *resultRecord {
	return &resultRecord{
		Session:    noSpaces(f["session"]),
		Course:     catalog.NormalizeCourseCode(f["course"]),
		Level:      noSpaces(f["level"]),
		Dept:       strings.ToUpper(f["dept"]),
		Semester:   strings.ToLower(noSpaces(f["semester"])),
		Matric:     noSpaces(f["matric"]),
		Exam:       f["exam"],
		Test:       f["test"],
		Practicals: f["practicals"],
	}
}

func (x *resultRecord) Kind() domain.ImportKind { return domain.ImportResult }

// Key is (session, semester, course, matric); restaging the same result
// replaces the earlier row.
func (x *resultRecord) Key() string {
	return strings.Join([]string{x.Session, x.Semester, x.Course, strings.ToUpper(x.Matric)}, "|")
}

func (x *resultRecord) Fields() map[string]string {
	return map[string]string{
		"session": x.Session, "course": x.Course, "level": x.Level, "dept": x.Dept,
		"semester": x.Semester, "matric": x.Matric, "exam": x.Exam, "test": x.Test, "practicals": x.Practicals,
	}
}

func (x *resultRecord) scores() (domain.Scores, error) {
	var s domain.Scores
	var err error
	if s.Exam, err = parseScore("exam", x.Exam); err != nil {
		return s, err
	}
	if s.Test, err = parseScore("test", x.Test); err != nil {
		return s, err
	}
	if s.Practicals, err = parseScore("practicals", x.Practicals); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, failf("%v", err)
	}
	return s, nil
}

func (x *resultRecord) apply(ctx context.Context, r domain.Repository, env applyEnv) error {
	scores, err := x.scores()
	if err != nil {
		return err
	}
	st, err := r.FindStudentByMatric(ctx, x.Matric)
	if err != nil {
		return lookup(err, "student with the matric number %s was not found", x.Matric)
	}
	sess, err := r.FindSession(ctx, x.Session)
	if err != nil {
		return lookup(err, "invalid academic session %s", x.Session)
	}
	course, err := r.FindCourse(ctx, st.ProgrammeID, x.Course)
	if err != nil {
		return lookup(err, "%s was not found for programme %d", x.Course, st.ProgrammeID)
	}
	lvl, err := r.FindLevel(ctx, x.Level)
	if err != nil {
		return lookup(err, "invalid level %s", x.Level)
	}
	sem, err := r.FindSemester(ctx, x.Semester)
	if err != nil {
		return lookup(err, "invalid semester code %s", x.Semester)
	}

	reg, _, err := registration.FindOrCreate(ctx, r, domain.Registration{
		StudentID:   st.ID,
		ProgrammeID: st.ProgrammeID,
		SessionID:   sess.ID,
		LevelID:     lvl.ID,
		SemesterID:  sem.ID,
		IsLegacy:    true,
	}, env.now)
	if err != nil {
		return err
	}
	_, err = registration.RecordResult(ctx, r, reg, sem.ID, course, scores, env.inst, env.now)
	return err
}

// ─── Payment ────────────────────────────────────────────────────────────────

// legacyDateLayout is dd/mm/yy.
const legacyDateLayout = "02/01/06"

type paymentRecord struct {
	Name, Date, Level, Dept, Matric, Session string
	Account, Receipt, Teller, Amount, Purpose string
}

func newPaymentRecord(f map[string]string) *paymentRecord {
	return &paymentRecord{
		Name:    domain.TitleCase(f["name"]),
		Date:    f["date"],
		Level:   noSpaces(f["level"]),
		Dept:    strings.ToUpper(f["dept"]),
		Matric:  noSpaces(f["matric"]),
		Session: noSpaces(f["session"]),
		Account: f["account"],
		Receipt: f["receipt"],
		Teller:  f["teller"],
		Amount:  f["amount"],
		Purpose: domain.TitleCase(f["purpose"]),
	}
}

func (p *paymentRecord) Kind() domain.ImportKind { return domain.ImportPayment }

// Key identifies a payment by who paid, when, how much and for what.
func (p *paymentRecord) Key() string {
	return strings.Join([]string{strings.ToUpper(p.Matric), p.Session, p.Date, p.Amount,
		strings.ToLower(p.Purpose), p.Receipt, p.Teller}, "|")
}

func (p *paymentRecord) Fields() map[string]string {
	return map[string]string{
		"name": p.Name, "date": p.Date, "level": p.Level, "dept": p.Dept, "matric": p.Matric,
		"session": p.Session, "account": p.Account, "receipt": p.Receipt, "teller": p.Teller,
		"amount": p.Amount, "purpose": p.Purpose,
	}
}

// ParseLegacyDate accepts dd/mm/yy only.
func ParseLegacyDate(s string) (time.Time, error) {
	t, err := time.Parse(legacyDateLayout, s)
	if err != nil || t.Format(legacyDateLayout) != s {
		return time.Time{}, fmt.Errorf("invalid date format '%s' expected dd/mm/yy", s)
	}
	return t, nil
}

// purposes splits a comma list of fee type names, lower-cased.
func (p *paymentRecord) purposes() []string {
	var out []string
	for _, s := range strings.Split(p.Purpose, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *paymentRecord) apply(ctx context.Context, r domain.Repository, env applyEnv) error {
	date, err := ParseLegacyDate(p.Date)
	if err != nil {
		return failf("%v", err)
	}
	amount, err := domain.ParseMoney(p.Amount)
	if err != nil {
		return failf("%v", err)
	}
	if _, err := r.FindDepartmentByCode(ctx, p.Dept); err != nil {
		return lookup(err, "invalid department code %s", p.Dept)
	}
	lvl, err := r.FindLevel(ctx, p.Level)
	if err != nil {
		return lookup(err, "invalid level %s", p.Level)
	}
	sess, err := r.FindSession(ctx, p.Session)
	if err != nil {
		return lookup(err, "invalid session %s", p.Session)
	}
	st, err := r.FindStudentByMatric(ctx, p.Matric)
	if err != nil {
		return lookup(err, "student with matric number %s not found", p.Matric)
	}
	l, err := r.GetLedgerByStudent(ctx, st.ID)
	if err != nil {
		return err
	}
	semID, err := registration.DefaultSemester(ctx, r, env.inst)
	if err != nil {
		return err
	}
	reg, _, err := registration.FindOrCreate(ctx, r, domain.Registration{
		StudentID:   st.ID,
		ProgrammeID: st.ProgrammeID,
		SessionID:   sess.ID,
		LevelID:     lvl.ID,
		SemesterID:  semID,
	}, env.now)
	if err != nil {
		return err
	}

	entries, err := r.ListFeeEntriesByRegistration(ctx, reg.ID)
	if err != nil {
		return err
	}
	matched := make(map[string]bool)
	var candidates []domain.FeeEntry
	wanted := p.purposes()
	for _, e := range entries {
		name := strings.ToLower(e.TypeName)
		for _, w := range wanted {
			if name == w {
				candidates = append(candidates, e)
				matched[w] = true
				break
			}
		}
	}
	for _, w := range wanted {
		if !matched[w] {
			return failf("invalid fee name %s", w)
		}
	}

	pay := domain.Payment{
		Reference:     uuid.NewString(),
		LedgerID:      l.ID,
		StudentID:     st.ID,
		SessionID:     sess.ID,
		LevelID:       lvl.ID,
		Amount:        amount,
		PaymentDate:   date,
		Method:        domain.MethodCash,
		Kind:          domain.KindFees,
		BankAccount:   p.Account,
		TellerNumber:  p.Teller,
		ReceiptNumber: p.Receipt,
	}
	if p.Account != "" {
		pay.Method = domain.MethodBank
	}
	if err := domain.ValidatePayment(pay, env.now); err != nil {
		return failf("%v", err)
	}
	if _, err := ledger.Settle(ctx, r, &pay, candidates); err != nil {
		if domain.IsValidation(err) {
			return failf("%v", err)
		}
		return err
	}
	return nil
}

// ledgerOwner is implemented by records that allocate against a ledger and
// must hold its lock.
type ledgerOwner interface {
	owner() string
}

func (p *paymentRecord) owner() string { return p.Matric }
