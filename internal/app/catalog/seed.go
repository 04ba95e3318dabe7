package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-kit/log/level"

	"github.com/quickledger/quickledger/internal/domain"
)

// Seed is a reference-data file. Entries refer to each other by name or
// code so a seed can be written by hand:
//
//	[[classification]]
//	name = "Sciences"
//
//	[[faculty]]
//	name = "Science"
//	classification = "Sciences"
//
//	[[fee]]
//	type = "School Fees"
//	amount = "45000.00"
//	level = "100"
//	classification = "Sciences"
type Seed struct {
	Classifications []SeedClassification `toml:"classification"`
	Faculties       []SeedFaculty        `toml:"faculty"`
	Departments     []SeedDepartment     `toml:"department"`
	Programmes      []SeedProgramme      `toml:"programme"`
	Levels          []domain.Level       `toml:"level"`
	Sessions        []SeedSession        `toml:"session"`
	Semesters       []domain.Semester    `toml:"semester"`
	PaymentTypes    []domain.PaymentType `toml:"payment_type"`
	Fees            []SeedFee            `toml:"fee"`
	Courses         []SeedCourse         `toml:"course"`
}

type SeedClassification struct {
	Code string `toml:"code"`
	Name string `toml:"name"`
}

type SeedFaculty struct {
	Code           string `toml:"code"`
	Name           string `toml:"name"`
	Classification string `toml:"classification"`
}

type SeedDepartment struct {
	Code         string `toml:"code"`
	PreviousCode string `toml:"previous_code"`
	Name         string `toml:"name"`
	Faculty      string `toml:"faculty"`
}

// SeedProgramme names the department that offers it by code.
type SeedProgramme struct {
	Name       string `toml:"name"`
	Department string `toml:"department"`
}

type SeedSession struct {
	Code  string    `toml:"code"`
	Name  string    `toml:"name"`
	Start time.Time `toml:"start"`
	End   time.Time `toml:"end"`
}

type SeedFee struct {
	Type           string       `toml:"type"`
	Amount         domain.Money `toml:"amount"`
	Level          string       `toml:"level"`
	Classification string       `toml:"classification"`
	EntryType      string       `toml:"entry_type"`
	Description    string       `toml:"description"`
}

// SeedCourse is placed on the programme of its department.
type SeedCourse struct {
	Code       string `toml:"code"`
	Title      string `toml:"title"`
	Units      int    `toml:"units"`
	Department string `toml:"department"`
	Level      string `toml:"level"`
	Semester   string `toml:"semester"`
}

// DecodeSeed parses a TOML seed.
func DecodeSeed(r io.Reader) (*Seed, error) {
	var s Seed
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return &s, nil
}

// SeedReport counts what Apply created and what was already present.
type SeedReport struct {
	Created  map[string]int `json:"created"`
	Existing map[string]int `json:"existing"`
}

func (r *SeedReport) count(kind string, created bool) {
	if created {
		r.Created[kind]++
	} else {
		r.Existing[kind]++
	}
}

// Apply creates every entry of a seed that does not exist yet. Reapplying
// the same seed changes nothing.
func (s *Service) Apply(ctx context.Context, seed *Seed) (*SeedReport, error) {
	rep := &SeedReport{Created: map[string]int{}, Existing: map[string]int{}}
	st := s.store

	for _, c := range seed.Classifications {
		_, err := st.FindClassification(ctx, c.Name)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateClassification(ctx, domain.Classification{Code: c.Code, Name: c.Name})
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("classification %q: %w", c.Name, err)
		}
		rep.count("classification", created)
	}

	for _, f := range seed.Faculties {
		class, err := st.FindClassification(ctx, f.Classification)
		if err != nil {
			return rep, fmt.Errorf("faculty %q: %w", f.Name, err)
		}
		_, created, err := s.EnsureFaculty(ctx, domain.Faculty{Code: f.Code, Name: f.Name, ClassificationID: class.ID})
		if err != nil {
			return rep, fmt.Errorf("faculty %q: %w", f.Name, err)
		}
		rep.count("faculty", created)
	}

	for _, d := range seed.Departments {
		_, err := st.FindDepartmentByCode(ctx, d.Code)
		created, err := s.ensure(err, func() error {
			fac, err := st.FindFacultyByName(ctx, d.Faculty)
			if err != nil {
				return err
			}
			_, err = s.CreateDepartment(ctx, domain.Department{
				Code: d.Code, PreviousCode: d.PreviousCode, Name: d.Name, FacultyID: fac.ID,
			})
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("department %q: %w", d.Code, err)
		}
		rep.count("department", created)
	}

	for _, p := range seed.Programmes {
		dept, err := st.FindDepartmentByCode(ctx, p.Department)
		if err != nil {
			return rep, fmt.Errorf("programme %q: %w", p.Name, err)
		}
		_, err = st.FindProgrammeByDepartment(ctx, dept.ID)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateProgramme(ctx, domain.Programme{Name: p.Name, DepartmentID: dept.ID, FacultyID: dept.FacultyID}, "")
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("programme %q: %w", p.Name, err)
		}
		rep.count("programme", created)
	}

	for _, l := range seed.Levels {
		_, err := st.FindLevel(ctx, l.Code)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateLevel(ctx, l)
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("level %q: %w", l.Code, err)
		}
		rep.count("level", created)
	}

	for _, ss := range seed.Sessions {
		_, err := st.FindSession(ctx, ss.Code)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateSession(ctx, domain.Session{Code: ss.Code, Name: ss.Name, StartDate: ss.Start, EndDate: ss.End})
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("session %q: %w", ss.Code, err)
		}
		rep.count("session", created)
	}

	for _, sem := range seed.Semesters {
		_, err := st.FindSemester(ctx, sem.Code)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateSemester(ctx, sem)
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("semester %q: %w", sem.Code, err)
		}
		rep.count("semester", created)
	}

	for _, pt := range seed.PaymentTypes {
		_, err := st.FindPaymentType(ctx, pt.Name)
		created, err := s.ensure(err, func() error {
			_, err := s.CreatePaymentType(ctx, pt)
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("payment type %q: %w", pt.Name, err)
		}
		rep.count("payment_type", created)
	}

	for _, f := range seed.Fees {
		fee, err := s.resolveFee(ctx, f)
		if err != nil {
			return rep, fmt.Errorf("fee %q: %w", f.Type, err)
		}
		_, created, err := s.CreateFee(ctx, fee)
		if err != nil {
			return rep, fmt.Errorf("fee %q: %w", f.Type, err)
		}
		rep.count("fee", created)
	}

	for _, c := range seed.Courses {
		course, err := s.resolveCourse(ctx, c)
		if err != nil {
			return rep, fmt.Errorf("course %q: %w", c.Code, err)
		}
		_, err = st.FindCourse(ctx, course.ProgrammeID, course.Code)
		created, err := s.ensure(err, func() error {
			_, err := s.CreateCourse(ctx, course)
			return err
		})
		if err != nil {
			return rep, fmt.Errorf("course %q: %w", c.Code, err)
		}
		rep.count("course", created)
	}

	level.Info(s.logger).Log("msg", "catalog seed applied", "created", total(rep.Created), "existing", total(rep.Existing))
	return rep, nil
}

// ensure runs create when the preceding lookup reported not found.
func (s *Service) ensure(lookupErr error, create func() error) (bool, error) {
	if lookupErr == nil {
		return false, nil
	}
	if !errors.Is(lookupErr, domain.ErrNotFound) {
		return false, lookupErr
	}
	if err := create(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) resolveFee(ctx context.Context, f SeedFee) (domain.Fee, error) {
	pt, err := s.store.FindPaymentType(ctx, f.Type)
	if err != nil {
		return domain.Fee{}, err
	}
	lvl, err := s.store.FindLevel(ctx, f.Level)
	if err != nil {
		return domain.Fee{}, err
	}
	class, err := s.store.FindClassification(ctx, f.Classification)
	if err != nil {
		return domain.Fee{}, err
	}
	return domain.Fee{
		TypeID: pt.ID, Amount: f.Amount, LevelID: lvl.ID, ClassificationID: class.ID,
		EntryType: f.EntryType, Description: f.Description,
	}, nil
}

func (s *Service) resolveCourse(ctx context.Context, c SeedCourse) (domain.Course, error) {
	course := domain.Course{Code: NormalizeCourseCode(c.Code), Title: c.Title, Units: c.Units}
	dept, err := s.store.FindDepartmentByCode(ctx, c.Department)
	if err != nil {
		return course, err
	}
	prog, err := s.store.FindProgrammeByDepartment(ctx, dept.ID)
	if err != nil {
		return course, err
	}
	course.ProgrammeID = prog.ID
	if c.Level != "" {
		lvl, err := s.store.FindLevel(ctx, c.Level)
		if err != nil {
			return course, err
		}
		course.LevelID = lvl.ID
	}
	if c.Semester != "" {
		sem, err := s.store.FindSemester(ctx, c.Semester)
		if err != nil {
			return course, err
		}
		course.SemesterID = sem.ID
	}
	return course, nil
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
