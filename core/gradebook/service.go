package gradebook

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

var (
	// errors
	ErrNotFound        = errors.New("not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrUnknownClass    = errors.New("unknown class")
	ErrStaleResponse   = errors.New("stale response: a newer request superseded it")
	ErrSessionIdle     = errors.New("no mark sheet is loaded")
	ErrNoNameColumn    = errors.New("no name column found in the header")
	ErrNoRecipients    = errors.New("at least one recipient is required")
)

// IsNotFound reports whether the cause of err is one of the not-found errors.
func IsNotFound(err error) bool {
	switch pkgerrors.Cause(err) {
	case ErrNotFound, ErrStudentNotFound:
		return true
	}
	return false
}

type (
	// Repository is the persistence boundary. Implementations are chosen once at startup.
	Repository interface {
		QueryCatalog(ctx context.Context) (Catalog, error)
		UpsertCatalog(ctx context.Context, cat Catalog) error

		// GetConfiguration returns ErrNotFound when no configuration was saved for the triple.
		GetConfiguration(ctx context.Context, t Triple) (ScoreConfig, error)
		// SaveConfiguration upserts by triple.
		SaveConfiguration(ctx context.Context, conf ScoreConfig) (ScoreConfig, error)

		GetMarks(ctx context.Context, t Triple) ([]Mark, error)
		// SaveMarks upserts by student and triple, atomically.
		SaveMarks(ctx context.Context, marks ...Mark) error

		CreateStudents(ctx context.Context, students ...Student) ([]Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		// FilterStudents applies AND operation on the filter fields.
		// StudentFilter.Search does a case-insensitive substring match on Student.Name.
		FilterStudents(ctx context.Context, filter StudentFilter, ords ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, stu Student) (Student, error)
		// DeleteStudentsByID also deletes the students' marks.
		DeleteStudentsByID(ctx context.Context, ids ...string) error
		DeleteStudentsByClass(ctx context.Context, classID string) (int, error)
	}

	Service interface {
		Catalog(ctx context.Context) (Catalog, error)
		SeedCatalog(ctx context.Context) error

		GetConfiguration(ctx context.Context, t Triple) (ScoreConfig, error)
		SaveConfiguration(ctx context.Context, t Triple, vals ConfigValues) (ScoreConfig, error)

		GetMarks(ctx context.Context, t Triple) ([]Mark, error)
		SaveMarks(ctx context.Context, t Triple, marks ...Mark) error
		SaveMarkEntries(ctx context.Context, sm SaveMarks) (Sheet, error)
		QuickEntry(ctx context.Context, qe QuickEntry) (Row, error)
		Load(ctx context.Context, t Triple) (LoadResult, error)
		MarkSheet(ctx context.Context, t Triple) (Sheet, error)
		MailSheet(ctx context.Context, t Triple, to ...mail.Address) error

		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		ImportStudents(ctx context.Context, records [][]string, defaultClassID string) (RosterReport, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter, ords ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error)
		DeleteStudents(ctx context.Context, ids ...string) error
		DeleteClassStudents(ctx context.Context, classID string) (int, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// LoadResult is everything needed to show the mark sheet of a triple.
type LoadResult struct {
	Config   ScoreConfig
	Students []Student
	Marks    []Mark
}

// RosterReport summarizes a roster import.
type RosterReport struct {
	Created []Student `json:"created"`
	Skipped int       `json:"skipped"`
}

func (svc *service) Catalog(ctx context.Context) (Catalog, error) {
	return svc.repo.QueryCatalog(ctx)
}

func (svc *service) SeedCatalog(ctx context.Context) error {
	return svc.repo.UpsertCatalog(ctx, DefaultCatalog())
}

// GetConfiguration returns the saved configuration of t, or the defaults if there is none.
func (svc *service) GetConfiguration(ctx context.Context, t Triple) (ScoreConfig, error) {
	conf, err := svc.repo.GetConfiguration(ctx, t)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return DefaultScoreConfig(t), nil
		}
		return ScoreConfig{}, err
	}
	return conf, nil
}

func (svc *service) SaveConfiguration(ctx context.Context, t Triple, vals ConfigValues) (ScoreConfig, error) {
	if err := vals.Validate(); err != nil {
		return ScoreConfig{}, err
	}
	conf, err := svc.GetConfiguration(ctx, t)
	if err != nil {
		return ScoreConfig{}, err
	}
	if conf.IsDefault() {
		conf.ID = uuid.NewString()
	}
	conf = vals.apply(conf)
	conf.Triple = t
	conf.UpdatedAt = time.Now().UTC()

	saved, err := svc.repo.SaveConfiguration(ctx, conf)
	if err != nil {
		svc.logger.Error("saving configuration", err, map[string]interface{}{"triple": t.String()})
		return ScoreConfig{}, pkgerrors.Wrap(err, "saving configuration")
	}
	return saved, nil
}

func (svc *service) GetMarks(ctx context.Context, t Triple) ([]Mark, error) {
	return svc.repo.GetMarks(ctx, t)
}

// SaveMarks validates every mark against the configuration of t and saves them all, or none.
func (svc *service) SaveMarks(ctx context.Context, t Triple, marks ...Mark) error {
	if len(marks) == 0 {
		return nil
	}
	conf, err := svc.GetConfiguration(ctx, t)
	if err != nil {
		return err
	}
	members, err := svc.classMembers(ctx, t.ClassID)
	if err != nil {
		return err
	}

	var flds []core.FieldError
	now := time.Now().UTC()
	for i := range marks {
		m := &marks[i]
		prefix := fmt.Sprintf("marks[%d].", i)
		if _, ok := members[m.StudentID]; !ok {
			flds = append(flds, core.FieldError{Field: prefix + "student_id", Error: ErrStudentNotFound.Error()})
			continue
		}
		res := scoring.ValidateRawScoreValue(m.RawScore, conf.TestMarkedOver)
		if m.AddedMark.Valid {
			res.Errors = append(res.Errors, scoring.ValidateAddedMarkValue(m.AddedMark.Float64, conf.MaxAddedMark).Errors...)
		}
		for _, fe := range resultFields(res) {
			fe.Field = prefix + fe.Field
			flds = append(flds, fe)
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Triple = t
		m.UpdatedAt = now
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	if err := svc.repo.SaveMarks(ctx, marks...); err != nil {
		svc.logger.Error("saving marks", err, map[string]interface{}{"triple": t.String(), "count": len(marks)})
		return pkgerrors.Wrap(err, "saving marks")
	}
	return nil
}

// SaveMarkEntries parses typed entries, rejects the whole batch if any is invalid, saves it and
// returns the recomputed mark sheet.
func (svc *service) SaveMarkEntries(ctx context.Context, sm SaveMarks) (Sheet, error) {
	conf, err := svc.GetConfiguration(ctx, sm.Triple)
	if err != nil {
		return Sheet{}, err
	}

	var flds []core.FieldError
	marks := make([]Mark, 0, len(sm.Marks))
	for i, me := range sm.Marks {
		raw, res := ParseRawScore(me.RawScore, conf)
		added, addedRes := ParseAddedMark(me.AddedMark, conf)
		res.Errors = append(res.Errors, addedRes.Errors...)
		for _, fe := range resultFields(res) {
			fe.Field = fmt.Sprintf("marks[%d].%s", i, fe.Field)
			flds = append(flds, fe)
		}
		marks = append(marks, Mark{StudentID: me.StudentID, RawScore: raw, AddedMark: added})
	}
	if len(flds) > 0 {
		return Sheet{}, core.NewValidationError(nil, flds...)
	}

	if err := svc.SaveMarks(ctx, sm.Triple, marks...); err != nil {
		return Sheet{}, err
	}
	return svc.MarkSheet(ctx, sm.Triple)
}

// QuickEntry saves a raw score for a student found by name, creating the student if needed.
// The added mark is set to the configured maximum.
func (svc *service) QuickEntry(ctx context.Context, qe QuickEntry) (Row, error) {
	conf, err := svc.GetConfiguration(ctx, qe.Triple)
	if err != nil {
		return Row{}, err
	}
	res := scoring.ValidateRawScore(qe.RawScore, conf.TestMarkedOver)
	if err := resultToError(res); err != nil {
		return Row{}, err
	}
	raw := scoring.ParseOr(qe.RawScore, 0)

	students, err := svc.repo.FilterStudents(ctx, StudentFilter{ClassID: qe.ClassID})
	if err != nil {
		return Row{}, err
	}
	var stu Student
	key := nameKey(qe.Name)
	for _, s := range students {
		if nameKey(s.Name) == key {
			stu = s
			break
		}
	}
	if stu.ID == "" {
		if stu, err = svc.CreateStudent(ctx, NewStudent{Name: qe.Name, Gender: qe.Gender, ClassID: qe.ClassID}); err != nil {
			return Row{}, err
		}
	}

	mark := Mark{StudentID: stu.ID, RawScore: raw, AddedMark: null.Float64From(conf.MaxAddedMark)}
	if err := svc.SaveMarks(ctx, qe.Triple, mark); err != nil {
		return Row{}, err
	}
	return NewRow(stu, mark, conf), nil
}

func (svc *service) Load(ctx context.Context, t Triple) (LoadResult, error) {
	conf, err := svc.GetConfiguration(ctx, t)
	if err != nil {
		return LoadResult{}, pkgerrors.Wrap(err, "loading configuration")
	}
	students, err := svc.repo.FilterStudents(ctx, StudentFilter{ClassID: t.ClassID})
	if err != nil {
		return LoadResult{}, pkgerrors.Wrap(err, "loading students")
	}
	marks, err := svc.repo.GetMarks(ctx, t)
	if err != nil {
		return LoadResult{}, pkgerrors.Wrap(err, "loading marks")
	}
	return LoadResult{Config: conf, Students: students, Marks: marks}, nil
}

// MarkSheet computes the rows of every class student, sorted by name.
func (svc *service) MarkSheet(ctx context.Context, t Triple) (Sheet, error) {
	res, err := svc.Load(ctx, t)
	if err != nil {
		return Sheet{}, err
	}
	cat, err := svc.repo.QueryCatalog(ctx)
	if err != nil {
		return Sheet{}, err
	}

	byStudent := make(map[string]Mark, len(res.Marks))
	for _, m := range res.Marks {
		byStudent[m.StudentID] = m
	}
	sheet := Sheet{
		Triple:      t,
		ClassName:   cat.NameOf(KindClass, t.ClassID),
		SubjectName: cat.NameOf(KindSubject, t.SubjectID),
		TermName:    cat.NameOf(KindTerm, t.TermID),
		Config:      res.Config,
		Rows:        make([]Row, 0, len(res.Students)),
	}
	for _, stu := range res.Students {
		sheet.Rows = append(sheet.Rows, NewRow(stu, byStudent[stu.ID], res.Config))
	}
	sortRowsByName(sheet.Rows)
	return sheet, nil
}

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ValidateStudentName(ns.Name); err != nil {
		return Student{}, err
	}
	if err := svc.checkClass(ctx, ns.ClassID); err != nil {
		return Student{}, err
	}
	students, err := svc.repo.CreateStudents(ctx, newStudent(ns))
	if err != nil {
		return Student{}, err
	}
	return students[0], nil
}

// ImportStudents creates the students of a roster. The header needs a column containing "name";
// an optional column containing "class" holds class names or ids.
func (svc *service) ImportStudents(ctx context.Context, records [][]string, defaultClassID string) (RosterReport, error) {
	var report RosterReport
	if len(records) == 0 {
		return report, core.NewValidationError(ErrNoNameColumn)
	}
	cat, err := svc.repo.QueryCatalog(ctx)
	if err != nil {
		return report, err
	}
	if defaultClassID == "" && len(cat.Classes) > 0 {
		defaultClassID = cat.Classes[0].ID
	}

	nameCol := findColumn(records[0], func(h string) bool { return contains(h, "name") })
	classCol := findColumn(records[0], func(h string) bool { return contains(h, "class") })
	if nameCol < 0 {
		return report, core.NewValidationError(ErrNoNameColumn)
	}

	students := make([]Student, 0, len(records)-1)
	for _, rec := range records[1:] {
		name := core.CleanString(cell(rec, nameCol))
		if ValidateStudentName(name) != nil {
			report.Skipped++
			continue
		}
		classID := defaultClassID
		if it, ok := cat.Find(KindClass, core.CleanString(cell(rec, classCol))); ok {
			classID = it.ID
		}
		students = append(students, newStudent(NewStudent{Name: name, ClassID: classID}))
	}
	if len(students) == 0 {
		return report, nil
	}

	if report.Created, err = svc.repo.CreateStudents(ctx, students...); err != nil {
		return RosterReport{}, pkgerrors.Wrap(err, "importing students")
	}
	svc.logger.Info(fmt.Sprintf("imported %d students (%d skipped)", len(report.Created), report.Skipped))
	return report, nil
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, core.CleanString(id))
}

func (svc *service) QueryStudents(ctx context.Context, filter StudentFilter, ords ...core.DBOrdering) ([]Student, error) {
	filter.Clean()
	return svc.repo.FilterStudents(ctx, filter, ords...)
}

func (svc *service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	stu, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if err := ValidateStudentName(us.Name); err != nil {
		return Student{}, err
	}
	if us.ClassID != stu.ClassID {
		if err := svc.checkClass(ctx, us.ClassID); err != nil {
			return Student{}, err
		}
	}
	stu.Name = us.Name
	stu.Gender = us.Gender
	stu.ClassID = us.ClassID
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

func (svc *service) DeleteStudents(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}

func (svc *service) DeleteClassStudents(ctx context.Context, classID string) (int, error) {
	return svc.repo.DeleteStudentsByClass(ctx, core.CleanString(classID))
}

func (svc *service) checkClass(ctx context.Context, classID string) error {
	cat, err := svc.repo.QueryCatalog(ctx)
	if err != nil {
		return err
	}
	for _, c := range cat.Classes {
		if c.ID == classID {
			return nil
		}
	}
	return core.NewValidationError(ErrUnknownClass, core.FieldError{Field: "class_id", Error: ErrUnknownClass.Error()})
}

func (svc *service) classMembers(ctx context.Context, classID string) (map[string]Student, error) {
	students, err := svc.repo.FilterStudents(ctx, StudentFilter{ClassID: classID})
	if err != nil {
		return nil, err
	}
	members := make(map[string]Student, len(students))
	for _, stu := range students {
		members[stu.ID] = stu
	}
	return members, nil
}

func newStudent(ns NewStudent) Student {
	now := time.Now().UTC()
	return Student{
		ID:        uuid.NewString(),
		Name:      ns.Name,
		Gender:    ns.Gender,
		ClassID:   ns.ClassID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ParseRawScore validates and parses a typed raw score. Blank means 0.
func ParseRawScore(value string, conf ScoreConfig) (float64, scoring.Result) {
	res := scoring.ValidateRawScore(value, conf.TestMarkedOver)
	if !res.Valid() {
		return 0, res
	}
	return scoring.ParseOr(value, 0), res
}

// ParseAddedMark validates and parses a typed added mark. Blank leaves it unset.
func ParseAddedMark(value string, conf ScoreConfig) (null.Float64, scoring.Result) {
	res := scoring.ValidateAddedMark(value, conf.MaxAddedMark)
	if !res.Valid() {
		return null.Float64{}, res
	}
	n, ok, _ := scoring.ParseNumber(value)
	return null.NewFloat64(n, ok), res
}
