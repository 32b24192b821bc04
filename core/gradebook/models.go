package gradebook

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

// Triple identifies one scoring configuration and the marks recorded against it.
type Triple struct {
	ClassID   string `json:"class_id" query:"class_id" validate:"required,identifier"`
	SubjectID string `json:"subject_id" query:"subject_id" validate:"required,identifier"`
	TermID    string `json:"term_id" query:"term_id" validate:"required,identifier"`
}

func (t Triple) IsZero() bool {
	return t.ClassID == "" && t.SubjectID == "" && t.TermID == ""
}

func (t Triple) String() string {
	return t.ClassID + "/" + t.SubjectID + "/" + t.TermID
}

func (t *Triple) Validate(validate *validator.Validate) error {
	t.Clean()
	return validate.Struct(t)
}

func (t *Triple) Clean() {
	t.ClassID = core.CleanString(t.ClassID)
	t.SubjectID = core.CleanString(t.SubjectID)
	t.TermID = core.CleanString(t.TermID)
}

// CatalogItem is a class, a subject or a term.
type CatalogItem struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Catalog struct {
	Classes  []CatalogItem `json:"classes"`
	Subjects []CatalogItem `json:"subjects"`
	Terms    []CatalogItem `json:"terms"`
}

type ScoreConfig struct {
	ID string `json:"id,omitempty"`
	Triple
	TestMarkedOver   float64   `json:"test_marked_over"`
	MaxAddedMark     float64   `json:"max_added_mark"`
	TestContribution float64   `json:"test_contribution"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"` // UTC; zero for defaults
}

// DefaultScoreConfig is what a triple is scored with until a configuration is saved for it.
func DefaultScoreConfig(t Triple) ScoreConfig {
	return ScoreConfig{
		Triple:           t,
		TestMarkedOver:   scoring.DefaultMarkedOver,
		MaxAddedMark:     scoring.DefaultMaxAddedMark,
		TestContribution: scoring.DefaultContribution,
	}
}

// IsDefault reports whether the config was never saved.
func (c ScoreConfig) IsDefault() bool {
	return c.ID == ""
}

type Mark struct {
	ID        string `json:"id,omitempty"`
	StudentID string `json:"student_id"`
	Triple
	RawScore float64 `json:"raw_score"`
	// AddedMark is unset until explicitly entered; until then it defaults to the config's MaxAddedMark.
	AddedMark null.Float64 `json:"added_mark"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"` // UTC
}

// EffectiveAddedMark resolves the lazy default.
func (m Mark) EffectiveAddedMark(conf ScoreConfig) float64 {
	if m.AddedMark.Valid {
		return m.AddedMark.Float64
	}
	return conf.MaxAddedMark
}

type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Gender    string    `json:"gender"`
	ClassID   string    `json:"class_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Row is a student's line on a mark sheet, with every derived value computed.
type Row struct {
	StudentID         string  `json:"student_id"`
	StudentName       string  `json:"student_name"`
	RawScore          float64 `json:"raw_score"`
	AddedMark         float64 `json:"added_mark"`
	AddedMarkSet      bool    `json:"added_mark_set"`
	AdjustedScore     float64 `json:"adjusted_score"`
	FinalContribution float64 `json:"final_contribution"`
	Formatted         string  `json:"formatted"`
	Dirty             bool    `json:"dirty,omitempty"`
}

// NewRow computes the derived values of a mark under conf.
func NewRow(stu Student, mark Mark, conf ScoreConfig) Row {
	added := mark.EffectiveAddedMark(conf)
	return Row{
		StudentID:         stu.ID,
		StudentName:       stu.Name,
		RawScore:          mark.RawScore,
		AddedMark:         added,
		AddedMarkSet:      mark.AddedMark.Valid,
		AdjustedScore:     scoring.AdjustedScore(mark.RawScore, added),
		FinalContribution: scoring.FinalContribution(mark.RawScore, added, conf.TestMarkedOver, conf.TestContribution),
		Formatted:         scoring.FinalContributionFormatted(mark.RawScore, added, conf.TestMarkedOver, conf.TestContribution),
	}
}

// Sheet is the computed mark sheet of a triple.
type Sheet struct {
	Triple
	ClassName   string      `json:"class_name"`
	SubjectName string      `json:"subject_name"`
	TermName    string      `json:"term_name"`
	Config      ScoreConfig `json:"config"`
	Rows        []Row       `json:"rows"`
}

// a test cannot weigh more than the whole grade
const maxContribution = 100

// NewScoreConfig contains information needed to save the configuration of a triple.
type NewScoreConfig struct {
	Triple
	TestMarkedOver   *float64 `json:"test_marked_over"`
	MaxAddedMark     *float64 `json:"max_added_mark"`
	TestContribution *float64 `json:"test_contribution" validate:"omitempty,gte=0,lte=100"`
}

func (nc *NewScoreConfig) Validate(validate *validator.Validate) error {
	if err := nc.Triple.Validate(validate); err != nil {
		return err
	}
	if err := validate.Struct(nc); err != nil {
		return err
	}
	res := scoring.ValidateScoreConfig(floatOrNaN(nc.TestMarkedOver), floatOrNaN(nc.MaxAddedMark))
	return resultToError(res)
}

// Values returns the typed values, defaulting the test contribution.
func (nc NewScoreConfig) Values() ConfigValues {
	vals := ConfigValues{TestContribution: scoring.DefaultContribution}
	if nc.TestMarkedOver != nil {
		vals.TestMarkedOver = *nc.TestMarkedOver
	}
	if nc.MaxAddedMark != nil {
		vals.MaxAddedMark = *nc.MaxAddedMark
	}
	if nc.TestContribution != nil {
		vals.TestContribution = *nc.TestContribution
	}
	return vals
}

// ValuesOver returns the typed values. An omitted test contribution keeps the one of base
// when base is the configuration of the same triple.
func (nc NewScoreConfig) ValuesOver(base ScoreConfig) ConfigValues {
	vals := nc.Values()
	if nc.TestContribution == nil && base.Triple == nc.Triple {
		vals.TestContribution = base.TestContribution
	}
	return vals
}

// ConfigValues are the editable values of a ScoreConfig.
type ConfigValues struct {
	TestMarkedOver   float64 `json:"test_marked_over"`
	MaxAddedMark     float64 `json:"max_added_mark"`
	TestContribution float64 `json:"test_contribution"`
}

func (v ConfigValues) Validate() error {
	res := scoring.ValidateScoreConfig(v.TestMarkedOver, v.MaxAddedMark)
	if !(v.TestContribution >= 0 && v.TestContribution <= maxContribution) {
		return core.NewValidationError(nil,
			append(resultFields(res), core.FieldError{Field: "test_contribution", Error: "Test Contribution must be a number between 0 and 100"})...)
	}
	return resultToError(res)
}

func (v ConfigValues) apply(conf ScoreConfig) ScoreConfig {
	conf.TestMarkedOver = v.TestMarkedOver
	conf.MaxAddedMark = v.MaxAddedMark
	conf.TestContribution = v.TestContribution
	return conf
}

// MarkEntry is a raw mark edit, as typed. Blank AddedMark leaves the added mark unset.
type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	RawScore  string `json:"raw_score"`
	AddedMark string `json:"added_mark"`
}

// SaveMarks contains a batch of mark entries for one triple.
type SaveMarks struct {
	Triple
	Marks []MarkEntry `json:"marks" validate:"dive"`
}

func (sm *SaveMarks) Validate(validate *validator.Validate) error {
	if err := sm.Triple.Validate(validate); err != nil {
		return err
	}
	for i := range sm.Marks {
		sm.Marks[i].StudentID = core.CleanString(sm.Marks[i].StudentID)
	}
	return validate.Struct(sm)
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name    string `json:"name"`
	Gender  string `json:"gender" validate:"omitempty,gender"`
	ClassID string `json:"class_id" validate:"required,identifier"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Gender = core.CleanString(ns.Gender)
	ns.ClassID = core.CleanString(ns.ClassID)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return ValidateStudentName(ns.Name)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	Name    string `json:"name"`
	Gender  string `json:"gender" validate:"omitempty,gender"`
	ClassID string `json:"class_id" validate:"omitempty,identifier"`
}

func (us *UpdateStudent) Validate(orig Student, validate *validator.Validate) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if gender := core.CleanString(us.Gender); gender != "" {
		us.Gender = gender
	} else {
		us.Gender = orig.Gender
	}
	if classID := core.CleanString(us.ClassID); classID != "" {
		us.ClassID = classID
	} else {
		us.ClassID = orig.ClassID
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return ValidateStudentName(us.Name)
}

type StudentFilter struct {
	ClassID string `query:"class_id"`
	Search  string `query:"search"`
}

func (f *StudentFilter) Clean() {
	f.ClassID = core.CleanString(f.ClassID)
	f.Search = core.CleanString(f.Search, true /* lower */)
}

// QuickEntry records a raw score for a student of the class, creating the student if needed.
type QuickEntry struct {
	Triple
	Name     string `json:"name"`
	Gender   string `json:"gender" validate:"omitempty,gender"`
	RawScore string `json:"raw_score" validate:"required"`
}

func (qe *QuickEntry) Validate(validate *validator.Validate) error {
	qe.Name = core.CleanString(qe.Name)
	qe.Gender = core.CleanString(qe.Gender)
	if err := qe.Triple.Validate(validate); err != nil {
		return err
	}
	if err := validate.Struct(qe); err != nil {
		return err
	}
	return ValidateStudentName(qe.Name)
}

func floatOrNaN(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

// StudentNames returns the names of students, in order.
func StudentNames(students []Student) []string {
	names := make([]string, 0, len(students))
	for _, stu := range students {
		names = append(names, stu.Name)
	}
	return names
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
