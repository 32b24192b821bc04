package gradebook

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

type State uint8

const (
	StateIdle State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "loaded":
		*s = StateLoaded
	default:
		return errors.Errorf("unknown session state %q", text)
	}
	return nil
}

// MarkField names the editable fields of a mark.
type MarkField string

const (
	FieldRawScore  MarkField = scoring.FieldRawScore
	FieldAddedMark MarkField = scoring.FieldAddedMark
)

// Request tags an outstanding load with the triple it was issued for.
type Request struct {
	Triple
	Seq uint64
}

// SessionView is a snapshot of a session.
type SessionView struct {
	State  State       `json:"state"`
	Triple Triple      `json:"triple"`
	Config ScoreConfig `json:"config"`
	Rows   []Row       `json:"rows"`
	Dirty  int         `json:"dirty"`
}

type entry struct {
	raw   float64
	added null.Float64 // unset: defaults to the config's MaxAddedMark
	dirty bool
}

// Session holds the mark sheet of one triple while it is being edited.
//
// A session is Idle until a load for the selected triple completes, then Loaded.
// Configuration changes propagate to every loaded mark: their added marks are overwritten
// with the new maximum and every derived value is recomputed before the change returns.
// Mark edits only live in the session until SaveAll.
type Session struct {
	svc    Service
	logger core.Logger

	mu       sync.Mutex
	state    State
	selected Triple // latest triple asked for
	seq      uint64 // latest request issued, bumped by every edit of the loaded sheet
	triple   Triple // loaded triple
	conf     ScoreConfig
	students []Student
	entries  map[string]*entry
	rows     []Row
}

func NewSession(svc Service, logger core.Logger) *Session {
	return &Session{
		svc:     svc,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Begin registers a load of t. Selecting another triple than the loaded one makes the session Idle.
func (s *Session) Begin(t Triple) Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectLocked(t)
	s.seq++
	return Request{Triple: t, Seq: s.seq}
}

// Apply installs the result of req. Responses to superseded requests are discarded with ErrStaleResponse.
func (s *Session) Apply(req Request, res LoadResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Seq != s.seq || req.Triple != s.selected {
		s.logger.Debug("discarding stale response", map[string]interface{}{
			"triple": req.Triple.String(), "seq": req.Seq, "latest": s.seq,
		})
		return ErrStaleResponse
	}

	s.triple = req.Triple
	s.conf = res.Config
	s.students = append([]Student(nil), res.Students...)
	s.entries = make(map[string]*entry, len(res.Students))
	for _, stu := range res.Students {
		s.entries[stu.ID] = &entry{}
	}
	for _, m := range res.Marks {
		if e, ok := s.entries[m.StudentID]; ok {
			e.raw = m.RawScore
			e.added = m.AddedMark
		}
	}
	s.state = StateLoaded
	s.recompute()
	return nil
}

// Load fetches the mark sheet of t and installs it, unless a newer request superseded it meanwhile.
func (s *Session) Load(ctx context.Context, t Triple) error {
	req := s.Begin(t)
	res, err := s.svc.Load(ctx, t)
	if err != nil {
		return err
	}
	return s.Apply(req, res)
}

// Select changes the selected triple without loading it.
func (s *Session) Select(t Triple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(t)
}

func (s *Session) selectLocked(t Triple) {
	if t != s.selected {
		s.selected = t
		s.seq++ // outstanding requests are stale now
	}
	if s.state == StateLoaded && t != s.triple {
		s.reset()
	}
}

// Config returns the configuration of the loaded triple, zero when Idle.
func (s *Session) Config() ScoreConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conf
}

// Close drops the loaded data.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = Triple{}
	s.seq++
	s.reset()
}

func (s *Session) reset() {
	s.state = StateIdle
	s.triple = Triple{}
	s.conf = ScoreConfig{}
	s.students = nil
	s.entries = make(map[string]*entry)
	s.rows = nil
}

// EditConfig applies a configuration being typed. Invalid values are rejected.
// It only affects the session when t is the loaded triple, and reports whether it did.
// Nothing is persisted and no mark becomes dirty.
func (s *Session) EditConfig(t Triple, vals ConfigValues) (bool, error) {
	if err := vals.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoaded || t != s.triple {
		return false, nil
	}
	s.propagate(vals.apply(s.conf), false)
	return true, nil
}

// SaveConfig persists the configuration of t. If t is loaded, the new configuration propagates
// to every mark and they all become dirty, to be committed by SaveAll.
func (s *Session) SaveConfig(ctx context.Context, t Triple, vals ConfigValues) (ScoreConfig, error) {
	conf, err := s.svc.SaveConfiguration(ctx, t, vals)
	if err != nil {
		return ScoreConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoaded && t == s.triple {
		s.propagate(conf, true)
	}
	return conf, nil
}

// touch makes the outstanding requests stale, so that they cannot overwrite an edit.
// Callers hold the lock.
func (s *Session) touch() {
	s.seq++
}

func (s *Session) propagate(conf ScoreConfig, markDirty bool) {
	s.touch()
	s.conf = conf
	for _, e := range s.entries {
		e.added = null.Float64From(conf.MaxAddedMark)
		if markDirty {
			e.dirty = true
		}
	}
	s.recompute()
}

// EditMark sets one field of a student's mark from typed input. Invalid input is rejected and
// leaves the mark untouched. A blank raw score counts as 0; a blank added mark is unset.
func (s *Session) EditMark(studentID string, field MarkField, value string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoaded {
		return Row{}, ErrSessionIdle
	}
	e, ok := s.entries[studentID]
	if !ok {
		return Row{}, ErrStudentNotFound
	}

	switch field {
	case FieldRawScore:
		raw, res := ParseRawScore(value, s.conf)
		if err := resultToError(res); err != nil {
			return Row{}, err
		}
		e.raw = raw
	case FieldAddedMark:
		added, res := ParseAddedMark(value, s.conf)
		if err := resultToError(res); err != nil {
			return Row{}, err
		}
		e.added = added
	default:
		return Row{}, core.NewValidationError(nil, core.FieldError{Field: "field", Error: "unknown mark field " + string(field)})
	}
	e.dirty = true
	s.touch()
	s.recompute()

	for _, row := range s.rows {
		if row.StudentID == studentID {
			return row, nil
		}
	}
	return Row{}, ErrStudentNotFound
}

// SaveAll persists the dirty marks and returns how many were saved.
// On failure the session is left as it was.
func (s *Session) SaveAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.state != StateLoaded {
		s.mu.Unlock()
		return 0, ErrSessionIdle
	}
	t := s.triple
	var marks []Mark
	for _, stu := range s.students {
		if e := s.entries[stu.ID]; e.dirty {
			marks = append(marks, Mark{StudentID: stu.ID, RawScore: e.raw, AddedMark: e.added})
		}
	}
	s.mu.Unlock()

	if len(marks) == 0 {
		return 0, nil
	}
	if err := s.svc.SaveMarks(ctx, t, marks...); err != nil {
		return 0, errors.Wrap(err, "saving all marks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoaded && s.triple == t {
		for _, m := range marks {
			// keep edits made while saving dirty
			if e, ok := s.entries[m.StudentID]; ok && e.raw == m.RawScore && e.added == m.AddedMark {
				e.dirty = false
			}
		}
		s.recompute()
	}
	return len(marks), nil
}

// Import merges a marks file into the loaded sheet. Matched marks become dirty, and students are
// ordered like the file. Names matching no class student are created when addMissing is set,
// otherwise reported with the closest existing name.
func (s *Session) Import(ctx context.Context, records [][]string, addMissing bool) (ImportReport, error) {
	var report ImportReport

	s.mu.Lock()
	if s.state != StateLoaded {
		s.mu.Unlock()
		return report, ErrSessionIdle
	}
	t, conf := s.triple, s.conf
	known := make(map[string]bool, len(s.students))
	for _, stu := range s.students {
		known[nameKey(stu.Name)] = true
	}
	names := StudentNames(s.students)
	s.mu.Unlock()

	rows, skipped, err := parseMarkRecords(records, conf)
	if err != nil {
		return report, err
	}
	report.Skipped = skipped

	for _, row := range rows {
		key := nameKey(row.name)
		if known[key] {
			continue
		}
		known[key] = true
		if !addMissing {
			report.Unknown = append(report.Unknown, UnknownName{Name: row.name, Suggestion: suggestName(row.name, names)})
			continue
		}
		stu, err := s.svc.CreateStudent(ctx, NewStudent{Name: row.name, ClassID: t.ClassID})
		if err != nil {
			if core.IsValidationError(err) {
				report.Skipped++
				continue
			}
			return report, errors.Wrap(err, "adding missing student")
		}
		report.Created = append(report.Created, stu)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoaded || s.triple != t {
		return report, ErrStaleResponse
	}
	for _, stu := range report.Created {
		s.students = append(s.students, stu)
		s.entries[stu.ID] = &entry{}
	}

	byName := make(map[string]string, len(s.students))
	for _, stu := range s.students {
		byName[nameKey(stu.Name)] = stu.ID
	}
	order := make(map[string]int, len(rows))
	for _, row := range rows {
		id, ok := byName[nameKey(row.name)]
		if !ok {
			continue
		}
		if _, seen := order[id]; !seen {
			order[id] = len(order)
		}
		e := s.entries[id]
		if row.raw.Valid {
			e.raw = row.raw.Float64
		}
		if row.added.Valid {
			e.added = row.added
		}
		e.dirty = true
		report.Matched++
	}

	sort.SliceStable(s.students, func(i, j int) bool {
		oi, iok := order[s.students[i].ID]
		oj, jok := order[s.students[j].ID]
		switch {
		case iok && jok:
			return oi < oj
		default:
			return iok && !jok
		}
	})
	s.touch()
	s.recompute()
	return report, nil
}

// View returns a snapshot of the session.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SessionView{
		State:  s.state,
		Triple: s.selected,
		Config: s.conf,
		Rows:   append([]Row(nil), s.rows...),
	}
	if s.state == StateLoaded {
		view.Triple = s.triple
	}
	for _, row := range s.rows {
		if row.Dirty {
			view.Dirty++
		}
	}
	return view
}

// recompute rebuilds the derived rows. Callers hold s.mu.
func (s *Session) recompute() {
	rows := make([]Row, 0, len(s.students))
	for _, stu := range s.students {
		e := s.entries[stu.ID]
		row := NewRow(stu, Mark{RawScore: e.raw, AddedMark: e.added}, s.conf)
		row.Dirty = e.dirty
		rows = append(rows, row)
	}
	s.rows = rows
}
