package gradebook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/scoring"
	"github.com/trezcool/gradebook/services/email"
	dummydb "github.com/trezcool/gradebook/storage/database/dummy"
	"github.com/trezcool/gradebook/tests"
)

var ctx = context.Background()

type fixture struct {
	repo    gradebook.Repository
	svc     gradebook.Service
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewGradebookRepository(db)
	testutil.SeedCatalog(t, repo)
	mailSvc := emailsvc.NewConsoleServiceMock(testutil.NewConfig())
	return fixture{
		repo:    repo,
		svc:     gradebook.NewService(repo, mailSvc, testutil.NewLogger()),
		mailSvc: mailSvc,
	}
}

func (f fixture) loadedSession(t *testing.T) *gradebook.Session {
	t.Helper()
	sess := gradebook.NewSession(f.svc, testutil.NewLogger())
	require.NoError(t, sess.Load(ctx, testutil.Triple))
	return sess
}

// failingRepo fails every SaveMarks call.
type failingRepo struct {
	gradebook.Repository
}

var errDown = errors.New("storage down")

func (failingRepo) SaveMarks(context.Context, ...gradebook.Mark) error {
	return errDown
}

func rowOf(t *testing.T, view gradebook.SessionView, studentID string) gradebook.Row {
	t.Helper()
	for _, row := range view.Rows {
		if row.StudentID == studentID {
			return row
		}
	}
	t.Fatalf("no row for student %s", studentID)
	return gradebook.Row{}
}

func TestSession_Load(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", testutil.Triple.ClassID)
	testutil.CreateStudent(t, f.repo, "Other Class", "cls_2_101")
	testutil.SaveMark(t, f.repo, testutil.Triple, ada.ID, 60, testutil.Float(5))

	sess := gradebook.NewSession(f.svc, testutil.NewLogger())
	assert.Equal(t, gradebook.StateIdle, sess.View().State)

	require.NoError(t, sess.Load(ctx, testutil.Triple))
	view := sess.View()
	assert.Equal(t, gradebook.StateLoaded, view.State)
	assert.Equal(t, testutil.Triple, view.Triple)
	assert.True(t, view.Config.IsDefault())
	assert.Len(t, view.Rows, 2)
	assert.Zero(t, view.Dirty)

	// (60 + 5) / 100 * 10
	assert.Equal(t, 6.5, rowOf(t, view, ada.ID).FinalContribution)
	// no mark yet: added mark defaults to the maximum
	benRow := rowOf(t, view, ben.ID)
	assert.False(t, benRow.AddedMarkSet)
	assert.Equal(t, 20.0, benRow.AddedMark)
	assert.Equal(t, 2.0, benRow.FinalContribution)
}

func TestSession_staleResponses(t *testing.T) {
	f := setup(t)
	other := gradebook.Triple{ClassID: "cls_1_101", SubjectID: "subj_2", TermID: "term_1"}
	resA := gradebook.LoadResult{Config: gradebook.DefaultScoreConfig(testutil.Triple)}
	resB := gradebook.LoadResult{Config: gradebook.DefaultScoreConfig(other)}

	t.Run("response for a deselected triple", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		reqA := sess.Begin(testutil.Triple)
		reqB := sess.Begin(other)

		require.NoError(t, sess.Apply(reqB, resB))
		err := sess.Apply(reqA, resA)
		assert.ErrorIs(t, err, gradebook.ErrStaleResponse)
		assert.Equal(t, other, sess.View().Triple)
	})

	t.Run("older response for the same triple", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		first := sess.Begin(testutil.Triple)
		second := sess.Begin(testutil.Triple)

		assert.ErrorIs(t, sess.Apply(first, resA), gradebook.ErrStaleResponse)
		assert.Equal(t, gradebook.StateIdle, sess.View().State)
		require.NoError(t, sess.Apply(second, resA))
		assert.Equal(t, gradebook.StateLoaded, sess.View().State)
	})

	t.Run("response after selecting another triple", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		req := sess.Begin(testutil.Triple)
		sess.Select(other)
		assert.ErrorIs(t, sess.Apply(req, resA), gradebook.ErrStaleResponse)
		assert.Equal(t, gradebook.StateIdle, sess.View().State)
	})

	t.Run("reload issued before a mark edit", func(t *testing.T) {
		f := setup(t)
		ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
		sess := f.loadedSession(t)

		req := sess.Begin(testutil.Triple)
		res, err := f.svc.Load(ctx, testutil.Triple)
		require.NoError(t, err)
		_, err = sess.EditMark(ada.ID, gradebook.FieldRawScore, "70")
		require.NoError(t, err)

		assert.ErrorIs(t, sess.Apply(req, res), gradebook.ErrStaleResponse)
		row := rowOf(t, sess.View(), ada.ID)
		assert.Equal(t, 70.0, row.RawScore)
		assert.True(t, row.Dirty)
	})

	t.Run("reload issued before a config save", func(t *testing.T) {
		f := setup(t)
		testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
		sess := f.loadedSession(t)

		req := sess.Begin(testutil.Triple)
		res, err := f.svc.Load(ctx, testutil.Triple)
		require.NoError(t, err)
		_, err = sess.SaveConfig(ctx, testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 50, MaxAddedMark: 8, TestContribution: 20})
		require.NoError(t, err)

		assert.ErrorIs(t, sess.Apply(req, res), gradebook.ErrStaleResponse)
		view := sess.View()
		assert.Equal(t, 8.0, view.Config.MaxAddedMark)
		assert.Equal(t, 1, view.Dirty)
	})

	t.Run("reload issued before a live config edit", func(t *testing.T) {
		f := setup(t)
		testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
		sess := f.loadedSession(t)

		req := sess.Begin(testutil.Triple)
		res, err := f.svc.Load(ctx, testutil.Triple)
		require.NoError(t, err)
		applied, err := sess.EditConfig(testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 100, MaxAddedMark: 5, TestContribution: 10})
		require.NoError(t, err)
		require.True(t, applied)

		assert.ErrorIs(t, sess.Apply(req, res), gradebook.ErrStaleResponse)
		assert.Equal(t, 5.0, sess.View().Config.MaxAddedMark)
	})

	t.Run("response after close", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		req := sess.Begin(testutil.Triple)
		sess.Close()
		assert.ErrorIs(t, sess.Apply(req, resA), gradebook.ErrStaleResponse)
	})
}

func TestSession_Select(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	sess := f.loadedSession(t)

	sess.Select(testutil.Triple)
	assert.Equal(t, gradebook.StateLoaded, sess.View().State)

	other := gradebook.Triple{ClassID: "cls_1_102", SubjectID: "subj_1", TermID: "term_1"}
	sess.Select(other)
	view := sess.View()
	assert.Equal(t, gradebook.StateIdle, view.State)
	assert.Empty(t, view.Rows)
	assert.Equal(t, other, view.Triple)

	_, err := sess.EditMark("whoever", gradebook.FieldRawScore, "10")
	assert.ErrorIs(t, err, gradebook.ErrSessionIdle)
}

func TestSession_EditConfig(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", testutil.Triple.ClassID)
	testutil.SaveMark(t, f.repo, testutil.Triple, ben.ID, 40, testutil.Float(15))
	sess := f.loadedSession(t)

	t.Run("propagates the new maximum", func(t *testing.T) {
		applied, err := sess.EditConfig(testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 100, MaxAddedMark: 8, TestContribution: 10})
		require.NoError(t, err)
		assert.True(t, applied)

		view := sess.View()
		assert.Equal(t, 8.0, view.Config.MaxAddedMark)
		for _, id := range []string{ada.ID, ben.ID} {
			row := rowOf(t, view, id)
			assert.Equal(t, 8.0, row.AddedMark)
			assert.True(t, row.AddedMarkSet)
			assert.False(t, row.Dirty)
		}
		// (40 + 8) / 100 * 10
		assert.Equal(t, 4.8, rowOf(t, view, ben.ID).FinalContribution)
		assert.Equal(t, "0.80 / 10", rowOf(t, view, ada.ID).Formatted)
		assert.Zero(t, view.Dirty)
	})

	t.Run("nothing is persisted", func(t *testing.T) {
		marks, err := f.repo.GetMarks(ctx, testutil.Triple)
		require.NoError(t, err)
		require.Len(t, marks, 1)
		assert.Equal(t, 15.0, marks[0].AddedMark.Float64)

		_, err = f.repo.GetConfiguration(ctx, testutil.Triple)
		assert.ErrorIs(t, err, gradebook.ErrNotFound)
	})

	t.Run("other triple is inert", func(t *testing.T) {
		other := gradebook.Triple{ClassID: "cls_1_101", SubjectID: "subj_3", TermID: "term_1"}
		applied, err := sess.EditConfig(other, gradebook.ConfigValues{TestMarkedOver: 100, MaxAddedMark: 2, TestContribution: 10})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 8.0, sess.View().Config.MaxAddedMark)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		applied, err := sess.EditConfig(testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 0, MaxAddedMark: -1, TestContribution: 10})
		assert.False(t, applied)
		require.True(t, core.IsValidationError(err))
		fields := err.(*core.ValidationError).FieldMap()
		assert.Equal(t, "Test Marked Over must be a positive number", fields[scoring.FieldTestMarkedOver])
		assert.Equal(t, "Maximum Added Marks must be a non-negative number", fields[scoring.FieldMaxAddedMark])
		assert.Equal(t, 8.0, sess.View().Config.MaxAddedMark)
	})

	t.Run("contribution above 100 is rejected", func(t *testing.T) {
		applied, err := sess.EditConfig(testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 100, MaxAddedMark: 8, TestContribution: 120})
		assert.False(t, applied)
		require.True(t, core.IsValidationError(err))
		assert.Equal(t, "Test Contribution must be a number between 0 and 100", err.(*core.ValidationError).FieldMap()["test_contribution"])
		assert.Equal(t, 10.0, sess.View().Config.TestContribution)
	})
}

func TestNewScoreConfig_ValuesOver(t *testing.T) {
	markedOver, maxAdded, contribution := 50.0, 5.0, 30.0
	loaded := gradebook.ScoreConfig{Triple: testutil.Triple, TestMarkedOver: 100, MaxAddedMark: 20, TestContribution: 25}
	other := gradebook.Triple{ClassID: "cls_1_101", SubjectID: "subj_2", TermID: "term_1"}

	tests := []struct {
		name string
		nc   gradebook.NewScoreConfig
		want float64
	}{
		{name: "contribution given", nc: gradebook.NewScoreConfig{Triple: testutil.Triple, TestMarkedOver: &markedOver, MaxAddedMark: &maxAdded, TestContribution: &contribution}, want: 30},
		{name: "contribution omitted", nc: gradebook.NewScoreConfig{Triple: testutil.Triple, TestMarkedOver: &markedOver, MaxAddedMark: &maxAdded}, want: 25},
		{name: "contribution omitted, other triple", nc: gradebook.NewScoreConfig{Triple: other, TestMarkedOver: &markedOver, MaxAddedMark: &maxAdded}, want: scoring.DefaultContribution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := tt.nc.ValuesOver(loaded)
			assert.Equal(t, tt.want, vals.TestContribution)
			assert.Equal(t, markedOver, vals.TestMarkedOver)
			assert.Equal(t, maxAdded, vals.MaxAddedMark)
		})
	}
}

func TestSession_weightedContribution(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	testutil.SaveConfig(t, f.repo, testutil.Triple, 50, 10, 20)
	sess := f.loadedSession(t)

	_, err := sess.EditMark(ada.ID, gradebook.FieldRawScore, "30")
	require.NoError(t, err)
	row, err := sess.EditMark(ada.ID, gradebook.FieldAddedMark, "5")
	require.NoError(t, err)

	assert.Equal(t, 35.0, row.AdjustedScore)
	assert.Equal(t, 14.0, row.FinalContribution)
	assert.Equal(t, "14.00 / 20", row.Formatted)
	assert.True(t, row.Dirty)
}

func TestSession_EditMark(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	sess := f.loadedSession(t)

	tests := []struct {
		name      string
		studentID string
		field     gradebook.MarkField
		value     string
		wantErr   error
		wantMsg   string
		wantRaw   float64
		wantAdded float64
		wantSet   bool
	}{
		{name: "raw score", studentID: ada.ID, field: gradebook.FieldRawScore, value: "55", wantRaw: 55, wantAdded: 20},
		{name: "blank raw score is 0", studentID: ada.ID, field: gradebook.FieldRawScore, value: " ", wantRaw: 0, wantAdded: 20},
		{name: "added mark", studentID: ada.ID, field: gradebook.FieldAddedMark, value: "12.5", wantAdded: 12.5, wantSet: true},
		{name: "blank added mark is unset", studentID: ada.ID, field: gradebook.FieldAddedMark, value: "", wantAdded: 20},
		{name: "raw score too big", studentID: ada.ID, field: gradebook.FieldRawScore, value: "150", wantMsg: "Score cannot exceed 100"},
		{name: "negative raw score", studentID: ada.ID, field: gradebook.FieldRawScore, value: "-1", wantMsg: "Score cannot be negative"},
		{name: "added mark too big", studentID: ada.ID, field: gradebook.FieldAddedMark, value: "21", wantMsg: "Added mark cannot exceed 20"},
		{name: "not a number", studentID: ada.ID, field: gradebook.FieldAddedMark, value: "abc", wantMsg: "Please enter a valid number"},
		{name: "unknown student", studentID: "nobody", field: gradebook.FieldRawScore, value: "1", wantErr: gradebook.ErrStudentNotFound},
		{name: "unknown field", studentID: ada.ID, field: "grade", value: "1", wantMsg: "unknown mark field grade"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := rowOf(t, sess.View(), ada.ID)
			row, err := sess.EditMark(tt.studentID, tt.field, tt.value)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				require.True(t, core.IsValidationError(err), "err = %v", err)
				for _, msg := range err.(*core.ValidationError).FieldMap() {
					assert.Equal(t, tt.wantMsg, msg)
				}
				// rejected input leaves the mark untouched
				assert.Equal(t, before, rowOf(t, sess.View(), ada.ID))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantRaw, row.RawScore)
				assert.Equal(t, tt.wantAdded, row.AddedMark)
				assert.Equal(t, tt.wantSet, row.AddedMarkSet)
				assert.True(t, row.Dirty)
			}
		})
	}
}

func TestSession_SaveConfig(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", testutil.Triple.ClassID)
	testutil.SaveMark(t, f.repo, testutil.Triple, ada.ID, 70, testutil.Float(20))
	sess := f.loadedSession(t)

	conf, err := sess.SaveConfig(ctx, testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 80, MaxAddedMark: 8, TestContribution: 10})
	require.NoError(t, err)
	assert.False(t, conf.IsDefault())

	// persisted
	saved, err := f.svc.GetConfiguration(ctx, testutil.Triple)
	require.NoError(t, err)
	assert.Equal(t, 80.0, saved.TestMarkedOver)
	assert.Equal(t, 8.0, saved.MaxAddedMark)

	// propagated, and pending a save
	view := sess.View()
	assert.Equal(t, 2, view.Dirty)
	for _, id := range []string{ada.ID, ben.ID} {
		assert.Equal(t, 8.0, rowOf(t, view, id).AddedMark)
	}
	// (70 + 8) / 80 * 10 = 9.75
	assert.Equal(t, 9.75, rowOf(t, view, ada.ID).FinalContribution)

	marks, err := f.repo.GetMarks(ctx, testutil.Triple)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, 20.0, marks[0].AddedMark.Float64, "marks are committed by SaveAll only")

	n, err := sess.SaveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, sess.View().Dirty)

	marks, err = f.repo.GetMarks(ctx, testutil.Triple)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	for _, m := range marks {
		assert.Equal(t, 8.0, m.AddedMark.Float64)
		assert.True(t, m.AddedMark.Valid)
	}

	t.Run("invalid config is not saved", func(t *testing.T) {
		_, err := sess.SaveConfig(ctx, testutil.Triple, gradebook.ConfigValues{TestMarkedOver: 0, MaxAddedMark: 5, TestContribution: 10})
		assert.True(t, core.IsValidationError(err))
		saved, err := f.svc.GetConfiguration(ctx, testutil.Triple)
		require.NoError(t, err)
		assert.Equal(t, 80.0, saved.TestMarkedOver)
	})
}

func TestSession_SaveAll(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)

	t.Run("nothing to save", func(t *testing.T) {
		sess := f.loadedSession(t)
		n, err := sess.SaveAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failed save keeps the edits", func(t *testing.T) {
		svc := gradebook.NewService(failingRepo{f.repo}, f.mailSvc, testutil.NewLogger())
		sess := gradebook.NewSession(svc, testutil.NewLogger())
		require.NoError(t, sess.Load(ctx, testutil.Triple))
		_, err := sess.EditMark(ada.ID, gradebook.FieldRawScore, "42")
		require.NoError(t, err)

		_, err = sess.SaveAll(ctx)
		assert.ErrorIs(t, err, errDown)
		view := sess.View()
		assert.Equal(t, 1, view.Dirty)
		assert.Equal(t, 42.0, rowOf(t, view, ada.ID).RawScore)
	})

	t.Run("idle session", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		_, err := sess.SaveAll(ctx)
		assert.ErrorIs(t, err, gradebook.ErrSessionIdle)
	})

	t.Run("saves and reloads", func(t *testing.T) {
		sess := f.loadedSession(t)
		_, err := sess.EditMark(ada.ID, gradebook.FieldRawScore, "42")
		require.NoError(t, err)
		n, err := sess.SaveAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		again := f.loadedSession(t)
		row := rowOf(t, again.View(), ada.ID)
		assert.Equal(t, 42.0, row.RawScore)
		assert.False(t, row.AddedMarkSet)
	})
}

func TestSession_Import(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", testutil.Triple.ClassID)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", testutil.Triple.ClassID)
	chi := testutil.CreateStudent(t, f.repo, "Chidi Okafor", testutil.Triple.ClassID)
	testutil.SaveMark(t, f.repo, testutil.Triple, chi.ID, 10, testutil.Float(3))

	records := [][]string{
		{"Student Name", "Raw Test Score", "Bonus"},
		{"ben eze", "120", "4"},
		{"Chidi Okafor", "55", ""},
		{"Ada Obi", "abc", "-2"},
		{"", "10", "1"},
		{"Chidy Okafor", "10", "1"},
	}

	t.Run("reports unknown names", func(t *testing.T) {
		sess := f.loadedSession(t)
		report, err := sess.Import(ctx, records, false)
		require.NoError(t, err)

		assert.Equal(t, 3, report.Matched)
		assert.Equal(t, 1, report.Skipped)
		assert.Empty(t, report.Created)
		require.Len(t, report.Unknown, 1)
		assert.Equal(t, gradebook.UnknownName{Name: "Chidy Okafor", Suggestion: "Chidi Okafor"}, report.Unknown[0])

		view := sess.View()
		assert.Equal(t, 3, view.Dirty)
		// file order
		require.Len(t, view.Rows, 3)
		assert.Equal(t, []string{ben.ID, chi.ID, ada.ID}, []string{view.Rows[0].StudentID, view.Rows[1].StudentID, view.Rows[2].StudentID})

		benRow := view.Rows[0]
		assert.Equal(t, 100.0, benRow.RawScore, "clamped to the test maximum")
		assert.Equal(t, 4.0, benRow.AddedMark)

		chiRow := view.Rows[1]
		assert.Equal(t, 55.0, chiRow.RawScore)
		assert.Equal(t, 3.0, chiRow.AddedMark, "blank added mark keeps the existing one")

		adaRow := view.Rows[2]
		assert.Equal(t, 0.0, adaRow.RawScore)
		assert.False(t, adaRow.AddedMarkSet)
	})

	t.Run("adds missing students", func(t *testing.T) {
		sess := f.loadedSession(t)
		report, err := sess.Import(ctx, records, true)
		require.NoError(t, err)

		assert.Equal(t, 4, report.Matched)
		assert.Empty(t, report.Unknown)
		require.Len(t, report.Created, 1)
		assert.Equal(t, "Chidy Okafor", report.Created[0].Name)
		assert.Equal(t, testutil.Triple.ClassID, report.Created[0].ClassID)

		view := sess.View()
		require.Len(t, view.Rows, 4)
		assert.Equal(t, "Chidy Okafor", view.Rows[3].StudentName)
		assert.Equal(t, 10.0, view.Rows[3].RawScore)
		assert.Equal(t, 1.0, view.Rows[3].AddedMark)

		n, err := sess.SaveAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("no name column", func(t *testing.T) {
		sess := f.loadedSession(t)
		_, err := sess.Import(ctx, [][]string{{"Score", "Bonus"}, {"1", "2"}}, false)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("idle session", func(t *testing.T) {
		sess := gradebook.NewSession(f.svc, testutil.NewLogger())
		_, err := sess.Import(ctx, records, false)
		assert.ErrorIs(t, err, gradebook.ErrSessionIdle)
	})
}
