package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/tests"
)

func Test_marksApi_configuration(t *testing.T) {
	f := setup(t)
	triple := testutil.Triple
	path := "/v1/configurations?" + tripleQuery(triple)

	runHTTPTests(t, f, []httpTest{
		{name: "defaults", path: path, wantCode: http.StatusOK, wantData: marchallObj(t, gradebook.DefaultScoreConfig(triple))},
		{
			name: "triple required", path: "/v1/configurations?class_id=cls_1_101", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"subject_id": "this field is required", "term_id": "this field is required"}),
		},
		{
			name: "invalid", method: http.MethodPut, path: "/v1/configurations",
			body:     []byte(`{"class_id": "cls_1_101", "subject_id": "subj_1", "term_id": "term_1", "test_marked_over": 0}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"test_marked_over": "Test Marked Over must be a positive number",
				"max_added_mark":   "Maximum Added Marks must be a non-negative number",
			}),
		},
		{
			name: "contribution over 100", method: http.MethodPut, path: "/v1/configurations",
			body:     []byte(`{"class_id": "cls_1_101", "subject_id": "subj_1", "term_id": "term_1", "test_marked_over": 50, "max_added_mark": 10, "test_contribution": 120}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"test_contribution": "test_contribution must be 100 or less"}),
		},
	})

	t.Run("saved", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/v1/configurations",
			[]byte(`{"class_id": "cls_1_101", "subject_id": "subj_1", "term_id": "term_1", "test_marked_over": 50, "max_added_mark": 10, "test_contribution": 20}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var conf gradebook.ScoreConfig
		unmarshal(t, rec, &conf)
		assert.NotEmpty(t, conf.ID)
		assert.Equal(t, triple, conf.Triple)
		assert.Equal(t, 50.0, conf.TestMarkedOver)
		assert.Equal(t, 10.0, conf.MaxAddedMark)
		assert.Equal(t, 20.0, conf.TestContribution)

		rec = f.do(http.MethodGet, path)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, conf)}, rec)
	})
}

func Test_marksApi_saveMarks(t *testing.T) {
	f := setup(t)
	triple := testutil.Triple
	testutil.SaveConfig(t, f.repo, triple, 50, 10, 20)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", triple.ClassID)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", triple.ClassID)
	other := testutil.CreateStudent(t, f.repo, "Chidi Okafor", "cls_2_101")

	body := func(entries ...gradebook.MarkEntry) []byte {
		return marchallObj(t, gradebook.SaveMarks{Triple: triple, Marks: entries})
	}

	runHTTPTests(t, f, []httpTest{
		{
			name: "rejects the whole batch", method: http.MethodPut, path: "/v1/marks",
			body: body(
				gradebook.MarkEntry{StudentID: ada.ID, RawScore: "60"},
				gradebook.MarkEntry{StudentID: ben.ID, RawScore: "abc", AddedMark: "11"},
			),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"marks[0].raw_score":  "Score cannot exceed 50",
				"marks[1].raw_score":  "Please enter a valid number",
				"marks[1].added_mark": "Added mark cannot exceed 10",
			}),
		},
		{
			name: "student of another class", method: http.MethodPut, path: "/v1/marks",
			body:     body(gradebook.MarkEntry{StudentID: other.ID, RawScore: "10"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"marks[0].student_id": "student not found"}),
		},
		{
			name: "nothing saved", path: "/v1/marks?" + tripleQuery(triple),
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	})

	t.Run("saved", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/v1/marks", body(
			gradebook.MarkEntry{StudentID: ada.ID, RawScore: "30"},
			gradebook.MarkEntry{StudentID: ben.ID, RawScore: " 12.5 ", AddedMark: "5"},
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var sheet gradebook.Sheet
		unmarshal(t, rec, &sheet)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, "Ada Obi", sheet.Rows[0].StudentName)
		assert.Equal(t, 10.0, sheet.Rows[0].AddedMark)
		assert.False(t, sheet.Rows[0].AddedMarkSet)
		assert.Equal(t, "16.00 / 20", sheet.Rows[0].Formatted)
		assert.Equal(t, 12.5, sheet.Rows[1].RawScore)
		assert.Equal(t, 17.5, sheet.Rows[1].AdjustedScore)
		assert.Equal(t, 7.0, sheet.Rows[1].FinalContribution)

		marks, err := f.svc.GetMarks(context.Background(), triple)
		require.NoError(t, err)
		assert.Len(t, marks, 2)
	})
}

func Test_marksApi_quickEntry(t *testing.T) {
	f := setup(t)
	triple := testutil.Triple
	testutil.SaveConfig(t, f.repo, triple, 50, 10, 20)

	entry := func(name, raw string) []byte {
		return marchallObj(t, gradebook.QuickEntry{Triple: triple, Name: name, RawScore: raw})
	}

	runHTTPTests(t, f, []httpTest{
		{
			name: "name required", method: http.MethodPost, path: "/v1/marks/quick-entry", body: entry(" ", "10"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "Student name is required"}),
		},
		{
			name: "score over the max", method: http.MethodPost, path: "/v1/marks/quick-entry", body: entry("Chidi Okafor", "51"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"raw_score": "Score cannot exceed 50"}),
		},
	})

	rec := f.do(http.MethodPost, "/v1/marks/quick-entry", entry("Chidi Okafor", "45"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var row gradebook.Row
	unmarshal(t, rec, &row)
	assert.Equal(t, "Chidi Okafor", row.StudentName)
	assert.Equal(t, 10.0, row.AddedMark)
	assert.True(t, row.AddedMarkSet)
	assert.Equal(t, "20.00 / 20", row.Formatted) // capped

	// same student, found by name
	rec = f.do(http.MethodPost, "/v1/marks/quick-entry", entry("chidi OKAFOR", "20"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var again gradebook.Row
	unmarshal(t, rec, &again)
	assert.Equal(t, row.StudentID, again.StudentID)
	assert.Equal(t, "12.00 / 20", again.Formatted)

	students, err := f.svc.QueryStudents(context.Background(), gradebook.StudentFilter{ClassID: triple.ClassID})
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func Test_marksApi_markSheet(t *testing.T) {
	f := setup(t)
	triple := testutil.Triple
	testutil.SaveConfig(t, f.repo, triple, 50, 10, 20)
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", triple.ClassID)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", triple.ClassID)
	testutil.SaveMark(t, f.repo, triple, ben.ID, 50, testutil.Float(0))

	rec := f.do(http.MethodGet, "/v1/marksheet?"+tripleQuery(triple))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sheet gradebook.Sheet
	unmarshal(t, rec, &sheet)
	assert.Equal(t, "JSS 1-101", sheet.ClassName)
	assert.Equal(t, "Integrated Science", sheet.SubjectName)
	assert.Equal(t, "1st Term", sheet.TermName)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, ada.ID, sheet.Rows[0].StudentID)
	assert.Equal(t, "4.00 / 20", sheet.Rows[0].Formatted) // lazy default: 0 + 10 over 50
	assert.Equal(t, ben.ID, sheet.Rows[1].StudentID)
	assert.Equal(t, "20.00 / 20", sheet.Rows[1].Formatted)
}
