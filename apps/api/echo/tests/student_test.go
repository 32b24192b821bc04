package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/tests"
)

func Test_studentApi_query(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", "cls_1_101", now)
	zara := testutil.CreateStudent(t, f.repo, "Zara Musa", "cls_1_101", now.Add(-time.Hour))
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", "cls_2_101", now.Add(-2*time.Hour))

	path := func(classID, search, ordering string) string {
		v := make(url.Values)
		if classID != "" {
			v.Add("class_id", classID)
		}
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		return "/v1/students?" + v.Encode()
	}

	runHTTPTests(t, f, []httpTest{
		{name: "all", path: "/v1/students", wantCode: http.StatusOK, wantData: marchallList(t, ada, ben, zara)},
		{name: "class", path: path("cls_1_101", "", ""), wantCode: http.StatusOK, wantData: marchallList(t, ada, zara)},
		{name: "search", path: path("", "MUS", ""), wantCode: http.StatusOK, wantData: marchallList(t, zara)},
		{name: "search (unknown)", path: path("", "lol", ""), wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "ordering=-name", path: path("", "", "-name"), wantCode: http.StatusOK, wantData: marchallList(t, zara, ben, ada)},
		{name: "ordering=created_at", path: path("", "", "created_at"), wantCode: http.StatusOK, wantData: marchallList(t, ben, zara, ada)},
	})
}

func Test_studentApi_create(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{
			name: "invalid body", method: http.MethodPost, body: []byte(`{"name": "Ada", "class_id": "cls_1_101"`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "class required", method: http.MethodPost, body: []byte(`{"name": "Ada Obi"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "this field is required"}),
		},
		{
			name: "bad gender", method: http.MethodPost, body: []byte(`{"name": "Ada Obi", "gender": "X", "class_id": "cls_1_101"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"gender": "gender must be one of: Male, Female"}),
		},
		{
			name: "name too short", method: http.MethodPost, body: []byte(`{"name": " A ", "class_id": "cls_1_101"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "Student name must be at least 2 characters"}),
		},
		{
			name: "unknown class", method: http.MethodPost, body: []byte(`{"name": "Ada Obi", "class_id": "cls_9"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "unknown class"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, "/v1/students", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}

	t.Run("created", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/students", []byte(`{"name": "  Ada Obi ", "gender": "Female", "class_id": "cls_1_101"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var stu gradebook.Student
		unmarshal(t, rec, &stu)
		assert.NotEmpty(t, stu.ID)
		assert.Equal(t, "Ada Obi", stu.Name)
		assert.Equal(t, "Female", stu.Gender)
		assert.Equal(t, "cls_1_101", stu.ClassID)

		saved, err := f.svc.GetStudent(context.Background(), stu.ID)
		require.NoError(t, err)
		assert.Equal(t, stu.Name, saved.Name)
	})
}

func Test_studentApi_detail(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", "cls_1_101")
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", "cls_1_101")
	testutil.SaveMark(t, f.repo, testutil.Triple, ben.ID, 40, nil)

	runHTTPTests(t, f, []httpTest{
		{name: "retrieve", path: "/v1/students/" + ada.ID, wantCode: http.StatusOK, wantData: marchallObj(t, ada)},
		{name: "retrieve (unknown)", path: "/v1/students/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{
			name: "update (invalid)", method: http.MethodPut, path: "/v1/students/" + ada.ID, body: []byte(`{"class_id": "cls 1"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "only letters, digits, '_', '-' and '.' are allowed"}),
		},
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/v1/students/"+ada.ID, []byte(`{"name": "Ada N. Obi", "class_id": "cls_1_102"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var stu gradebook.Student
		unmarshal(t, rec, &stu)
		assert.Equal(t, "Ada N. Obi", stu.Name)
		assert.Equal(t, "cls_1_102", stu.ClassID)
		assert.Equal(t, ada.Gender, stu.Gender)
		assert.True(t, stu.UpdatedAt.After(ada.UpdatedAt))
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(http.MethodDelete, "/v1/students/"+ben.ID)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(http.MethodGet, "/v1/students/"+ben.ID)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		marks, err := f.repo.GetMarks(context.Background(), testutil.Triple)
		require.NoError(t, err)
		assert.Empty(t, marks)
	})
}

func Test_studentApi_destroyMultiple(t *testing.T) {
	f := setup(t)
	ada := testutil.CreateStudent(t, f.repo, "Ada Obi", "cls_1_101")
	ben := testutil.CreateStudent(t, f.repo, "Ben Eze", "cls_1_101")
	testutil.CreateStudent(t, f.repo, "Chidi Okafor", "cls_2_101")
	testutil.CreateStudent(t, f.repo, "Dayo Ade", "cls_2_101")

	rec := f.do(http.MethodDelete, "/v1/students?id="+ada.ID+"&id="+ben.ID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/students?class_id=cls_2_101")
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, DeletedResponse{Deleted: 2})}, rec)

	rec = f.do(http.MethodGet, "/v1/students")
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
}

func Test_studentApi_importRoster(t *testing.T) {
	f := setup(t)
	roster := "Full Name,Class\n" +
		"Ada Obi,JSS 2-101\n" +
		"Ben Eze,cls_1_102\n" +
		",JSS 1-101\n" +
		"Chidi Okafor,Unknown\n"

	req, rec := newCSVRequest(http.MethodPost, "/v1/students/import?class_id=cls_3_101", roster)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var report gradebook.RosterReport
	unmarshal(t, rec, &report)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Created, 3)
	classes := map[string]string{}
	for _, stu := range report.Created {
		classes[stu.Name] = stu.ClassID
	}
	assert.Equal(t, map[string]string{"Ada Obi": "cls_2_101", "Ben Eze": "cls_1_102", "Chidi Okafor": "cls_3_101"}, classes)

	t.Run("no name column", func(t *testing.T) {
		req, rec := newCSVRequest(http.MethodPost, "/v1/students/import", "Class\nJSS 1-101\n")
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: gradebook.ErrNoNameColumn.Error()})}, rec)
	})
}
