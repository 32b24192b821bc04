package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	emailsvc "github.com/trezcool/gradebook/services/email"
	dummydb "github.com/trezcool/gradebook/storage/database/dummy"
	"github.com/trezcool/gradebook/tests"
)

type fixture struct {
	app     Server
	repo    gradebook.Repository
	svc     gradebook.Service
	mailSvc *emailsvc.ConsoleServiceMock
}

// setup returns a server backed by a fresh in-memory database with the default catalog.
// opts tweak the config before the server is built.
func setup(t *testing.T, opts ...func(*core.Config)) fixture {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewGradebookRepository(db)
	testutil.SeedCatalog(t, repo)

	conf := testutil.NewConfig()
	for _, opt := range opts {
		opt(conf)
	}
	logger := testutil.NewLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := gradebook.NewService(repo, mailSvc, logger)

	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		GradebookSvc:   svc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return fixture{app: app, repo: repo, svc: svc, mailSvc: mailSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	extra    interface{}
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func newCSVRequest(method, path, csv string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(csv))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	return req, rec
}

func (f fixture) do(method, path string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newRequest(method, path, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

func tripleQuery(t gradebook.Triple) string {
	v := make(url.Values)
	v.Set("class_id", t.ClassID)
	v.Set("subject_id", t.SubjectID)
	v.Set("term_id", t.TermID)
	return v.Encode()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f fixture, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := f.do(method, tt.path, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
