package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/binaryblob/binaryblob/internal/audit"
	"github.com/binaryblob/binaryblob/internal/auth"
	"github.com/binaryblob/binaryblob/internal/blog"
	"github.com/binaryblob/binaryblob/internal/database"
	"github.com/binaryblob/binaryblob/internal/projects"
	"github.com/binaryblob/binaryblob/internal/server"
	"github.com/binaryblob/binaryblob/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "binaryblob-auth"
	formContentType      = "application/x-www-form-urlencoded"
)

type testStack struct {
	server *httptest.Server
	issuer *auth.SessionIssuer
}

func newTestStack(testContext *testing.T) *testStack {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Options{
		Driver: "sqlite",
		Path:   filepath.Join(testContext.TempDir(), "integration.db"),
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql handle: %v", err)
	}
	testContext.Cleanup(func() { _ = sqlDB.Close() })

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build user service: %v", err)
	}
	recorder := audit.NewRecorder(audit.RecorderConfig{})
	taskService, err := projects.NewService(projects.ServiceConfig{
		Database: db,
		Recorder: recorder,
		Users:    userService,
	})
	if err != nil {
		testContext.Fatalf("failed to build task service: %v", err)
	}
	blogService, err := blog.NewService(blog.ServiceConfig{Database: db, Recorder: recorder})
	if err != nil {
		testContext.Fatalf("failed to build blog service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to build session validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build session issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: validator,
		Actors:           userService,
		Tasks:            taskService,
		Blog:             blogService,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)
	return &testStack{server: testServer, issuer: issuer}
}

func (s *testStack) session(testContext *testing.T, userID, username string, roles ...string) *http.Cookie {
	testContext.Helper()
	cookie, err := s.issuer.IssueSessionCookie(auth.SessionIdentity{
		UserID:       userID,
		UserName:     username,
		Capabilities: roles,
	})
	if err != nil {
		testContext.Fatalf("failed to mint session: %v", err)
	}
	return cookie
}

func (s *testStack) do(testContext *testing.T, method, path string, cookie *http.Cookie, form url.Values, out any) int {
	testContext.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	request, err := http.NewRequest(method, s.server.URL+path, body)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if form != nil {
		request.Header.Set("Content-Type", formContentType)
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			testContext.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

type taskResponse struct {
	ID        uint       `json:"id"`
	Title     string     `json:"title"`
	Status    *int64     `json:"status"`
	StartedOn *time.Time `json:"started_on"`
	OwnerID   *uint      `json:"owner_id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestTaskTrackerFlow(testContext *testing.T) {
	stack := newTestStack(testContext)
	manager := stack.session(testContext, "user-manager", "manager", users.RoleSuperuser)
	viewer := stack.session(testContext, "user-viewer", "viewer", string(users.CapabilityViewTask))

	var created struct {
		Task     taskResponse `json:"task"`
		Warnings []string     `json:"warnings"`
	}
	status := stack.do(testContext, http.MethodPost, "/tasks", manager, url.Values{
		projects.KeyTitle:    {"Ship release"},
		projects.KeyPriority: {"3"},
		projects.KeyOwner:    {"nobody"},
	}, &created)
	if status != http.StatusCreated {
		testContext.Fatalf("unexpected create status: %d", status)
	}
	if created.Task.Status == nil || *created.Task.Status != 0 {
		testContext.Fatalf("expected new task at rank 0, got %+v", created.Task)
	}
	if len(created.Warnings) != 1 || created.Warnings[0] != projects.OwnerNotUpdatedWarning {
		testContext.Fatalf("expected owner warning, got %v", created.Warnings)
	}
	taskPath := "/tasks/" + strconv.FormatUint(uint64(created.Task.ID), 10)

	var advanced taskResponse
	if status := stack.do(testContext, http.MethodPost, taskPath+"/advance", manager, nil, &advanced); status != http.StatusOK {
		testContext.Fatalf("unexpected advance status: %d", status)
	}
	if advanced.Status == nil || *advanced.Status != 1 || advanced.StartedOn == nil {
		testContext.Fatalf("expected rank 1 with started_on, got %+v", advanced)
	}

	var denied errorResponse
	if status := stack.do(testContext, http.MethodPost, taskPath+"/rollback", viewer, nil, &denied); status != http.StatusForbidden {
		testContext.Fatalf("expected forbidden rollback for viewer, got %d", status)
	}
	if denied.Code != "projects.rollback_status.permission_denied" {
		testContext.Fatalf("unexpected error code %q", denied.Code)
	}

	var edited struct {
		Task taskResponse `json:"task"`
	}
	status = stack.do(testContext, http.MethodPost, taskPath+"/edit", manager, url.Values{
		projects.KeyTitle: {"Ship release 1.0"},
		projects.KeyOwner: {"viewer"},
	}, &edited)
	if status != http.StatusOK {
		testContext.Fatalf("unexpected edit status: %d", status)
	}
	if edited.Task.Title != "Ship release 1.0" || edited.Task.OwnerID == nil {
		testContext.Fatalf("expected title and owner to change, got %+v", edited.Task)
	}

	if status := stack.do(testContext, http.MethodPost, taskPath+"/notes", manager, url.Values{projects.KeyNote: {"Tagged rc1"}}, nil); status != http.StatusCreated {
		testContext.Fatalf("unexpected note status: %d", status)
	}

	var details struct {
		Task   taskResponse `json:"task"`
		Status *struct {
			Name string `json:"name"`
		} `json:"status"`
		Notes   []struct{ Text string } `json:"notes"`
		History []struct {
			Field    string `json:"field"`
			NewValue string `json:"new_value"`
		} `json:"history"`
	}
	if status := stack.do(testContext, http.MethodGet, taskPath, viewer, nil, &details); status != http.StatusOK {
		testContext.Fatalf("unexpected details status: %d", status)
	}
	if details.Status == nil || details.Status.Name != "In progress" {
		testContext.Fatalf("expected In progress status, got %+v", details.Status)
	}
	if len(details.Notes) != 1 || details.Notes[0].Text != "Tagged rc1" {
		testContext.Fatalf("unexpected notes %+v", details.Notes)
	}
	fields := make(map[string]int)
	for _, event := range details.History {
		fields[event.Field]++
	}
	if fields["status"] != 2 || fields["started_on"] != 1 || fields["title"] != 1 || fields["owner"] != 1 {
		testContext.Fatalf("unexpected history %+v", details.History)
	}

	var index struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if status := stack.do(testContext, http.MethodGet, "/tasks", manager, nil, &index); status != http.StatusOK {
		testContext.Fatalf("unexpected index status: %d", status)
	}
	if len(index.Tasks) != 0 {
		testContext.Fatalf("expected task owned by viewer to be hidden from manager, got %+v", index.Tasks)
	}
}

func TestTaskRoutesRequireSession(testContext *testing.T) {
	stack := newTestStack(testContext)

	var response errorResponse
	if status := stack.do(testContext, http.MethodGet, "/tasks", nil, nil, &response); status != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized, got %d", status)
	}
	if response.Error != "unauthorized" {
		testContext.Fatalf("unexpected error body %+v", response)
	}
}

func TestTaskErrorMapping(testContext *testing.T) {
	stack := newTestStack(testContext)
	manager := stack.session(testContext, "user-manager", "manager", users.RoleSuperuser)

	var response errorResponse
	if status := stack.do(testContext, http.MethodGet, "/tasks/999", manager, nil, &response); status != http.StatusNotFound {
		testContext.Fatalf("expected not found, got %d", status)
	}
	if response.Code != "projects.task_details.task_lookup_failed" {
		testContext.Fatalf("unexpected code %q", response.Code)
	}

	if status := stack.do(testContext, http.MethodPost, "/tasks", manager, url.Values{projects.KeyTitle: {""}}, &response); status != http.StatusBadRequest {
		testContext.Fatalf("expected bad request, got %d", status)
	}

	if status := stack.do(testContext, http.MethodPost, "/tasks/abc/advance", manager, nil, &response); status != http.StatusBadRequest {
		testContext.Fatalf("expected bad request for malformed id, got %d", status)
	}
	if response.Error != "invalid_id" {
		testContext.Fatalf("unexpected error body %+v", response)
	}
}

func TestBlogFlow(testContext *testing.T) {
	stack := newTestStack(testContext)
	author := stack.session(testContext, "user-author", "author", string(users.CapabilityAddEntry), string(users.CapabilityChangeEntry))
	reader := stack.session(testContext, "user-reader", "reader", string(users.CapabilityAddComment))

	var entry struct {
		ID    uint   `json:"id"`
		Title string `json:"title"`
	}
	status := stack.do(testContext, http.MethodPost, "/blog/entries", author, url.Values{
		blog.KeyTitle: {"Hello"},
		blog.KeyBody:  {"First post"},
	}, &entry)
	if status != http.StatusCreated {
		testContext.Fatalf("unexpected create status: %d", status)
	}
	entryPath := "/blog/entries/" + strconv.FormatUint(uint64(entry.ID), 10)

	if status := stack.do(testContext, http.MethodPost, "/blog/entries", reader, url.Values{blog.KeyTitle: {"Nope"}}, nil); status != http.StatusForbidden {
		testContext.Fatalf("expected forbidden create for reader, got %d", status)
	}

	if status := stack.do(testContext, http.MethodPost, entryPath+"/edit", author, url.Values{blog.KeyTitle: {"Hello, world"}}, nil); status != http.StatusOK {
		testContext.Fatalf("unexpected edit status: %d", status)
	}
	if status := stack.do(testContext, http.MethodPost, entryPath+"/comments", reader, url.Values{blog.KeyComment: {"Welcome!"}}, nil); status != http.StatusCreated {
		testContext.Fatalf("unexpected comment status: %d", status)
	}

	var details struct {
		Entry struct {
			Title string `json:"title"`
		} `json:"entry"`
		Comments []struct {
			Body string `json:"body"`
		} `json:"comments"`
		Edits []struct {
			OldTitle string `json:"old_title"`
		} `json:"edits"`
		History []struct {
			Field string `json:"field"`
		} `json:"history"`
	}
	if status := stack.do(testContext, http.MethodGet, entryPath, nil, nil, &details); status != http.StatusOK {
		testContext.Fatalf("unexpected public details status: %d", status)
	}
	if details.Entry.Title != "Hello, world" {
		testContext.Fatalf("unexpected title %q", details.Entry.Title)
	}
	if len(details.Comments) != 1 || details.Comments[0].Body != "Welcome!" {
		testContext.Fatalf("unexpected comments %+v", details.Comments)
	}
	if len(details.Edits) != 1 || details.Edits[0].OldTitle != "Hello" {
		testContext.Fatalf("unexpected edits %+v", details.Edits)
	}
	if len(details.History) != 2 || details.History[1].Field != "title" {
		testContext.Fatalf("unexpected history %+v", details.History)
	}

	var listing struct {
		Entries []struct {
			ID uint `json:"id"`
		} `json:"entries"`
	}
	if status := stack.do(testContext, http.MethodGet, "/blog/entries", nil, nil, &listing); status != http.StatusOK {
		testContext.Fatalf("unexpected listing status: %d", status)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].ID != entry.ID {
		testContext.Fatalf("unexpected listing %+v", listing.Entries)
	}

	if status := stack.do(testContext, http.MethodGet, "/blog/entries/404", nil, nil, nil); status != http.StatusNotFound {
		testContext.Fatalf("expected not found entry, got %d", status)
	}
}
