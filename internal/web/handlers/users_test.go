package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/facematch"
	"github.com/kozaktomas/facepass/internal/identity"
)

// fakeIdentity records calls and returns canned results
type fakeIdentity struct {
	registered identity.Registration
	users      map[int64]*database.User
	approved   []int64
	removed    []int64
	listStatus string
	updated    identity.UserUpdate
	err        error
	verify     facematch.MatchResult
	verifyOK   bool
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: map[int64]*database.User{
		7: {ID: 7, Name: "Maria Silva", Email: "maria@example.com", Approved: true, HasFace: true},
	}}
}

func (f *fakeIdentity) RegisterUser(ctx context.Context, reg identity.Registration) (*database.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = reg
	return &database.User{ID: 8, Name: reg.Name, Email: reg.Email, CPF: reg.CPF}, nil
}

func (f *fakeIdentity) GetUser(ctx context.Context, id int64) (*database.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, id int64, upd identity.UserUpdate) (*database.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	f.updated = upd
	cp := *u
	cp.Name, cp.Email, cp.CPF, cp.Position, cp.Approved = upd.Name, upd.Email, upd.CPF, upd.Position, upd.Approved
	return &cp, nil
}

func (f *fakeIdentity) RegistrationStatus(ctx context.Context, email string) (*identity.RegistrationStatus, error) {
	for _, u := range f.users {
		if u.Email == email {
			return &identity.RegistrationStatus{Name: u.Name, Email: u.Email, Approved: u.Approved, Status: identity.StatusApproved}, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeIdentity) ListUsers(ctx context.Context, status string) ([]database.User, error) {
	f.listStatus = status
	if f.err != nil {
		return nil, f.err
	}
	var out []database.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeIdentity) Approve(ctx context.Context, id int64) error {
	if _, err := f.GetUser(ctx, id); err != nil {
		return err
	}
	f.approved = append(f.approved, id)
	return nil
}

func (f *fakeIdentity) Remove(ctx context.Context, id int64) error {
	if _, err := f.GetUser(ctx, id); err != nil {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIdentity) EnrollFace(ctx context.Context, userID int64, photo []byte) (*descriptor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &descriptor.Result{Descriptor: make([]float32, 128), FacesFound: 1, Model: "buffalo_l"}, nil
}

func (f *fakeIdentity) VerifyFace(ctx context.Context, userID int64, photo []byte) (facematch.MatchResult, bool, error) {
	if f.err != nil {
		return facematch.MatchResult{}, false, f.err
	}
	return f.verify, f.verifyOK, nil
}

func TestUsersHandler_Register(t *testing.T) {
	svc := newFakeIdentity()
	handler := NewUsersHandler(svc)

	req := multipartRequest(t, "POST", "/api/v1/users", map[string]string{
		"name":     "João Souza",
		"email":    "joao@example.com",
		"cpf":      "123.456.789-09",
		"position": "Analyst",
	}, "photo", []byte("jpeg-bytes"))
	recorder := httptest.NewRecorder()

	handler.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	if svc.registered.Name != "João Souza" || svc.registered.CPF != "123.456.789-09" {
		t.Errorf("unexpected registration %+v", svc.registered)
	}
	if string(svc.registered.Photo) != "jpeg-bytes" {
		t.Errorf("photo = %q, want %q", svc.registered.Photo, "jpeg-bytes")
	}
}

func TestUsersHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		file   string
		status int
	}{
		{"missing photo", nil, "", http.StatusBadRequest},
		{"validation", identity.ErrInvalidInput, "photo", http.StatusBadRequest},
		{"no face", identity.ErrNoFace, "photo", http.StatusUnprocessableEntity},
		{"duplicate email", identity.ErrEmailTaken, "photo", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeIdentity()
			svc.err = tt.err
			handler := NewUsersHandler(svc)

			req := multipartRequest(t, "POST", "/api/v1/users", map[string]string{"name": "X"}, tt.file, []byte("data"))
			recorder := httptest.NewRecorder()

			handler.Register(recorder, req)

			assertStatusCode(t, recorder, tt.status)
		})
	}
}

func TestUsersHandler_List(t *testing.T) {
	svc := newFakeIdentity()
	handler := NewUsersHandler(svc)

	req := httptest.NewRequest("GET", "/api/v1/users?status=pending", nil)
	recorder := httptest.NewRecorder()

	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if svc.listStatus != "pending" {
		t.Errorf("status filter = %q, want %q", svc.listStatus, "pending")
	}
	var users []database.User
	parseJSONResponse(t, recorder, &users)
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestUsersHandler_GetApproveDelete(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *UsersHandler, w http.ResponseWriter, r *http.Request)
		id      string
		status  int
		changed bool
	}{
		{"get", (*UsersHandler).Get, "7", http.StatusOK, false},
		{"get missing", (*UsersHandler).Get, "99", http.StatusNotFound, false},
		{"get bad id", (*UsersHandler).Get, "abc", http.StatusBadRequest, false},
		{"approve", (*UsersHandler).Approve, "7", http.StatusOK, true},
		{"approve missing", (*UsersHandler).Approve, "99", http.StatusNotFound, false},
		{"delete", (*UsersHandler).Delete, "7", http.StatusNoContent, true},
		{"delete missing", (*UsersHandler).Delete, "99", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUsersHandler(newFakeIdentity())
			changed := false
			handler.OnChange(func() { changed = true })
			req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/users/"+tt.id, nil), map[string]string{"id": tt.id})
			recorder := httptest.NewRecorder()

			tt.call(handler, recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if changed != tt.changed {
				t.Errorf("expected changed=%v, got %v", tt.changed, changed)
			}
		})
	}
}

func TestUsersHandler_Update(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		body    string
		err     error
		status  int
		changed bool
	}{
		{"updates", "7", `{"name":"Maria S. Silva","email":"maria@example.com","cpf":"12345678909","position":"Lead","approved":false}`, nil, http.StatusOK, true},
		{"missing user", "99", `{"name":"X"}`, nil, http.StatusNotFound, false},
		{"bad id", "abc", `{}`, nil, http.StatusBadRequest, false},
		{"bad body", "7", `{"name":`, nil, http.StatusBadRequest, false},
		{"validation", "7", `{}`, identity.ErrInvalidInput, http.StatusBadRequest, false},
		{"email taken", "7", `{}`, identity.ErrEmailTaken, http.StatusConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeIdentity()
			svc.err = tt.err
			handler := NewUsersHandler(svc)
			changed := false
			handler.OnChange(func() { changed = true })
			req := requestWithChiParams(httptest.NewRequest("PUT", "/api/v1/users/"+tt.id, strings.NewReader(tt.body)), map[string]string{"id": tt.id})
			recorder := httptest.NewRecorder()

			handler.Update(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if changed != tt.changed {
				t.Errorf("expected changed=%v, got %v", tt.changed, changed)
			}
		})
	}

	svc := newFakeIdentity()
	handler := NewUsersHandler(svc)
	body := `{"name":"Maria S. Silva","email":"maria@example.com","cpf":"12345678909","position":"Lead","approved":false}`
	req := requestWithChiParams(httptest.NewRequest("PUT", "/api/v1/users/7", strings.NewReader(body)), map[string]string{"id": "7"})
	recorder := httptest.NewRecorder()
	handler.Update(recorder, req)

	var user database.User
	parseJSONResponse(t, recorder, &user)
	if user.Name != "Maria S. Silva" || user.Approved {
		t.Errorf("unexpected user %+v", user)
	}
	if svc.updated.Position != "Lead" {
		t.Errorf("expected position Lead, got %q", svc.updated.Position)
	}
}

func TestUsersHandler_Status(t *testing.T) {
	handler := NewUsersHandler(newFakeIdentity())

	recorder := httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest("GET", "/api/v1/users/status?email=maria@example.com", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var status identity.RegistrationStatus
	parseJSONResponse(t, recorder, &status)
	if status.Name != "Maria Silva" || !status.Approved || status.Status != identity.StatusApproved {
		t.Errorf("unexpected status %+v", status)
	}

	recorder = httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest("GET", "/api/v1/users/status?email=nobody@example.com", nil))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestUsersHandler_EnrollFace(t *testing.T) {
	handler := NewUsersHandler(newFakeIdentity())

	req := multipartRequest(t, "PUT", "/api/v1/users/7/face", nil, "photo", []byte("jpeg"))
	req = requestWithChiParams(req, map[string]string{"id": "7"})
	recorder := httptest.NewRecorder()

	handler.EnrollFace(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp EnrollResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.UserID != 7 || resp.FacesFound != 1 || resp.Model != "buffalo_l" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestUsersHandler_Verify(t *testing.T) {
	tests := []struct {
		name      string
		ok        bool
		err       error
		status    int
		wantMatch bool
	}{
		{"match", true, nil, http.StatusOK, true},
		{"no match", false, nil, http.StatusOK, false},
		{"not enrolled", false, identity.ErrNotEnrolled, http.StatusConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeIdentity()
			svc.verify = facematch.MatchResult{IdentityID: 7, Distance: 0.3, Confidence: 0.7}
			svc.verifyOK = tt.ok
			svc.err = tt.err
			handler := NewUsersHandler(svc)

			req := multipartRequest(t, "POST", "/api/v1/users/7/verify", nil, "image", []byte("jpeg"))
			req = requestWithChiParams(req, map[string]string{"id": "7"})
			recorder := httptest.NewRecorder()

			handler.Verify(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var resp VerifyResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Match != tt.wantMatch {
				t.Errorf("match = %v, want %v", resp.Match, tt.wantMatch)
			}
			if resp.Distance != 0.3 {
				t.Errorf("distance = %v, want 0.3", resp.Distance)
			}
		})
	}
}
