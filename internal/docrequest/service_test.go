package docrequest

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/docman/internal/model"
)

// --- モック ---

type mockRequestRepo struct {
	reqs     map[string]*model.DocumentRequest
	listFn   func(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error)
	statsFn  func(ctx context.Context, userID string) (*model.DocumentRequestStats, error)
	createFn func(ctx context.Context, req *model.DocumentRequest) error
}

func newMockRequestRepo(reqs ...*model.DocumentRequest) *mockRequestRepo {
	m := &mockRequestRepo{reqs: map[string]*model.DocumentRequest{}}
	for _, r := range reqs {
		m.reqs[r.ID] = r
	}
	return m
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	if r, ok := m.reqs[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}
func (m *mockRequestRepo) ListByUser(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, documentType, page)
	}
	return nil, nil
}
func (m *mockRequestRepo) Stats(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.DocumentRequestStats{}, nil
}
func (m *mockRequestRepo) Create(ctx context.Context, req *model.DocumentRequest) error {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	m.reqs[req.ID] = req
	return nil
}
func (m *mockRequestRepo) UpdateFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error) {
	r, ok := m.reqs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.reqs[id] = &cp
	return &cp, nil
}
func (m *mockRequestRepo) DeleteFunc(ctx context.Context, id string, fn func(*model.DocumentRequest) error) (*model.DocumentRequest, error) {
	r, ok := m.reqs[id]
	if !ok {
		return nil, nil
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	delete(m.reqs, id)
	return r, nil
}

type mockGenerator struct {
	generateFn func(ctx context.Context, documentType string, input map[string]any) string
	calls      []string
}

func (m *mockGenerator) GenerateContent(ctx context.Context, documentType string, input map[string]any) string {
	m.calls = append(m.calls, documentType)
	if m.generateFn != nil {
		return m.generateFn(ctx, documentType, input)
	}
	return "generated " + documentType
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

// TestService_Create は作成時の検証と既定値を検証する。
func TestService_Create(t *testing.T) {
	repo := newMockRequestRepo()
	svc := NewService(repo, &mockGenerator{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CreateInput{DocumentType: "  "})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)

	req, err := svc.Create(ctx, "user-1", CreateInput{DocumentType: " cv "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.DocumentType != "cv" || req.UserID != "user-1" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.InputData == nil {
		t.Error("InputData should default to an empty object")
	}
	if _, ok := repo.reqs[req.ID]; !ok {
		t.Error("request was not stored")
	}
}

// TestService_Create_RepoError はリポジトリエラーがAPIErrorにならないことを検証する。
func TestService_Create_RepoError(t *testing.T) {
	repo := newMockRequestRepo()
	repo.createFn = func(ctx context.Context, req *model.DocumentRequest) error {
		return errors.New("db down")
	}
	svc := NewService(repo, &mockGenerator{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{DocumentType: "cv"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("expected infrastructure error, got %v", apiErr)
	}
}

// TestService_List は種別フィルタがリポジトリに渡ることを検証する。
func TestService_List(t *testing.T) {
	var gotUser, gotType string
	repo := newMockRequestRepo()
	repo.listFn = func(ctx context.Context, userID, documentType string, page model.Page) ([]*model.DocumentRequest, error) {
		gotUser, gotType = userID, documentType
		return []*model.DocumentRequest{{ID: "r-1"}}, nil
	}
	svc := NewService(repo, &mockGenerator{})

	reqs, err := svc.List(context.Background(), "user-1", " objective ", model.NewPage(0, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 || gotUser != "user-1" || gotType != "objective" {
		t.Errorf("List = %v (user=%q type=%q)", reqs, gotUser, gotType)
	}
}

// TestService_OwnerChecks は存在確認の後に所有者判定を行うことを検証する。
func TestService_OwnerChecks(t *testing.T) {
	repo := newMockRequestRepo(&model.DocumentRequest{
		ID:           "r-1",
		UserID:       "user-1",
		DocumentType: "cv",
		InputData:    map[string]any{"name": "Ann"},
	})
	svc := NewService(repo, &mockGenerator{})
	ctx := context.Background()
	docType := "objective"

	// NotFoundは要求者に関係なく優先される
	_, err := svc.Get(ctx, "user-2", "missing")
	assertAPIErrorCode(t, err, model.ErrCodeDocumentRequestNotFound)
	_, err = svc.Update(ctx, "user-2", "missing", model.DocumentRequestPatch{DocumentType: &docType})
	assertAPIErrorCode(t, err, model.ErrCodeDocumentRequestNotFound)
	assertAPIErrorCode(t, svc.Delete(ctx, "user-2", "missing"), model.ErrCodeDocumentRequestNotFound)

	_, err = svc.Get(ctx, "user-2", "r-1")
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
	_, err = svc.Update(ctx, "user-2", "r-1", model.DocumentRequestPatch{DocumentType: &docType})
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
	assertAPIErrorCode(t, svc.Delete(ctx, "user-2", "r-1"), model.ErrCodeForbidden)

	if repo.reqs["r-1"].DocumentType != "cv" {
		t.Error("forbidden update must not change the row")
	}

	got, err := svc.Get(ctx, "user-1", "r-1")
	if err != nil || got.ID != "r-1" {
		t.Fatalf("owner Get = %v, %v", got, err)
	}

	content := "done"
	updated, err := svc.Update(ctx, "user-1", "r-1", model.DocumentRequestPatch{
		DocumentType:     &docType,
		GeneratedContent: &content,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.DocumentType != "objective" || updated.GeneratedContent != "done" || updated.InputData["name"] != "Ann" {
		t.Errorf("unexpected request: %+v", updated)
	}

	if err := svc.Delete(ctx, "user-1", "r-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.reqs["r-1"]; ok {
		t.Error("request should be deleted")
	}
}

// TestService_Update_EmptyType は種別を空にする更新を拒否することを検証する。
func TestService_Update_EmptyType(t *testing.T) {
	repo := newMockRequestRepo(&model.DocumentRequest{ID: "r-1", UserID: "user-1", DocumentType: "cv"})
	svc := NewService(repo, &mockGenerator{})

	empty := " "
	_, err := svc.Update(context.Background(), "user-1", "r-1", model.DocumentRequestPatch{DocumentType: &empty})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}

// TestService_Stats は統計をそのまま返すことを検証する。
func TestService_Stats(t *testing.T) {
	repo := newMockRequestRepo()
	repo.statsFn = func(ctx context.Context, userID string) (*model.DocumentRequestStats, error) {
		return &model.DocumentRequestStats{TotalRequests: 3, RequestsByType: map[string]int{"cv": 2, "objective": 1}}, nil
	}
	svc := NewService(repo, &mockGenerator{})

	stats, err := svc.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalRequests != 3 || stats.RequestsByType["cv"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestService_Generate は生成結果が入力とともに返り、保存されないことを検証する。
func TestService_Generate(t *testing.T) {
	repo := newMockRequestRepo()
	gen := &mockGenerator{}
	svc := NewService(repo, gen)

	_, err := svc.Generate(context.Background(), "", nil)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
	if len(gen.calls) != 0 {
		t.Error("generator must not be called for invalid input")
	}

	res, err := svc.Generate(context.Background(), "objective", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DocumentType != "objective" || res.GeneratedContent != "generated objective" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.InputData == nil {
		t.Error("InputData should be an empty object")
	}
	if len(repo.reqs) != 0 {
		t.Error("generate must not persist a request")
	}
}

// TestService_Generate_FailureText は生成サービスの障害が本文の説明文として返ることを検証する。
func TestService_Generate_FailureText(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(ctx context.Context, documentType string, input map[string]any) string {
			return "Generation service timed out. Please try again later."
		},
	}
	svc := NewService(newMockRequestRepo(), gen)

	res, err := svc.Generate(context.Background(), "cv", map[string]any{"name": "Ann"})
	if err != nil {
		t.Fatalf("generation failures must not be errors: %v", err)
	}
	if res.GeneratedContent != "Generation service timed out. Please try again later." {
		t.Errorf("GeneratedContent = %q", res.GeneratedContent)
	}
}

// TestService_GenerateCV は種別cvで生成することを検証する。
func TestService_GenerateCV(t *testing.T) {
	gen := &mockGenerator{}
	svc := NewService(newMockRequestRepo(), gen)

	if got := svc.GenerateCV(context.Background(), nil); got != "generated cv" {
		t.Errorf("GenerateCV = %q", got)
	}
	if len(gen.calls) != 1 || gen.calls[0] != DocumentTypeCV {
		t.Errorf("calls = %v", gen.calls)
	}
}
