package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/biblioteca/internal/domain"
	"github.com/yourorg/biblioteca/internal/events"
	"github.com/yourorg/biblioteca/internal/ledger"
	"github.com/yourorg/biblioteca/internal/security"
	"github.com/yourorg/biblioteca/internal/security/auth"
	"github.com/yourorg/biblioteca/internal/security/middleware"
	"github.com/yourorg/biblioteca/internal/service"
	"github.com/yourorg/biblioteca/pkg/config"
)

type memBookRepo struct {
	mu    sync.Mutex
	books map[string]*domain.Book
}

func (m *memBookRepo) addBook(id string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[id] = &domain.Book{ID: id, Title: "title-" + id, TotalCopies: total, AvailableCopies: total}
}

func (m *memBookRepo) GetByID(_ context.Context, id string) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, domain.ErrBookNotFound
}

func (m *memBookRepo) Save(_ context.Context, b *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

func (m *memBookRepo) List(_ context.Context) ([]*domain.Book, error) {
	return m.ListAvailable(context.Background())
}

func (m *memBookRepo) ListAvailable(_ context.Context) ([]*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Book{}
	for _, b := range m.books {
		if b.AvailableCopies > 0 {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memBookRepo) ReserveCopy(_ context.Context, bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return false, domain.ErrBookNotFound
	}
	if b.AvailableCopies <= 0 {
		return false, nil
	}
	b.AvailableCopies--
	return true, nil
}

func (m *memBookRepo) ReleaseCopy(_ context.Context, bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return false, domain.ErrBookNotFound
	}
	if b.AvailableCopies >= b.TotalCopies {
		return false, nil
	}
	b.AvailableCopies++
	return true, nil
}

func (m *memBookRepo) SetTotalCopies(_ context.Context, bookID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	b.TotalCopies = total
	if b.AvailableCopies > total {
		b.AvailableCopies = total
	}
	return nil
}

func (m *memBookRepo) Counters(_ context.Context, bookID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return 0, 0, domain.ErrBookNotFound
	}
	return b.TotalCopies, b.AvailableCopies, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (m *memUserRepo) addUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &domain.User{ID: id, Name: "member-" + id, Email: id + "@example.com", IsActive: true}
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

type memLoanRepo struct {
	mu    sync.Mutex
	loans map[string]*domain.Loan
}

func (m *memLoanRepo) Create(_ context.Context, loan *domain.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *loan
	m.loans[loan.ID] = &copied
	return nil
}

func (m *memLoanRepo) GetByID(_ context.Context, id string) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loans[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, domain.ErrLoanNotFound
}

func (m *memLoanRepo) List(_ context.Context) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Loan{}
	for _, l := range m.loans {
		copied := *l
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memLoanRepo) ListByUser(_ context.Context, userID string) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Loan{}
	for _, l := range m.loans {
		if l.UserID == userID {
			copied := *l
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanDate.After(out[j].LoanDate) })
	return out, nil
}

func (m *memLoanRepo) ListOverdue(_ context.Context, now time.Time) ([]*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Loan{}
	for _, l := range m.loans {
		if l.ReturnDate == nil && now.After(l.DueDate) {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memLoanRepo) MarkReturned(_ context.Context, id string, returnedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok || l.ReturnDate != nil {
		return false, nil
	}
	l.ReturnDate = &returnedAt
	l.Status = domain.LoanStatusReturned
	return true, nil
}

func (m *memLoanRepo) MarkOverdue(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok || l.ReturnDate != nil || l.Status != domain.LoanStatusActive {
		return false, nil
	}
	l.Status = domain.LoanStatusOverdue
	return true, nil
}

func (m *memLoanRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[id]; !ok {
		return domain.ErrLoanNotFound
	}
	delete(m.loans, id)
	return nil
}

type testEnv struct {
	books *memBookRepo
	users *memUserRepo
	loans *memLoanRepo
	mux   *http.ServeMux
}

func newTestEnv() *testEnv {
	books := &memBookRepo{books: map[string]*domain.Book{}}
	users := &memUserRepo{users: map[string]*domain.User{}}
	loans := &memLoanRepo{loans: map[string]*domain.Loan{}}

	cfg := &config.Config{LoanPeriodDays: 14}
	lg := ledger.New(books, nil, time.Second)
	loanService := service.NewLoanService(lg, loans, books, users, events.NewBroadcaster(), nil, cfg)
	querySvc := service.NewLoanQueryService(loans, books, nil, nil)
	authorizer := security.NewAuthorizer()

	logger := slog.Default()
	checkoutHandler := NewCheckoutHandler(loanService, authorizer, logger)
	returnHandler := NewReturnHandler(loanService, querySvc, authorizer, logger)
	loansHandler := NewLoansHandler(querySvc, loanService, authorizer, logger)
	booksHandler := NewAvailableBooksHandler(querySvc, logger)
	inventoryHandler := NewInventoryHandler(lg, authorizer, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /api/checkout", checkoutHandler)
	mux.Handle("POST /api/loans/{id}/return", returnHandler)
	mux.HandleFunc("GET /api/loans", loansHandler.List)
	mux.HandleFunc("GET /api/loans/overdue", loansHandler.Overdue)
	mux.HandleFunc("GET /api/loans/{id}", loansHandler.GetByID)
	mux.HandleFunc("DELETE /api/loans/{id}", loansHandler.Delete)
	mux.HandleFunc("GET /api/users/{id}/loans", loansHandler.ByUser)
	mux.Handle("GET /api/books/available", booksHandler)
	mux.Handle("PUT /api/books/{id}/copies", inventoryHandler)

	return &testEnv{books: books, users: users, loans: loans, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path, body string, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.ClaimsContextKey{}, claims))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) checkout(t *testing.T, bookID, userID string) LoanResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/checkout", `{"bookId":"`+bookID+`","userId":"`+userID+`"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}
	var loan LoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &loan); err != nil {
		t.Fatalf("bad checkout body: %v", err)
	}
	return loan
}

func TestCheckoutEndpoint(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.users.addUser("u1")

	loan := env.checkout(t, "b1", "u1")
	if loan.Status != "ACTIVE" || loan.BookID != "b1" || loan.UserID != "u1" {
		t.Fatalf("unexpected loan: %+v", loan)
	}

	// Second checkout of the only copy conflicts
	rec := env.do(t, http.MethodPost, "/api/checkout", `{"bookId":"b1","userId":"u1"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCheckoutValidation(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name string
		body string
	}{
		{"missing book", `{"userId":"u1"}`},
		{"missing member", `{"bookId":"b1"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/api/checkout", tc.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestCheckoutUnknownBook(t *testing.T) {
	env := newTestEnv()
	env.users.addUser("u1")

	rec := env.do(t, http.MethodPost, "/api/checkout", `{"bookId":"nope","userId":"u1"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckoutForbiddenForOtherMember(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.users.addUser("u1")

	claims := &auth.Claims{UserID: "u2", Role: auth.RoleMember}
	rec := env.do(t, http.MethodPost, "/api/checkout", `{"bookId":"b1","userId":"u1"}`, claims)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReturnEndpoint(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.users.addUser("u1")
	loan := env.checkout(t, "b1", "u1")

	rec := env.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return returned %d: %s", rec.Code, rec.Body.String())
	}
	var returned LoanResponse
	json.Unmarshal(rec.Body.Bytes(), &returned)
	if returned.Status != "RETURNED" || returned.ReturnDate == nil {
		t.Fatalf("unexpected returned loan: %+v", returned)
	}

	// Double return conflicts
	rec = env.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double return, got %d", rec.Code)
	}
}

func TestReturnUnknownLoan(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPost, "/api/loans/nope/return", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReturnForbiddenForOtherMember(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.users.addUser("u1")
	loan := env.checkout(t, "b1", "u1")

	claims := &auth.Claims{UserID: "u2", Role: auth.RoleMember}
	rec := env.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", "", claims)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// A librarian may return on any member's behalf
	claims = &auth.Claims{UserID: "staff", Role: auth.RoleLibrarian}
	rec = env.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", "", claims)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for librarian, got %d", rec.Code)
	}
}

func TestLoanReadEndpoints(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 2)
	env.users.addUser("u1")
	loan := env.checkout(t, "b1", "u1")

	rec := env.do(t, http.MethodGet, "/api/loans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	var listBody struct {
		Loans []LoanResponse `json:"loans"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listBody)
	if len(listBody.Loans) != 1 {
		t.Fatalf("expected 1 loan, got %d", len(listBody.Loans))
	}

	rec = env.do(t, http.MethodGet, "/api/loans/"+loan.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/loans/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/users/u1/loans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("user loans returned %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &listBody)
	if len(listBody.Loans) != 1 {
		t.Fatalf("expected 1 user loan, got %d", len(listBody.Loans))
	}

	// Nothing overdue yet
	rec = env.do(t, http.MethodGet, "/api/loans/overdue", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overdue returned %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &listBody)
	if len(listBody.Loans) != 0 {
		t.Fatalf("expected 0 overdue, got %d", len(listBody.Loans))
	}
}

func TestViewOtherMembersLoansForbidden(t *testing.T) {
	env := newTestEnv()
	claims := &auth.Claims{UserID: "u2", Role: auth.RoleMember}
	rec := env.do(t, http.MethodGet, "/api/users/u1/loans", "", claims)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestDeleteLoanRequiresLibrarian(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.users.addUser("u1")
	loan := env.checkout(t, "b1", "u1")

	rec := env.do(t, http.MethodDelete, "/api/loans/"+loan.ID, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without claims, got %d", rec.Code)
	}

	claims := &auth.Claims{UserID: "u1", Role: auth.RoleMember}
	rec = env.do(t, http.MethodDelete, "/api/loans/"+loan.ID, "", claims)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rec.Code)
	}

	claims = &auth.Claims{UserID: "staff", Role: auth.RoleLibrarian}
	rec = env.do(t, http.MethodDelete, "/api/loans/"+loan.ID, "", claims)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for librarian, got %d", rec.Code)
	}
}

func TestAdjustCopiesEndpoint(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 3)
	env.users.addUser("u1")

	// Two copies out; shrinking to 1 clamps available to the new total
	env.checkout(t, "b1", "u1")
	env.checkout(t, "b1", "u1")

	rec := env.do(t, http.MethodPut, "/api/books/b1/copies", `{"totalCopies":1}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without claims, got %d", rec.Code)
	}

	claims := &auth.Claims{UserID: "staff", Role: auth.RoleLibrarian}
	rec = env.do(t, http.MethodPut, "/api/books/b1/copies", `{"totalCopies":1}`, claims)
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust returned %d: %s", rec.Code, rec.Body.String())
	}
	var counters map[string]int
	json.Unmarshal(rec.Body.Bytes(), &counters)
	if counters["totalCopies"] != 1 || counters["availableCopies"] != 1 {
		t.Fatalf("unexpected counters: %+v", counters)
	}

	rec = env.do(t, http.MethodPut, "/api/books/b1/copies", `{"totalCopies":-2}`, claims)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative total, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/books/nope/copies", `{"totalCopies":1}`, claims)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown book, got %d", rec.Code)
	}
}

func TestAvailableBooksEndpoint(t *testing.T) {
	env := newTestEnv()
	env.books.addBook("b1", 1)
	env.books.addBook("b2", 1)
	env.users.addUser("u1")

	// Borrow the only copy of b1 so it drops off the listing
	env.checkout(t, "b1", "u1")

	rec := env.do(t, http.MethodGet, "/api/books/available", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available returned %d", rec.Code)
	}
	var body struct {
		Books []BookResponse `json:"books"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Books) != 1 || body.Books[0].ID != "b2" {
		t.Fatalf("expected only b2 available, got %+v", body.Books)
	}
}
