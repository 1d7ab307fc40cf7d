package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"migrant-health-access/backend/internal/accessgrant/domain"
	"migrant-health-access/backend/internal/clock"
	recorddomain "migrant-health-access/backend/internal/healthrecord/domain"
	migrantdomain "migrant-health-access/backend/internal/migrant/domain"
	"migrant-health-access/backend/internal/policy/engine"
	"migrant-health-access/backend/internal/security"
)

// memRequestRepo is an in-memory request repository with the same conditional
// transition semantics as the Postgres implementation.
type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.Request
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[string]*domain.Request)}
}

func (r *memRequestRepo) Create(ctx context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memRequestRepo) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r *memRequestRepo) TransitionFromPending(ctx context.Context, id string, to domain.Status, verifiedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.StatusPending {
		return false, nil
	}
	req.Status = to
	req.VerifiedAt = verifiedAt
	return true, nil
}

func (r *memRequestRepo) IncrementAttempts(ctx context.Context, id string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.StatusPending {
		return 0, false, nil
	}
	req.Attempts++
	return req.Attempts, true, nil
}

func (r *memRequestRepo) LatestGranted(ctx context.Context, migrantID, requesterID string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Request
	for _, req := range r.requests {
		if req.MigrantID != migrantID || req.RequesterID != requesterID {
			continue
		}
		if req.Status != domain.StatusGranted || req.VerifiedAt == nil {
			continue
		}
		if latest == nil || req.VerifiedAt.After(*latest.VerifiedAt) {
			latest = req
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memRequestRepo) CountPending(ctx context.Context, migrantID, requesterID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.MigrantID == migrantID && req.RequesterID == requesterID && req.Status == domain.StatusPending {
			n++
		}
	}
	return n, nil
}

type fakeMigrantRepo struct {
	migrants map[string]*migrantdomain.Migrant
}

func (f *fakeMigrantRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*migrantdomain.Migrant, error) {
	return f.migrants[uniqueID], nil
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records []*recorddomain.Record
	calls   int
}

func (f *fakeRecordRepo) ListByMigrant(ctx context.Context, migrantID string) ([]*recorddomain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, nil
}

func (f *fakeRecordRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePolicy struct {
	result engine.ConsentResult
	err    error
}

func (f *fakePolicy) EvaluateConsent(ctx context.Context, requesterRole string) (engine.ConsentResult, error) {
	return f.result, f.err
}

type fakeSender struct {
	mu      sync.Mutex
	phones  []string
	lastOTP string
	err     error
}

func (f *fakeSender) SendOTP(phone, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.phones = append(f.phones, phone)
	f.lastOTP = otp
	return nil
}

type fakeDevStore struct {
	otps map[string]string
}

func (f *fakeDevStore) Put(ctx context.Context, requestID, otp string, expiresAt time.Time) {
	f.otps[requestID] = otp
}

type testEnv struct {
	svc      *Service
	requests *memRequestRepo
	migrants *fakeMigrantRepo
	records  *fakeRecordRepo
	policy   *fakePolicy
	sender   *fakeSender
	dev      *fakeDevStore
	clk      *clock.Fixed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		requests: newMemRequestRepo(),
		migrants: &fakeMigrantRepo{migrants: map[string]*migrantdomain.Migrant{
			"MIG-001": {ID: "m-1", UniqueID: "MIG-001", Name: "Amina", Phone: "+94771234567"},
		}},
		records: &fakeRecordRepo{},
		policy: &fakePolicy{result: engine.ConsentResult{
			AllowRequest:      true,
			MaxVerifyAttempts: 5,
			MaxPendingPerPair: 3,
			GrantValidMinutes: 1440,
		}},
		sender: &fakeSender{},
		dev:    &fakeDevStore{otps: make(map[string]string)},
		clk:    clock.NewFixed(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)),
	}
	env.svc = NewService(env.requests, env.migrants, env.records, env.policy,
		env.sender, env.dev, nil, nil, 5*time.Minute, env.clk)
	return env
}

func (e *testEnv) requestAccess(t *testing.T) *RequestAccessResult {
	t.Helper()
	res, err := e.svc.RequestAccess(context.Background(), "req-1", "clinician", "MIG-001")
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	return res
}

func TestRequestAccess_Success(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)

	if res.RequestID == "" {
		t.Fatal("expected request id")
	}
	if !res.Delivered {
		t.Error("expected delivered")
	}
	wantExpiry := env.clk.Now().Add(5 * time.Minute)
	if !res.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires at = %v, want %v", res.ExpiresAt, wantExpiry)
	}

	req, _ := env.requests.GetByID(context.Background(), res.RequestID)
	if req == nil {
		t.Fatal("request not persisted")
	}
	if req.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", req.Status)
	}
	if req.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", req.Attempts)
	}
	if req.VerifiedAt != nil {
		t.Error("verified at should be unset")
	}

	if len(env.sender.phones) != 1 || env.sender.phones[0] != "+94771234567" {
		t.Errorf("sms sent to %v, want migrant phone", env.sender.phones)
	}
	otp := env.sender.lastOTP
	if len(otp) != 6 {
		t.Fatalf("otp %q should be 6 digits", otp)
	}
	if req.CodeHash != security.HashOTP(otp) {
		t.Error("stored hash does not match sent otp")
	}
	if req.CodeHash == otp {
		t.Error("otp must not be stored in plain form")
	}
	if env.dev.otps[res.RequestID] != otp {
		t.Error("dev store should hold the plain otp")
	}
}

func TestRequestAccess_UnknownMigrant(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RequestAccess(context.Background(), "req-1", "clinician", "MIG-404")
	if !errors.Is(err, ErrMigrantNotFound) {
		t.Fatalf("err = %v, want ErrMigrantNotFound", err)
	}
	if len(env.sender.phones) != 0 {
		t.Error("no sms should be sent for unknown migrant")
	}
}

func TestRequestAccess_RoleNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.policy.result.AllowRequest = false

	_, err := env.svc.RequestAccess(context.Background(), "req-1", "receptionist", "MIG-001")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("err = %v, want ErrNotAllowed", err)
	}
	if len(env.sender.phones) != 0 {
		t.Error("no sms should be sent when policy refuses")
	}
	if n, _ := env.requests.CountPending(context.Background(), "MIG-001", "req-1"); n != 0 {
		t.Error("no request should be persisted when policy refuses")
	}
}

func TestRequestAccess_PendingCap(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.requestAccess(t)
	}
	_, err := env.svc.RequestAccess(context.Background(), "req-1", "clinician", "MIG-001")
	if !errors.Is(err, ErrTooManyPending) {
		t.Fatalf("err = %v, want ErrTooManyPending", err)
	}
}

func TestRequestAccess_EmptyInput(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.RequestAccess(context.Background(), "req-1", "clinician", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRequestAccess_DeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sender.err = errors.New("gateway timeout")

	res, err := env.svc.RequestAccess(context.Background(), "req-1", "clinician", "MIG-001")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if res == nil || res.RequestID == "" {
		t.Fatal("result with request id expected despite delivery failure")
	}
	if res.Delivered {
		t.Error("delivered should be false")
	}
	// The request outlives the failed delivery so the code can be re-sent
	// or verified out-of-band.
	req, _ := env.requests.GetByID(context.Background(), res.RequestID)
	if req == nil || req.Status != domain.StatusPending {
		t.Error("request should stay pending after delivery failure")
	}
}

func TestVerifyOTP_Success(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)

	if err := env.svc.VerifyOTP(context.Background(), "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	req, _ := env.requests.GetByID(context.Background(), res.RequestID)
	if req.Status != domain.StatusGranted {
		t.Errorf("status = %q, want granted", req.Status)
	}
	if req.VerifiedAt == nil || !req.VerifiedAt.Equal(env.clk.Now()) {
		t.Errorf("verified at = %v, want %v", req.VerifiedAt, env.clk.Now())
	}
}

func TestVerifyOTP_WrongThenCorrect(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, "000000")
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: err = %v, want ErrCodeMismatch", i+1, err)
		}
	}
	req, _ := env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending after 3 mismatches", req.Status)
	}
	if req.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", req.Attempts)
	}

	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("correct code after mismatches: %v", err)
	}
	req, _ = env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusGranted {
		t.Errorf("status = %q, want granted", req.Status)
	}
}

func TestVerifyOTP_AttemptThresholdDenies(t *testing.T) {
	env := newTestEnv(t)
	env.policy.result.MaxVerifyAttempts = 2
	res := env.requestAccess(t)
	ctx := context.Background()

	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("err = %v, want ErrCodeMismatch", err)
	}
	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, "000000"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("err = %v, want ErrTooManyAttempts", err)
	}

	req, _ := env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusDenied {
		t.Errorf("status = %q, want denied", req.Status)
	}
	// Denied is terminal; the correct code no longer helps.
	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestVerifyOTP_ExpiredBeforeCompare(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)
	ctx := context.Background()

	env.clk.Advance(5 * time.Minute)

	// Correct code, but too late: the expiry check runs first and the
	// request durably records the expiry.
	err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
	req, _ := env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusExpired {
		t.Fatalf("status = %q, want expired", req.Status)
	}

	// A retry sees the terminal state, not expiry again.
	err = env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestVerifyOTP_ExpiryBoundaryInclusive(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)

	env.clk.Set(res.ExpiresAt)

	err := env.svc.VerifyOTP(context.Background(), "req-1", "clinician", res.RequestID, env.sender.lastOTP)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err at exact expiry = %v, want ErrCodeExpired", err)
	}
}

func TestVerifyOTP_AlreadyGranted(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)
	ctx := context.Background()

	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	// Single use: the same code cannot grant twice.
	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestVerifyOTP_UnknownOrForeignRequest(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)
	ctx := context.Background()

	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", "no-such-id", "123456"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
	// Another requester cannot verify someone else's request.
	if err := env.svc.VerifyOTP(ctx, "req-2", "clinician", res.RequestID, env.sender.lastOTP); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestVerifyOTP_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	res := env.requestAccess(t)
	otp := env.sender.lastOTP
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, otp)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidState):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	req, _ := env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusGranted {
		t.Errorf("status = %q, want granted", req.Status)
	}
}

func TestIsAccessGranted_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	granted, err := env.svc.IsAccessGranted(ctx, "req-1", "clinician", "MIG-001")
	if err != nil {
		t.Fatalf("IsAccessGranted: %v", err)
	}
	if granted {
		t.Fatal("no grant yet")
	}

	res := env.requestAccess(t)
	if granted, _ = env.svc.IsAccessGranted(ctx, "req-1", "clinician", "MIG-001"); granted {
		t.Fatal("pending request must not authorize")
	}

	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if granted, _ = env.svc.IsAccessGranted(ctx, "req-1", "clinician", "MIG-001"); !granted {
		t.Fatal("grant expected after verification")
	}

	// The validity window from the policy lapses the grant without any
	// stored state changing.
	env.clk.Advance(24 * time.Hour)
	if granted, _ = env.svc.IsAccessGranted(ctx, "req-1", "clinician", "MIG-001"); granted {
		t.Fatal("grant should have lapsed after the validity window")
	}
	req, _ := env.requests.GetByID(ctx, res.RequestID)
	if req.Status != domain.StatusGranted {
		t.Errorf("status = %q, lapse must not rewrite the row", req.Status)
	}
}

func TestIsAccessGranted_PolicyDisallows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.requestAccess(t)
	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	env.policy.result.AllowRequest = false
	granted, err := env.svc.IsAccessGranted(ctx, "req-1", "clinician", "MIG-001")
	if err != nil {
		t.Fatalf("IsAccessGranted: %v", err)
	}
	if granted {
		t.Fatal("policy refusal must override an existing grant")
	}
}

func TestRecords_RequiresGrant(t *testing.T) {
	env := newTestEnv(t)
	env.records.records = []*recorddomain.Record{
		{ID: "r-2", MigrantID: "MIG-001", Title: "visit"},
		{ID: "r-1", MigrantID: "MIG-001", Title: "vaccination"},
	}
	ctx := context.Background()

	_, err := env.svc.Records(ctx, "req-1", "clinician", "MIG-001")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("err = %v, want ErrNotAllowed", err)
	}
	if env.records.callCount() != 0 {
		t.Fatal("record store must not be touched without a grant")
	}

	res := env.requestAccess(t)
	if err := env.svc.VerifyOTP(ctx, "req-1", "clinician", res.RequestID, env.sender.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	recs, err := env.svc.Records(ctx, "req-1", "clinician", "MIG-001")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "r-2" {
		t.Errorf("unexpected records: %+v", recs)
	}
	if env.records.callCount() != 1 {
		t.Errorf("record store calls = %d, want 1", env.records.callCount())
	}
}
