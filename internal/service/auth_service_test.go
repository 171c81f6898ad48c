package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/velora-app/accounts/internal/domain"
	"github.com/velora-app/accounts/internal/platform/token"
	"github.com/velora-app/accounts/internal/service"
	"github.com/velora-app/accounts/pkg/config"
)

// ---------- Mocks ----------

type mockUserRepo struct {
	nextID int64
	users  map[int64]*domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{nextID: 1, users: make(map[int64]*domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		ID:           m.nextID,
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.nextID++
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindVerifiedByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Phone == phone && u.PhoneVerified {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindVerifiedByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email && u.EmailVerified {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) MarkPhoneVerified(_ context.Context, userID int64) error {
	u, ok := m.users[userID]
	if !ok {
		return errors.New("no rows")
	}
	u.PhoneVerified = true
	return nil
}

func (m *mockUserRepo) MarkEmailVerified(_ context.Context, userID int64) error {
	u, ok := m.users[userID]
	if !ok {
		return errors.New("no rows")
	}
	u.EmailVerified = true
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	u, ok := m.users[userID]
	if !ok {
		return errors.New("no rows")
	}
	u.PasswordHash = passwordHash
	return nil
}

type mockOTPRepo struct {
	nextID int64
	otps   map[int64]*domain.OTP
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{nextID: 1, otps: make(map[int64]*domain.OTP)}
}

func (m *mockOTPRepo) Create(_ context.Context, userID int64, code string, purpose domain.OTPPurpose, expiresAt time.Time) error {
	o := &domain.OTP{
		ID:        m.nextID,
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.otps[o.ID] = o
	return nil
}

func (m *mockOTPRepo) Find(_ context.Context, userID int64, code string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	for _, o := range m.otps {
		if o.UserID == userID && o.Code == code && o.Purpose == purpose {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockOTPRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.otps[id]; !ok {
		return errors.New("no rows")
	}
	delete(m.otps, id)
	return nil
}

// latestCode returns the most recently stored code for a user and purpose.
func (m *mockOTPRepo) latestCode(userID int64, purpose domain.OTPPurpose) string {
	var best *domain.OTP
	for _, o := range m.otps {
		if o.UserID == userID && o.Purpose == purpose {
			if best == nil || o.ID > best.ID {
				best = o
			}
		}
	}
	if best == nil {
		return ""
	}
	return best.Code
}

type mockHasher struct{}

func (mockHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (mockHasher) Verify(password, hash string) (bool, error) {
	return hash == "hashed:"+password, nil
}

type mockSMS struct {
	lastTo   string
	lastBody string
	sent     int
	sendErr  error
}

func (m *mockSMS) SendSMS(_ context.Context, phone, message string) error {
	m.lastTo = phone
	m.lastBody = message
	m.sent++
	return m.sendErr
}

type mockMailer struct {
	lastTo  string
	lastURL string
	sent    int
	sendErr error
}

func (m *mockMailer) SendVerificationEmail(_ context.Context, toEmail, toName, verifyURL string) error {
	m.lastTo = toEmail
	m.lastURL = verifyURL
	m.sent++
	return m.sendErr
}

// ---------- Test Setup ----------

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{BaseURL: "http://localhost:8080"},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			SessionTokenTTL: 24 * time.Hour,
			EmailTokenTTL:   24 * time.Hour,
			OTPTTL:          5 * time.Minute,
		},
	}
}

type fixture struct {
	svc      service.AuthService
	userRepo *mockUserRepo
	otpRepo  *mockOTPRepo
	sms      *mockSMS
	mailer   *mockMailer
	signer   *token.Signer
}

func setup() *fixture {
	cfg := testConfig()
	userRepo := newMockUserRepo()
	otpRepo := newMockOTPRepo()
	sms := &mockSMS{}
	mailer := &mockMailer{}
	signer := token.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenTTL, cfg.Auth.EmailTokenTTL)

	svc := service.NewAuthService(userRepo, otpRepo, signer, mockHasher{}, sms, mailer, cfg)
	return &fixture{svc: svc, userRepo: userRepo, otpRepo: otpRepo, sms: sms, mailer: mailer, signer: signer}
}

func registerReq(phone, email string) *domain.RegisterRequest {
	return &domain.RegisterRequest{
		FullName: "Test User",
		Email:    email,
		Phone:    phone,
		Password: "Abcdefgh123!",
	}
}

// ---------- Tests ----------

func TestRegister_Success_SendsOTPAndEmail(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if user.PhoneVerified || user.EmailVerified {
		t.Fatal("New user must start unverified")
	}
	if user.PasswordHash == "Abcdefgh123!" || user.PasswordHash == "" {
		t.Fatal("Password must be stored hashed")
	}

	if f.sms.sent != 1 || f.sms.lastTo != "+1555" {
		t.Fatalf("Expected one OTP SMS to +1555, got %d to %q", f.sms.sent, f.sms.lastTo)
	}
	code := f.otpRepo.latestCode(user.ID, domain.OTPPhoneVerification)
	if code == "" {
		t.Fatal("No OTP stored")
	}
	if !strings.Contains(f.sms.lastBody, code) {
		t.Fatalf("SMS %q does not carry the stored code %q", f.sms.lastBody, code)
	}

	if f.mailer.sent != 1 || f.mailer.lastTo != "a@example.com" {
		t.Fatalf("Expected one verification email, got %d to %q", f.mailer.sent, f.mailer.lastTo)
	}
	if !strings.Contains(f.mailer.lastURL, "/auth/verify-email?token=") {
		t.Fatalf("Unexpected verification URL: %q", f.mailer.lastURL)
	}
}

func TestRegister_VerifiedPhoneTaken_Conflict(t *testing.T) {
	f := setup()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Unverified duplicate is allowed.
	if _, err := f.svc.Register(ctx, registerReq("+1555", "b@example.com")); err != nil {
		t.Fatalf("Unverified duplicate phone should register, got %v", err)
	}

	// Verify the first user's phone, then the same phone must conflict.
	code := f.otpRepo.latestCode(first.ID, domain.OTPPhoneVerification)
	if err := f.svc.VerifyPhone(ctx, first.ID, code); err != nil {
		t.Fatalf("VerifyPhone failed: %v", err)
	}

	if _, err := f.svc.Register(ctx, registerReq("+1555", "c@example.com")); !errors.Is(err, domain.ErrPhoneTaken) {
		t.Fatalf("Expected ErrPhoneTaken, got %v", err)
	}
}

func TestRegister_VerifiedEmailTaken_Conflict(t *testing.T) {
	f := setup()
	ctx := context.Background()

	first, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	emailToken, err := f.signer.NewEmailToken(first.ID, first.Email)
	if err != nil {
		t.Fatalf("NewEmailToken failed: %v", err)
	}
	if _, err := f.svc.VerifyEmail(ctx, emailToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if _, err := f.svc.Register(ctx, registerReq("+1666", "a@example.com")); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestRegister_SMSFailure_DoesNotFailRegistration(t *testing.T) {
	f := setup()
	f.sms.sendErr = errors.New("carrier down")
	f.mailer.sendErr = errors.New("smtp down")

	if _, err := f.svc.Register(context.Background(), registerReq("+1555", "a@example.com")); err != nil {
		t.Fatalf("Notification failures must not surface, got %v", err)
	}
}

func TestVerifyPhone_OTPUsableExactlyOnce(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	code := f.otpRepo.latestCode(user.ID, domain.OTPPhoneVerification)

	if err := f.svc.VerifyPhone(ctx, user.ID, code); err != nil {
		t.Fatalf("First verification failed: %v", err)
	}

	stored, _ := f.userRepo.FindByID(ctx, user.ID)
	if !stored.PhoneVerified {
		t.Fatal("phoneVerified not set")
	}
	if len(f.otpRepo.otps) != 0 {
		t.Fatal("Consumed OTP must be deleted")
	}

	// Replay of the same code fails as invalid.
	if err := f.svc.VerifyPhone(ctx, user.ID, code); !errors.Is(err, domain.ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP on replay, got %v", err)
	}
}

func TestVerifyPhone_WrongCode_Invalid(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.svc.VerifyPhone(ctx, user.ID, "000000"); !errors.Is(err, domain.ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP, got %v", err)
	}
}

func TestVerifyPhone_Expired_RecordRetained(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Age the stored OTP past its expiry.
	var code string
	for _, o := range f.otpRepo.otps {
		o.ExpiresAt = time.Now().Add(-time.Minute)
		code = o.Code
	}

	if err := f.svc.VerifyPhone(ctx, user.ID, code); !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("Expected ErrOTPExpired, got %v", err)
	}
	if len(f.otpRepo.otps) != 1 {
		t.Fatal("Expired OTP must stay in place until external cleanup")
	}

	stored, _ := f.userRepo.FindByID(ctx, user.ID)
	if stored.PhoneVerified {
		t.Fatal("Expired code must not verify the phone")
	}
}

func TestVerifyEmail_Idempotent(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	emailToken, err := f.signer.NewEmailToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("NewEmailToken failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		verified, err := f.svc.VerifyEmail(ctx, emailToken)
		if err != nil {
			t.Fatalf("VerifyEmail call %d failed: %v", i+1, err)
		}
		if !verified.EmailVerified {
			t.Fatalf("emailVerified false after call %d", i+1)
		}
	}
}

func TestVerifyEmail_BadToken(t *testing.T) {
	f := setup()

	if _, err := f.svc.VerifyEmail(context.Background(), "not-a-jwt"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyEmail_UserGone(t *testing.T) {
	f := setup()

	emailToken, err := f.signer.NewEmailToken(42, "ghost@example.com")
	if err != nil {
		t.Fatalf("NewEmailToken failed: %v", err)
	}

	if _, err := f.svc.VerifyEmail(context.Background(), emailToken); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestLogin_UnknownPhoneAndWrongPassword_SameError(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	code := f.otpRepo.latestCode(user.ID, domain.OTPPhoneVerification)
	if err := f.svc.VerifyPhone(ctx, user.ID, code); err != nil {
		t.Fatalf("VerifyPhone failed: %v", err)
	}

	_, errUnknown := f.svc.Login(ctx, &domain.LoginRequest{Phone: "+9999", Password: "Abcdefgh123!"})
	_, errWrongPw := f.svc.Login(ctx, &domain.LoginRequest{Phone: "+1555", Password: "wrong-password"})

	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) || !errors.Is(errWrongPw, domain.ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("Messages differ: %q vs %q", errUnknown, errWrongPw)
	}
}

func TestLogin_UnverifiedPhone_Blocked(t *testing.T) {
	f := setup()
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Correct password, unverified phone.
	if _, err := f.svc.Login(ctx, &domain.LoginRequest{Phone: "+1555", Password: "Abcdefgh123!"}); !errors.Is(err, domain.ErrPhoneNotVerified) {
		t.Fatalf("Expected ErrPhoneNotVerified, got %v", err)
	}
}

func TestLogin_FullLifecycle(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	code := f.otpRepo.latestCode(user.ID, domain.OTPPhoneVerification)
	if err := f.svc.VerifyPhone(ctx, user.ID, code); err != nil {
		t.Fatalf("VerifyPhone failed: %v", err)
	}

	resp, err := f.svc.Login(ctx, &domain.LoginRequest{Phone: "+1555", Password: "Abcdefgh123!"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := f.signer.ParseSessionToken(resp.Token)
	if err != nil {
		t.Fatalf("Session token does not parse: %v", err)
	}
	if claims.Sub != user.ID {
		t.Fatalf("Token sub = %d, want %d", claims.Sub, user.ID)
	}

	if resp.User == nil || !resp.User.PhoneVerified || resp.User.Email != "a@example.com" {
		t.Fatalf("Unexpected user summary: %+v", resp.User)
	}
}

func TestForgotPassword_UnknownPhone_NotFound(t *testing.T) {
	f := setup()

	if err := f.svc.ForgotPasswordRequest(context.Background(), "+9999"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestForgotPassword_WrongCode_PasswordUnchanged(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	originalHash := f.userRepo.users[user.ID].PasswordHash

	if err := f.svc.ForgotPasswordRequest(ctx, "+1555"); err != nil {
		t.Fatalf("ForgotPasswordRequest failed: %v", err)
	}
	if f.otpRepo.latestCode(user.ID, domain.OTPForgotPassword) == "" {
		t.Fatal("No reset OTP stored")
	}

	err = f.svc.ForgotPasswordReset(ctx, &domain.ResetPasswordRequest{
		Phone:       "+1555",
		OTP:         "999999",
		NewPassword: "Newpassword123!",
	})
	if !errors.Is(err, domain.ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP, got %v", err)
	}

	if f.userRepo.users[user.ID].PasswordHash != originalHash {
		t.Fatal("Password must not change on invalid OTP")
	}
}

func TestForgotPassword_Reset_Success(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.svc.ForgotPasswordRequest(ctx, "+1555"); err != nil {
		t.Fatalf("ForgotPasswordRequest failed: %v", err)
	}
	code := f.otpRepo.latestCode(user.ID, domain.OTPForgotPassword)

	err = f.svc.ForgotPasswordReset(ctx, &domain.ResetPasswordRequest{
		Phone:       "+1555",
		OTP:         code,
		NewPassword: "Newpassword123!",
	})
	if err != nil {
		t.Fatalf("ForgotPasswordReset failed: %v", err)
	}

	if f.userRepo.users[user.ID].PasswordHash != "hashed:Newpassword123!" {
		t.Fatal("Password not replaced")
	}
	if f.otpRepo.latestCode(user.ID, domain.OTPForgotPassword) != "" {
		t.Fatal("Consumed reset OTP must be deleted")
	}
}

func TestForgotPassword_ResetOTPDoesNotVerifyPhone(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.svc.ForgotPasswordRequest(ctx, "+1555"); err != nil {
		t.Fatalf("ForgotPasswordRequest failed: %v", err)
	}
	resetCode := f.otpRepo.latestCode(user.ID, domain.OTPForgotPassword)

	// A reset code must not work in the phone verification flow.
	if err := f.svc.VerifyPhone(ctx, user.ID, resetCode); !errors.Is(err, domain.ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP for cross-purpose code, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, user, "wrong-old", "Newpassword123!"); !errors.Is(err, domain.ErrIncorrectPassword) {
		t.Fatalf("Expected ErrIncorrectPassword, got %v", err)
	}

	if err := f.svc.ChangePassword(ctx, user, "Abcdefgh123!", "Newpassword123!"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if f.userRepo.users[user.ID].PasswordHash != "hashed:Newpassword123!" {
		t.Fatal("Password not replaced")
	}
}

func TestResendPhoneOTP(t *testing.T) {
	f := setup()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, registerReq("+1555", "a@example.com"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.svc.ResendPhoneOTP(ctx, "+9999"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}

	if err := f.svc.ResendPhoneOTP(ctx, "+1555"); err != nil {
		t.Fatalf("ResendPhoneOTP failed: %v", err)
	}
	if f.sms.sent != 2 {
		t.Fatalf("Expected 2 SMS sends, got %d", f.sms.sent)
	}

	code := f.otpRepo.latestCode(user.ID, domain.OTPPhoneVerification)
	if err := f.svc.VerifyPhone(ctx, user.ID, code); err != nil {
		t.Fatalf("VerifyPhone with resent code failed: %v", err)
	}

	if err := f.svc.ResendPhoneOTP(ctx, "+1555"); !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Fatalf("Expected ErrAlreadyVerified, got %v", err)
	}
}
