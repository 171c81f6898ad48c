package service

import (
	"context"
	"fmt"
	"time"

	"github.com/velora-app/accounts/internal/domain"
	"github.com/velora-app/accounts/internal/notify"
	"github.com/velora-app/accounts/internal/platform/otp"
	"github.com/velora-app/accounts/internal/platform/token"
	"github.com/velora-app/accounts/internal/repository"
	"github.com/velora-app/accounts/pkg/config"
	"github.com/velora-app/accounts/pkg/logger"
)

// AuthService owns the credential and verification lifecycle: how an account
// moves between unverified and verified states, and which codes and tokens
// gate each transition.
type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	VerifyPhone(ctx context.Context, userID int64, code string) error
	VerifyEmail(ctx context.Context, tokenString string) (*domain.User, error)
	ResendPhoneOTP(ctx context.Context, phone string) error
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	ForgotPasswordRequest(ctx context.Context, phone string) error
	ForgotPasswordReset(ctx context.Context, req *domain.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, user *domain.User, oldPassword, newPassword string) error
}

type authService struct {
	userRepo repository.UserRepository
	otpRepo  repository.OTPRepository
	signer   *token.Signer
	hasher   domain.PasswordHasher
	sms      notify.SMSSender
	mailer   notify.EmailSender
	config   *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	otpRepo repository.OTPRepository,
	signer *token.Signer,
	hasher domain.PasswordHasher,
	sms notify.SMSSender,
	mailer notify.EmailSender,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo: userRepo,
		otpRepo:  otpRepo,
		signer:   signer,
		hasher:   hasher,
		sms:      sms,
		mailer:   mailer,
		config:   config,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	// Uniqueness is enforced only among verified users. An unverified
	// registration does not reserve the phone or email.
	phoneTaken, err := s.userRepo.FindVerifiedByPhone(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("check phone taken: %w", err)
	}
	if phoneTaken != nil {
		return nil, domain.ErrPhoneTaken
	}

	emailTaken, err := s.userRepo.FindVerifiedByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email taken: %w", err)
	}
	if emailTaken != nil {
		return nil, domain.ErrEmailTaken
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.issueOTP(ctx, user, domain.OTPPhoneVerification, "Your OTP code is: %s"); err != nil {
		return nil, err
	}

	emailToken, err := s.signer.NewEmailToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign email token: %w", err)
	}

	verifyURL := fmt.Sprintf("%s/auth/verify-email?token=%s", s.config.App.BaseURL, emailToken)
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, user.FullName, verifyURL); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "user_id", user.ID)
		// Don't fail registration if email fails
	}

	return user, nil
}

func (s *authService) VerifyPhone(ctx context.Context, userID int64, code string) error {
	record, err := s.otpRepo.Find(ctx, userID, code, domain.OTPPhoneVerification)
	if err != nil {
		return fmt.Errorf("find otp: %w", err)
	}
	if record == nil {
		return domain.ErrInvalidOTP
	}

	// Expired records stay in place until external cleanup.
	if record.Expired(time.Now()) {
		return domain.ErrOTPExpired
	}

	if err := s.userRepo.MarkPhoneVerified(ctx, userID); err != nil {
		return fmt.Errorf("mark phone verified: %w", err)
	}

	// The verified flag is authoritative; a failed delete only leaves a
	// consumable-looking code behind until it expires.
	if err := s.otpRepo.Delete(ctx, record.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete consumed OTP", "error", err, "otp_id", record.ID, "user_id", userID)
	}

	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.signer.ParseEmailToken(tokenString)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	// Idempotent: a second valid verification is a no-op success.
	if !user.EmailVerified {
		if err := s.userRepo.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("mark email verified: %w", err)
		}
		user.EmailVerified = true
	}

	return user, nil
}

func (s *authService) ResendPhoneOTP(ctx context.Context, phone string) error {
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	if user.PhoneVerified {
		return domain.ErrAlreadyVerified
	}

	return s.issueOTP(ctx, user, domain.OTPPhoneVerification, "Your OTP code is: %s")
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := s.userRepo.FindByPhone(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, domain.ErrInvalidCredentials
	}

	// Email verification does not gate login; phone verification does.
	if !user.PhoneVerified {
		return nil, domain.ErrPhoneNotVerified
	}

	sessionToken, err := s.signer.NewSessionToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &domain.LoginResponse{
		Token:     sessionToken,
		ExpiresIn: int64(s.config.Auth.SessionTokenTTL.Seconds()),
		User:      user.ToUserInfo(),
	}, nil
}

func (s *authService) ForgotPasswordRequest(ctx context.Context, phone string) error {
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	return s.issueOTP(ctx, user, domain.OTPForgotPassword, "Your password reset OTP is: %s")
}

func (s *authService) ForgotPasswordReset(ctx context.Context, req *domain.ResetPasswordRequest) error {
	user, err := s.userRepo.FindByPhone(ctx, req.Phone)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	record, err := s.otpRepo.Find(ctx, user.ID, req.OTP, domain.OTPForgotPassword)
	if err != nil {
		return fmt.Errorf("find otp: %w", err)
	}
	if record == nil {
		return domain.ErrInvalidOTP
	}
	if record.Expired(time.Now()) {
		return domain.ErrOTPExpired
	}

	if err := user.SetPassword(req.NewPassword, s.hasher); err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, user.PasswordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.otpRepo.Delete(ctx, record.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete consumed OTP", "error", err, "otp_id", record.ID, "user_id", user.ID)
	}

	return nil
}

func (s *authService) ChangePassword(ctx context.Context, user *domain.User, oldPassword, newPassword string) error {
	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return domain.ErrIncorrectPassword
	}

	if err := user.SetPassword(newPassword, s.hasher); err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, user.PasswordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// issueOTP persists a fresh code and texts it to the user. SMS delivery is
// best-effort; a stored code the user never received simply expires.
func (s *authService) issueOTP(ctx context.Context, user *domain.User, purpose domain.OTPPurpose, messageFormat string) error {
	code, err := otp.Generate()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.config.Auth.OTPTTL)
	if err := s.otpRepo.Create(ctx, user.ID, code, purpose, expiresAt); err != nil {
		return fmt.Errorf("create otp: %w", err)
	}

	if err := s.sms.SendSMS(ctx, user.Phone, fmt.Sprintf(messageFormat, code)); err != nil {
		logger.ErrorContext(ctx, "Failed to send OTP SMS", "error", err, "user_id", user.ID, "purpose", purpose)
	}

	return nil
}
