package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/authn"
	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
	"github.com/pribylovaa/identity-service/internal/token"
)

// RegisterInput — данные для регистрации.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Lastname string
	// Buyer — роль покупателя; иначе пользователь регистрируется инвестором.
	Buyer bool
}

// AuthResult — пользователь и выданная ему пара токенов.
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

// RegisterUser регистрирует нового пользователя, сразу открывает сессию
// и ставит в очередь письмо со ссылкой активации.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	const op = "service.auth.RegisterUser"
	defer func() { s.metrics.Operation("register", outcome(err)) }()

	normEmail, err := validateEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, found, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if found {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	roleName := s.cfg.InvestorRole
	if in.Buyer {
		roleName = s.cfg.BuyerRole
	}

	role, found, err := s.storage.RoleByName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		log.From(ctx).Error("role_not_found",
			slog.String("op", op),
			slog.String("role", roleName),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrRoleNotFound)
	}

	hashedPassword, err := s.auth.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.New()
	pair, err := s.issuePair(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:               id,
		Email:            normEmail,
		PasswordHash:     hashedPassword,
		Name:             strings.TrimSpace(in.Name),
		Lastname:         strings.TrimSpace(in.Lastname),
		Role:             *role,
		RefreshTokenHash: token.Fingerprint(pair.RefreshToken),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("user_id", id.String()),
		slog.String("email", redact.Email(normEmail)),
		slog.String("role", role.Name),
	)

	s.notifier.NotifyActivation(ctx, normEmail, user.Name)

	return &AuthResult{User: user, Tokens: pair}, nil
}

// LoginUser выполняет вход по email+пароль и заменяет текущую сессию новой.
// Неизвестный email и неверный пароль неотличимы для клиента.
func (s *Service) LoginUser(ctx context.Context, email, password string) (res *AuthResult, err error) {
	const op = "service.auth.LoginUser"
	defer func() { s.metrics.Operation("login", outcome(err)) }()

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.auth.Authenticate(ctx, normEmail, password); err != nil {
		if errors.Is(err, authn.ErrBadCredentials) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, found, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	if s.cfg.RequireActivation && !user.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotActive)
	}

	pair, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &AuthResult{User: user, Tokens: pair}, nil
}

// CheckSession выдаёт новую пару токенов пользователю, чей access-токен
// уже проверен транспортом. Предыдущий refresh-токен перестаёт действовать.
func (s *Service) CheckSession(ctx context.Context, userID uuid.UUID) (res *AuthResult, err error) {
	const op = "service.auth.CheckSession"
	defer func() { s.metrics.Operation("check_session", outcome(err)) }()

	user, found, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	pair, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &AuthResult{User: user, Tokens: pair}, nil
}

// UserByID возвращает профиль пользователя.
func (s *Service) UserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.UserByID"

	user, found, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	return user, nil
}

// startSession выпускает пару и безусловно привязывает новый refresh-токен к пользователю.
func (s *Service) startSession(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.auth.startSession"

	pair, err := s.issuePair(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SetRefreshToken(ctx, userID, token.Fingerprint(pair.RefreshToken)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// issuePair выпускает access+refresh токены для субъекта, ничего не сохраняя.
func (s *Service) issuePair(userID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.auth.issuePair"

	access, err := s.codec.Issue(userID.String(), token.KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := s.codec.Issue(userID.String(), token.KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.TokenIssued(string(token.KindAccess))
	s.metrics.TokenIssued(string(token.KindRefresh))

	return &models.TokenPair{
		AccessToken:      access.Raw,
		RefreshToken:     refresh.Raw,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// validateEmail проверяет базовый формат email, обрезает пробелы и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// maxPasswordBytes — предел bcrypt: более длинный пароль не хэшируется.
const maxPasswordBytes = 72

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8 символов и <= 72 байт, хотя бы одна строчная,
// заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 || len(pw) > maxPasswordBytes {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// parseSubject разбирает subject токена в UUID пользователя.
func parseSubject(t *token.Token) (uuid.UUID, bool) {
	id, err := uuid.Parse(t.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}

	return id, true
}
