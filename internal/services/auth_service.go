package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pokebank/backend/internal/config"
	"golang.org/x/crypto/argon2"
)

// AuthService handles registration, login and logout. Registration creates the
// user together with a zero-balance account in one transaction.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	cfg       *config.Config
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"ash@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"ash@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
	FullName string `json:"fullName" validate:"required,min=2" example:"Ash Ketchum"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token         string `json:"token,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	AccountNumber string `json:"account_number"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a user and their zero-balance account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM users WHERE email = $1 LIMIT 1`, email).Scan(&existingID)
	if err == nil {
		SendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
		return
	}
	if err != sql.ErrNoRows {
		SendLedgerError(w, storageErr(err))
		return
	}

	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	userID := uuid.NewString()
	accountNumber := generateAccountNumber()

	tx, err := s.db.Begin()
	if err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO users (id, email, password_hash, full_name, account_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, email, hashedPassword, strings.TrimSpace(req.FullName), accountNumber, time.Now())
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", email, err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			SendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
			return
		}
		SendLedgerError(w, storageErr(err))
		return
	}

	// The account starts at zero; every later balance change goes through the
	// ledger.
	_, err = tx.Exec(`
		INSERT INTO accounts (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)`,
		uuid.NewString(), userID, time.Now())
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		SendLedgerError(w, storageErr(err))
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %s, Email: %s", userID, email)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{
		UserID:        userID,
		Email:         email,
		AccountNumber: accountNumber,
	})
}

// Login handles user authentication
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var userID, hashedPassword, accountNumber string
	err := s.db.QueryRow(`
		SELECT id, password_hash, account_number
		FROM users
		WHERE email = $1
		LIMIT 1`, email).Scan(&userID, &hashedPassword, &accountNumber)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !s.verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	expiresAt := time.Now().Add(time.Duration(s.cfg.JWTExpiryMinutes) * time.Minute)
	token, err := s.generateJWT(userID, expiresAt)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token:         token,
		ExpiresAt:     expiresAt.UTC().Format(time.RFC3339),
		UserID:        userID,
		Email:         email,
		AccountNumber: accountNumber,
	})
}

// Logout handles user logout
// @Summary Logout user
// @Description Blacklist the presented token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(s.cfg.JWTExpiryMinutes) * time.Minute
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

func (s *AuthService) generateJWT(userID string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     expiresAt.Unix(),
	})

	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, s.cfg.Argon2.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		s.cfg.Argon2.Time,
		s.cfg.Argon2.Memory,
		s.cfg.Argon2.Threads,
		s.cfg.Argon2.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		s.cfg.Argon2.Time,
		s.cfg.Argon2.Memory,
		s.cfg.Argon2.Threads,
		s.cfg.Argon2.KeyLength)
	return string(hash) == string(computedHash)
}

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return "PK-" + string(b)
}
