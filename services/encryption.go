package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

const (
	pbkdf2Iterations = 210_000
	keyLength        = 32
	saltLength       = 16
	saltFileName     = "credential.salt"
)

// EncryptionService encrypts credential values at rest with AES-256-GCM.
// The key is derived from the configured password via PBKDF2; the salt is
// generated once and persisted next to the data so the key is stable across
// restarts.
type EncryptionService struct {
	gcm cipher.AEAD
}

func NewEncryptionService(password, dataDir string) (*EncryptionService, error) {
	if password == "" {
		return nil, utils.NewDomainError(utils.KindValidation, "encryption password cannot be empty")
	}

	salt, err := loadOrCreateSalt(dataDir)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to init GCM", err)
	}

	return &EncryptionService{gcm: gcm}, nil
}

func loadOrCreateSalt(dataDir string) ([]byte, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to create data dir", err)
	}

	saltPath := filepath.Join(dataDir, saltFileName)
	if salt, err := os.ReadFile(saltPath); err == nil {
		if len(salt) != saltLength {
			return nil, utils.NewDomainError(utils.KindDataIntegrity,
				fmt.Sprintf("salt file %s is corrupt (%d bytes)", saltPath, len(salt)))
		}
		return salt, nil
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to generate salt", err)
	}
	if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to persist salt", err)
	}
	return salt, nil
}

// Encrypt seals a plaintext value to base64(nonce || ciphertext).
func (s *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", utils.WrapDomainError(utils.KindInfrastructure, "failed to generate nonce", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values that are not valid base64 or fail
// authentication return a DataIntegrity error; callers use that to detect
// legacy plaintext values.
func (s *EncryptionService) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", utils.WrapDomainError(utils.KindDataIntegrity, "value is not encrypted", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", utils.NewDomainError(utils.KindDataIntegrity, "ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", utils.WrapDomainError(utils.KindDataIntegrity, "failed to decrypt value", err)
	}
	return string(plaintext), nil
}

// EncryptCookies encrypts every cookie value, leaving names readable.
func (s *EncryptionService) EncryptCookies(cookies map[string]string) (map[string]string, error) {
	encrypted := make(map[string]string, len(cookies))
	for name, value := range cookies {
		sealed, err := s.Encrypt(value)
		if err != nil {
			return nil, err
		}
		encrypted[name] = sealed
	}
	return encrypted, nil
}

func (s *EncryptionService) DecryptCookies(cookies map[string]string) (map[string]string, error) {
	decrypted := make(map[string]string, len(cookies))
	for name, value := range cookies {
		plain, err := s.Decrypt(value)
		if err != nil {
			return nil, err
		}
		decrypted[name] = plain
	}
	return decrypted, nil
}

// EncryptCredentials seals the full credential set: every cookie value and
// the api_user identifier. An empty api_user stays empty.
func (s *EncryptionService) EncryptCredentials(creds models.Credentials) (models.Credentials, error) {
	cookies, err := s.EncryptCookies(creds.Cookies)
	if err != nil {
		return models.Credentials{}, err
	}
	apiUser := ""
	if creds.APIUser != "" {
		if apiUser, err = s.Encrypt(creds.APIUser); err != nil {
			return models.Credentials{}, err
		}
	}
	return models.Credentials{Cookies: cookies, APIUser: apiUser}, nil
}

// DecryptCredentials reverses EncryptCredentials.
func (s *EncryptionService) DecryptCredentials(creds models.Credentials) (models.Credentials, error) {
	cookies, err := s.DecryptCookies(creds.Cookies)
	if err != nil {
		return models.Credentials{}, err
	}
	apiUser := ""
	if creds.APIUser != "" {
		if apiUser, err = s.Decrypt(creds.APIUser); err != nil {
			return models.Credentials{}, err
		}
	}
	return models.Credentials{Cookies: cookies, APIUser: apiUser}, nil
}

// MigrateUnencryptedAccounts re-encrypts any stored credential values that
// are still plaintext: cookie values and the api_user identifier. A value
// that decrypts cleanly is already encrypted and is left alone, so running
// the migration repeatedly is safe. A row that cannot be migrated is counted
// and logged; the scan continues with the remaining accounts.
func (s *EncryptionService) MigrateUnencryptedAccounts(ctx context.Context, accounts repository.AccountRepository) (migrated, failed int, err error) {
	docs, err := accounts.RawCredentialDocs(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, doc := range docs {
		changed, rowErr := s.migrateCredentialDoc(ctx, accounts, doc)
		if rowErr != nil {
			failed++
			logger.Error("failed to migrate account credentials", "account_id", doc.AccountID, "error", rowErr.Error())
			continue
		}
		if changed {
			migrated++
			logger.Info("migrated account credentials to encrypted storage", "account_id", doc.AccountID)
		}
	}

	return migrated, failed, nil
}

func (s *EncryptionService) migrateCredentialDoc(ctx context.Context, accounts repository.AccountRepository, doc repository.RawCredentialDoc) (bool, error) {
	needsMigration := false
	cookies := make(map[string]string, len(doc.Cookies))

	for name, value := range doc.Cookies {
		if _, err := s.Decrypt(value); err == nil {
			cookies[name] = value
			continue
		}
		// Decryption failed: treat as legacy plaintext and seal it.
		sealed, err := s.Encrypt(value)
		if err != nil {
			return false, err
		}
		cookies[name] = sealed
		needsMigration = true
	}

	apiUser := doc.APIUser
	if apiUser != "" {
		if _, err := s.Decrypt(apiUser); err != nil {
			sealed, err := s.Encrypt(apiUser)
			if err != nil {
				return false, err
			}
			apiUser = sealed
			needsMigration = true
		}
	}

	if !needsMigration {
		return false, nil
	}
	if err := accounts.UpdateRawCredentials(ctx, doc.AccountID, cookies, apiUser); err != nil {
		return false, err
	}
	return true, nil
}
