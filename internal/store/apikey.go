package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/gitscribe/gitscribe/internal/model"
)

// KeyPrefix is the structural prefix of every issued API key. Credentials
// without it are rejected before any storage lookup.
const KeyPrefix = "gsk_"

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func scanAPIKey(scanner interface{ Scan(...any) error }) (*model.APIKey, error) {
	var k model.APIKey
	var lastUsed sql.NullTime
	err := scanner.Scan(&k.ID, &k.AccountID, &k.Digest, &k.Label, &lastUsed, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return &k, nil
}

const apiKeyCols = `id, account_id, digest, label, last_used_at, created_at`

// Digest returns the stored form of a key secret. Only the SHA3-256 digest
// is persisted; the raw secret cannot be recovered from it.
func Digest(secret string) string {
	sum := sha3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HasKeyPrefix reports whether a presented credential is structurally an
// issued key.
func HasKeyPrefix(credential string) bool {
	return strings.HasPrefix(credential, KeyPrefix)
}

// Create issues a new key and returns it along with the raw secret. This is
// the only time the secret is available.
func (s *APIKeyStore) Create(accountID int64, label string) (*model.APIKey, string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	secret := KeyPrefix + hex.EncodeToString(b)

	result, err := s.db.Exec(
		`INSERT INTO api_keys (account_id, digest, label, created_at) VALUES (?, ?, ?, ?)`,
		accountID, Digest(secret), label, time.Now().UTC(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}
	k, err := s.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	return k, secret, nil
}

func (s *APIKeyStore) GetByID(id int64) (*model.APIKey, error) {
	row := s.db.QueryRow(`SELECT `+apiKeyCols+` FROM api_keys WHERE id = ?`, id)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

func (s *APIKeyStore) GetByDigest(digest string) (*model.APIKey, error) {
	row := s.db.QueryRow(`SELECT `+apiKeyCols+` FROM api_keys WHERE digest = ?`, digest)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by digest: %w", err)
	}
	return k, nil
}

func (s *APIKeyStore) ListByAccount(accountID int64) ([]*model.APIKey, error) {
	rows, err := s.db.Query(
		`SELECT `+apiKeyCols+` FROM api_keys WHERE account_id = ? ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *APIKeyStore) TouchLastUsed(id int64, now time.Time) error {
	_, err := s.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// Delete removes a key, scoped to its owner. Returns true if a row was
// deleted.
func (s *APIKeyStore) Delete(id, accountID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM api_keys WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
