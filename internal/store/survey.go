package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
)

// SurveyStore is an append-only record of onboarding feedback.
type SurveyStore struct {
	db *sql.DB
}

func NewSurveyStore(db *sql.DB) *SurveyStore {
	return &SurveyStore{db: db}
}

func (s *SurveyStore) Create(accountID int64, referral, useCase, comments string) (*model.SurveyResponse, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO survey_responses (account_id, referral, use_case, comments, created_at) VALUES (?, ?, ?, ?, ?)`,
		accountID, referral, useCase, comments, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert survey response: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.SurveyResponse{
		ID:        id,
		AccountID: accountID,
		Referral:  referral,
		UseCase:   useCase,
		Comments:  comments,
		CreatedAt: now,
	}, nil
}
