package service

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/oauth2"
)

// TokenStore persists per-user Google Calendar OAuth tokens. Tokens are
// credentials, so they live in Secret Manager rather than Postgres.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	DeleteToken(ctx context.Context, userID string) error
}

type secretTokenStore struct {
	client    *secretmanager.Client
	projectID string
}

// NewTokenStore creates a Secret Manager backed token store.
func NewTokenStore(ctx context.Context, cfg *config.Config) (TokenStore, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP project ID is not set")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretTokenStore{
		client:    client,
		projectID: cfg.GCPProjectID,
	}, nil
}

func (s *secretTokenStore) secretName(userID string) string {
	return fmt.Sprintf("user-%s-calendar-token", userID)
}

func (s *secretTokenStore) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	secretName := s.secretName(userID)
	secretPath := fmt.Sprintf("projects/%s/secrets/%s", s.projectID, secretName)

	secretExists := true
	_, err = s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{
		Name: secretPath,
	})
	if err != nil {
		secretExists = false
	}

	if !secretExists {
		createReq := &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", s.projectID),
			SecretId: secretName,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		}
		if _, err := s.client.CreateSecret(ctx, createReq); err != nil {
			return fmt.Errorf("failed to create secret: %w", err)
		}
	}

	addVersionReq := &secretmanagerpb.AddSecretVersionRequest{
		Parent: secretPath,
		Payload: &secretmanagerpb.SecretPayload{
			Data: data,
		},
	}
	if _, err := s.client.AddSecretVersion(ctx, addVersionReq); err != nil {
		return fmt.Errorf("failed to add secret version: %w", err)
	}

	return nil
}

func (s *secretTokenStore) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, s.secretName(userID))

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(result.Payload.Data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *secretTokenStore) DeleteToken(ctx context.Context, userID string) error {
	secretPath := fmt.Sprintf("projects/%s/secrets/%s", s.projectID, s.secretName(userID))

	if err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{
		Name: secretPath,
	}); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
