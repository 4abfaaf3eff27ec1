package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/floehq/floe/internal/provider"
)

type SecretConfig struct {
	Name                       string            `json:"name"`
	Description                string            `json:"description"`
	KmsKeyID                   string            `json:"kms_key_id"`
	RecoveryWindowDays         *int32            `json:"recovery_window_in_days"`
	ForceDeleteWithoutRecovery bool              `json:"force_delete_without_recovery"`
	Tags                       map[string]string `json:"tags"`
}

type SecretState struct {
	// ID mirrors the ARN so references work with either attribute.
	ID                         string `json:"id"`
	ARN                        string `json:"arn"`
	Name                       string `json:"name"`
	RecoveryWindowDays         *int32 `json:"recovery_window_in_days,omitempty"`
	ForceDeleteWithoutRecovery bool   `json:"force_delete_without_recovery,omitempty"`
}

func (p *Provider) applySecret(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SecretConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var state SecretState
	if req.PriorJSON == nil {
		input := &secretsmanager.CreateSecretInput{
			Name: &desired.Name,
			Tags: secretTags(desired.Tags),
		}
		if desired.Description != "" {
			input.Description = &desired.Description
		}
		if desired.KmsKeyID != "" {
			input.KmsKeyId = &desired.KmsKeyID
		}

		resp, err := p.secretsmanagerClient.CreateSecret(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret: %w", err)
		}
		state.ARN = derefStr(resp.ARN)
		state.Name = derefStr(resp.Name)
	} else {
		var prior SecretState
		if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		state = prior

		input := &secretsmanager.UpdateSecretInput{
			SecretId: &prior.ARN,
		}
		if desired.Description != "" {
			input.Description = &desired.Description
		}
		if desired.KmsKeyID != "" {
			input.KmsKeyId = &desired.KmsKeyID
		}
		if _, err := p.secretsmanagerClient.UpdateSecret(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to update secret: %w", err)
		}
	}

	state.ID = state.ARN

	// Deletion behavior travels with the record.
	state.RecoveryWindowDays = desired.RecoveryWindowDays
	state.ForceDeleteWithoutRecovery = desired.ForceDeleteWithoutRecovery

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteSecret(ctx context.Context, req *provider.DeleteRequest) error {
	var prior SecretState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ARN == "" {
		return nil
	}

	input := &secretsmanager.DeleteSecretInput{
		SecretId: &prior.ARN,
	}
	if prior.ForceDeleteWithoutRecovery {
		input.ForceDeleteWithoutRecovery = boolPtr(true)
	} else if prior.RecoveryWindowDays != nil {
		input.RecoveryWindowInDays = func(i int64) *int64 { return &i }(int64(*prior.RecoveryWindowDays))
	}

	if _, err := p.secretsmanagerClient.DeleteSecret(ctx, input); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

func (p *Provider) readSecret(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var prior SecretState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	resp, err := p.secretsmanagerClient.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: &prior.ARN,
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe secret: %w", err)
	}
	// A secret scheduled for deletion no longer counts as managed.
	if resp.DeletedDate != nil {
		return &provider.ReadResponse{Exists: false}, nil
	}

	state := SecretState{
		ID:                         derefStr(resp.ARN),
		ARN:                        derefStr(resp.ARN),
		Name:                       derefStr(resp.Name),
		RecoveryWindowDays:         prior.RecoveryWindowDays,
		ForceDeleteWithoutRecovery: prior.ForceDeleteWithoutRecovery,
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, OutputsJSON: encoded}, nil
}

func secretTags(tags map[string]string) []types.Tag {
	var out []types.Tag
	for _, k := range sortedKeysOf(tags) {
		out = append(out, types.Tag{
			Key:   strPtr(k),
			Value: strPtr(tags[k]),
		})
	}
	return out
}

// Secret Version

type SecretVersionConfig struct {
	SecretID     string `json:"secret_id"`
	SecretString string `json:"secret_string"`
}

type SecretVersionState struct {
	ARN       string `json:"arn"`
	SecretID  string `json:"secret_id"`
	VersionID string `json:"version_id"`
}

func (p *Provider) applySecretVersion(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired SecretVersionConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	resp, err := p.secretsmanagerClient.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     &desired.SecretID,
		SecretString: &desired.SecretString,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put secret value: %w", err)
	}

	state := SecretVersionState{
		ARN:       derefStr(resp.ARN),
		SecretID:  desired.SecretID,
		VersionID: derefStr(resp.VersionId),
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}
