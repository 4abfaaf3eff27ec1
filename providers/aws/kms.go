package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/floehq/floe/internal/provider"
)

type KeyConfig struct {
	Description        string            `json:"description"`
	KeyUsage           string            `json:"key_usage"`
	KeySpec            string            `json:"key_spec"`
	EnableKeyRotation  bool              `json:"enable_key_rotation"`
	DeletionWindowDays *int32            `json:"deletion_window_in_days"`
	Tags               map[string]string `json:"tags"`
}

type KeyState struct {
	ID                 string `json:"id"`
	ARN                string `json:"arn"`
	DeletionWindowDays *int32 `json:"deletion_window_in_days,omitempty"`
}

func (p *Provider) applyKey(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired KeyConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var state KeyState
	if req.PriorJSON == nil {
		input := &kms.CreateKeyInput{
			Tags: kmsTags(desired.Tags),
		}
		if desired.Description != "" {
			input.Description = &desired.Description
		}
		if desired.KeyUsage != "" {
			input.KeyUsage = types.KeyUsageType(desired.KeyUsage)
		}
		if desired.KeySpec != "" {
			input.KeySpec = types.KeySpec(desired.KeySpec)
		}

		resp, err := p.kmsClient.CreateKey(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create key: %w", err)
		}
		state.ID = derefStr(resp.KeyMetadata.KeyId)
		state.ARN = derefStr(resp.KeyMetadata.Arn)

		if desired.EnableKeyRotation {
			_, err := p.kmsClient.EnableKeyRotation(ctx, &kms.EnableKeyRotationInput{KeyId: &state.ID})
			if err != nil {
				return nil, fmt.Errorf("failed to enable key rotation: %w", err)
			}
		}
	} else {
		var prior KeyState
		if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		state = prior

		_, err := p.kmsClient.UpdateKeyDescription(ctx, &kms.UpdateKeyDescriptionInput{
			KeyId:       &prior.ID,
			Description: &desired.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update key description: %w", err)
		}

		if desired.EnableKeyRotation {
			_, err = p.kmsClient.EnableKeyRotation(ctx, &kms.EnableKeyRotationInput{KeyId: &prior.ID})
		} else {
			_, err = p.kmsClient.DisableKeyRotation(ctx, &kms.DisableKeyRotationInput{KeyId: &prior.ID})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to change key rotation: %w", err)
		}
	}

	// Remember the window so delete honors it without the configuration.
	state.DeletionWindowDays = desired.DeletionWindowDays

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteKey(ctx context.Context, req *provider.DeleteRequest) error {
	var prior KeyState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}

	window := int32(7)
	if prior.DeletionWindowDays != nil {
		window = *prior.DeletionWindowDays
	}
	_, err := p.kmsClient.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               &prior.ID,
		PendingWindowInDays: &window,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule key deletion: %w", err)
	}
	return nil
}

func (p *Provider) readKey(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var prior KeyState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	resp, err := p.kmsClient.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: &prior.ID})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe key: %w", err)
	}
	// A key pending deletion is as good as gone for reconciliation.
	if resp.KeyMetadata.KeyState == types.KeyStatePendingDeletion {
		return &provider.ReadResponse{Exists: false}, nil
	}

	state := KeyState{
		ID:                 derefStr(resp.KeyMetadata.KeyId),
		ARN:                derefStr(resp.KeyMetadata.Arn),
		DeletionWindowDays: prior.DeletionWindowDays,
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, OutputsJSON: encoded}, nil
}

func kmsTags(tags map[string]string) []types.Tag {
	var out []types.Tag
	for _, k := range sortedKeysOf(tags) {
		out = append(out, types.Tag{
			TagKey:   strPtr(k),
			TagValue: strPtr(tags[k]),
		})
	}
	return out
}

// KMS Alias

type AliasConfig struct {
	Name        string `json:"name"`
	TargetKeyID string `json:"target_key_id"`
}

type AliasState struct {
	Name        string `json:"name"`
	TargetKeyID string `json:"target_key_id"`
}

func (p *Provider) applyAlias(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired AliasConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		_, err := p.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   &desired.Name,
			TargetKeyId: &desired.TargetKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create alias: %w", err)
		}
	} else {
		_, err := p.kmsClient.UpdateAlias(ctx, &kms.UpdateAliasInput{
			AliasName:   &desired.Name,
			TargetKeyId: &desired.TargetKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update alias: %w", err)
		}
	}

	state := AliasState{Name: desired.Name, TargetKeyID: desired.TargetKeyID}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteAlias(ctx context.Context, req *provider.DeleteRequest) error {
	var prior AliasState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Name == "" {
		return nil
	}
	_, err := p.kmsClient.DeleteAlias(ctx, &kms.DeleteAliasInput{
		AliasName: &prior.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return nil
}
