package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	identitytypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"

	"github.com/floehq/floe/internal/provider"
)

// Cognito Identity Pool (federated identities)

type IdentityPoolConfig struct {
	IdentityPoolName               string                 `json:"identity_pool_name"`
	AllowUnauthenticatedIdentities bool                   `json:"allow_unauthenticated_identities"`
	CognitoIdentityProviders       []CognitoIdProviderCfg `json:"cognito_identity_providers"`
	Tags                           map[string]string      `json:"tags"`
}

type CognitoIdProviderCfg struct {
	ClientID             string `json:"client_id"`
	ProviderName         string `json:"provider_name"`
	ServerSideTokenCheck bool   `json:"server_side_token_check"`
}

type IdentityPoolState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) applyIdentityPool(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired IdentityPoolConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var state IdentityPoolState
	if req.PriorJSON == nil {
		input := &cognitoidentity.CreateIdentityPoolInput{
			IdentityPoolName:               &desired.IdentityPoolName,
			AllowUnauthenticatedIdentities: desired.AllowUnauthenticatedIdentities,
			IdentityPoolTags:               desired.Tags,
			CognitoIdentityProviders:       identityProviders(desired.CognitoIdentityProviders),
		}
		resp, err := p.cognitoIdentityClient.CreateIdentityPool(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create identity pool: %w", err)
		}
		state.ID = derefStr(resp.IdentityPoolId)
		state.Name = derefStr(resp.IdentityPoolName)
	} else {
		var prior IdentityPoolState
		if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		input := &cognitoidentity.UpdateIdentityPoolInput{
			IdentityPoolId:                 &prior.ID,
			IdentityPoolName:               &desired.IdentityPoolName,
			AllowUnauthenticatedIdentities: desired.AllowUnauthenticatedIdentities,
			IdentityPoolTags:               desired.Tags,
			CognitoIdentityProviders:       identityProviders(desired.CognitoIdentityProviders),
		}
		resp, err := p.cognitoIdentityClient.UpdateIdentityPool(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to update identity pool: %w", err)
		}
		state.ID = derefStr(resp.IdentityPoolId)
		state.Name = derefStr(resp.IdentityPoolName)
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func identityProviders(cfgs []CognitoIdProviderCfg) []identitytypes.CognitoIdentityProvider {
	var out []identitytypes.CognitoIdentityProvider
	for i := range cfgs {
		out = append(out, identitytypes.CognitoIdentityProvider{
			ClientId:             &cfgs[i].ClientID,
			ProviderName:         &cfgs[i].ProviderName,
			ServerSideTokenCheck: &cfgs[i].ServerSideTokenCheck,
		})
	}
	return out
}

func (p *Provider) deleteIdentityPool(ctx context.Context, req *provider.DeleteRequest) error {
	var prior IdentityPoolState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	_, err := p.cognitoIdentityClient.DeleteIdentityPool(ctx, &cognitoidentity.DeleteIdentityPoolInput{
		IdentityPoolId: &prior.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete identity pool: %w", err)
	}
	return nil
}

func (p *Provider) readIdentityPool(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var prior IdentityPoolState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	resp, err := p.cognitoIdentityClient.DescribeIdentityPool(ctx, &cognitoidentity.DescribeIdentityPoolInput{
		IdentityPoolId: &prior.ID,
	})
	if err != nil {
		var nf *identitytypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe identity pool: %w", err)
	}

	state := IdentityPoolState{
		ID:   derefStr(resp.IdentityPoolId),
		Name: derefStr(resp.IdentityPoolName),
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, OutputsJSON: encoded}, nil
}
