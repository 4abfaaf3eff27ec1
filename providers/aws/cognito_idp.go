package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/floehq/floe/internal/provider"
)

// Cognito Identity Provider (external SAML/OIDC/social federation)

type IdentityProviderConfig struct {
	UserPoolID       string            `json:"user_pool_id"`
	ProviderName     string            `json:"provider_name"`
	ProviderType     string            `json:"provider_type"`
	ProviderDetails  map[string]string `json:"provider_details"`
	AttributeMapping map[string]string `json:"attribute_mapping"`
	IdpIdentifiers   []string          `json:"idp_identifiers"`
}

type IdentityProviderState struct {
	UserPoolID   string `json:"user_pool_id"`
	ProviderName string `json:"provider_name"`
	ProviderType string `json:"provider_type"`
}

func (p *Provider) applyIdentityProvider(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired IdentityProviderConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		_, err := p.cognitoIdpClient.CreateIdentityProvider(ctx, &cognitoidentityprovider.CreateIdentityProviderInput{
			UserPoolId:       &desired.UserPoolID,
			ProviderName:     &desired.ProviderName,
			ProviderType:     types.IdentityProviderTypeType(desired.ProviderType),
			ProviderDetails:  desired.ProviderDetails,
			AttributeMapping: desired.AttributeMapping,
			IdpIdentifiers:   desired.IdpIdentifiers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create identity provider: %w", err)
		}
	} else {
		_, err := p.cognitoIdpClient.UpdateIdentityProvider(ctx, &cognitoidentityprovider.UpdateIdentityProviderInput{
			UserPoolId:       &desired.UserPoolID,
			ProviderName:     &desired.ProviderName,
			ProviderDetails:  desired.ProviderDetails,
			AttributeMapping: desired.AttributeMapping,
			IdpIdentifiers:   desired.IdpIdentifiers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update identity provider: %w", err)
		}
	}

	state := IdentityProviderState{
		UserPoolID:   desired.UserPoolID,
		ProviderName: desired.ProviderName,
		ProviderType: desired.ProviderType,
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteIdentityProvider(ctx context.Context, req *provider.DeleteRequest) error {
	var prior IdentityProviderState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ProviderName == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteIdentityProvider(ctx, &cognitoidentityprovider.DeleteIdentityProviderInput{
		UserPoolId:   &prior.UserPoolID,
		ProviderName: &prior.ProviderName,
	})
	if err != nil {
		return fmt.Errorf("failed to delete identity provider: %w", err)
	}
	return nil
}

// Cognito Resource Server

type ResourceServerConfig struct {
	UserPoolID string                   `json:"user_pool_id"`
	Identifier string                   `json:"identifier"`
	Name       string                   `json:"name"`
	Scopes     []ResourceServerScopeCfg `json:"scopes"`
}

type ResourceServerScopeCfg struct {
	ScopeName        string `json:"scope_name"`
	ScopeDescription string `json:"scope_description"`
}

type ResourceServerState struct {
	UserPoolID string   `json:"user_pool_id"`
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	ScopeNames []string `json:"scope_names"`
}

func (p *Provider) applyResourceServer(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ResourceServerConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	var scopes []types.ResourceServerScopeType
	for i := range desired.Scopes {
		scopes = append(scopes, types.ResourceServerScopeType{
			ScopeName:        &desired.Scopes[i].ScopeName,
			ScopeDescription: &desired.Scopes[i].ScopeDescription,
		})
	}

	if req.PriorJSON == nil {
		_, err := p.cognitoIdpClient.CreateResourceServer(ctx, &cognitoidentityprovider.CreateResourceServerInput{
			UserPoolId: &desired.UserPoolID,
			Identifier: &desired.Identifier,
			Name:       &desired.Name,
			Scopes:     scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resource server: %w", err)
		}
	} else {
		_, err := p.cognitoIdpClient.UpdateResourceServer(ctx, &cognitoidentityprovider.UpdateResourceServerInput{
			UserPoolId: &desired.UserPoolID,
			Identifier: &desired.Identifier,
			Name:       &desired.Name,
			Scopes:     scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update resource server: %w", err)
		}
	}

	state := ResourceServerState{
		UserPoolID: desired.UserPoolID,
		Identifier: desired.Identifier,
		Name:       desired.Name,
	}
	// Fully qualified scope names, usable directly in client scope lists.
	for _, s := range desired.Scopes {
		state.ScopeNames = append(state.ScopeNames, fmt.Sprintf("%s/%s", desired.Identifier, s.ScopeName))
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteResourceServer(ctx context.Context, req *provider.DeleteRequest) error {
	var prior ResourceServerState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Identifier == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteResourceServer(ctx, &cognitoidentityprovider.DeleteResourceServerInput{
		UserPoolId: &prior.UserPoolID,
		Identifier: &prior.Identifier,
	})
	if err != nil {
		return fmt.Errorf("failed to delete resource server: %w", err)
	}
	return nil
}
