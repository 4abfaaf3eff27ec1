package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/floehq/floe/internal/provider"
)

// Cognito User Pool Client

type UserPoolClientConfig struct {
	ClientName                      string                 `json:"client_name"`
	UserPoolID                      string                 `json:"user_pool_id"`
	GenerateSecret                  bool                   `json:"generate_secret"`
	AllowedOauthFlows               []string               `json:"allowed_oauth_flows"`
	AllowedOauthScopes              []string               `json:"allowed_oauth_scopes"`
	AllowedOauthFlowsUserPoolClient bool                   `json:"allowed_oauth_flows_user_pool_client"`
	CallbackUrls                    []string               `json:"callback_urls"`
	LogoutUrls                      []string               `json:"logout_urls"`
	SupportedIdentityProviders      []string               `json:"supported_identity_providers"`
	AccessTokenValidity             *int32                 `json:"access_token_validity"`
	IdTokenValidity                 *int32                 `json:"id_token_validity"`
	RefreshTokenValidity            int32                  `json:"refresh_token_validity"`
	TokenValidityUnits              *TokenValidityUnitsCfg `json:"token_validity_units"`
	ExplicitAuthFlows               []string               `json:"explicit_auth_flows"`
	PreventUserExistenceErrors      bool                   `json:"prevent_user_existence_errors"`
}

type TokenValidityUnitsCfg struct {
	AccessToken  string `json:"access_token"`
	IdToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserPoolClientState struct {
	ID           string `json:"id"`
	UserPoolID   string `json:"user_pool_id"`
	Name         string `json:"name"`
	ClientSecret string `json:"client_secret,omitempty"`
}

func (p *Provider) applyUserPoolClient(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserPoolClientConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		return p.createUserPoolClient(ctx, &desired)
	}

	var prior UserPoolClientState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	return p.updateUserPoolClient(ctx, &desired, &prior)
}

func (p *Provider) createUserPoolClient(ctx context.Context, desired *UserPoolClientConfig) (*provider.ApplyResponse, error) {
	input := &cognitoidentityprovider.CreateUserPoolClientInput{
		ClientName:                      &desired.ClientName,
		UserPoolId:                      &desired.UserPoolID,
		GenerateSecret:                  desired.GenerateSecret,
		AllowedOAuthFlows:               toOAuthFlows(desired.AllowedOauthFlows),
		AllowedOAuthScopes:              desired.AllowedOauthScopes,
		AllowedOAuthFlowsUserPoolClient: desired.AllowedOauthFlowsUserPoolClient,
		CallbackURLs:                    desired.CallbackUrls,
		LogoutURLs:                      desired.LogoutUrls,
		SupportedIdentityProviders:      desired.SupportedIdentityProviders,
		AccessTokenValidity:             desired.AccessTokenValidity,
		IdTokenValidity:                 desired.IdTokenValidity,
		TokenValidityUnits:              toValidityUnits(desired.TokenValidityUnits),
		ExplicitAuthFlows:               toAuthFlows(desired.ExplicitAuthFlows),
	}
	if desired.RefreshTokenValidity > 0 {
		input.RefreshTokenValidity = desired.RefreshTokenValidity
	}
	if desired.PreventUserExistenceErrors {
		input.PreventUserExistenceErrors = types.PreventUserExistenceErrorTypesEnabled
	}

	resp, err := p.cognitoIdpClient.CreateUserPoolClient(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create user pool client: %w", err)
	}
	return userPoolClientResponse(resp.UserPoolClient, "")
}

func (p *Provider) updateUserPoolClient(ctx context.Context, desired *UserPoolClientConfig, prior *UserPoolClientState) (*provider.ApplyResponse, error) {
	input := &cognitoidentityprovider.UpdateUserPoolClientInput{
		ClientId:                        &prior.ID,
		UserPoolId:                      &desired.UserPoolID,
		ClientName:                      &desired.ClientName,
		AllowedOAuthFlows:               toOAuthFlows(desired.AllowedOauthFlows),
		AllowedOAuthScopes:              desired.AllowedOauthScopes,
		AllowedOAuthFlowsUserPoolClient: desired.AllowedOauthFlowsUserPoolClient,
		CallbackURLs:                    desired.CallbackUrls,
		LogoutURLs:                      desired.LogoutUrls,
		SupportedIdentityProviders:      desired.SupportedIdentityProviders,
		AccessTokenValidity:             desired.AccessTokenValidity,
		IdTokenValidity:                 desired.IdTokenValidity,
		TokenValidityUnits:              toValidityUnits(desired.TokenValidityUnits),
		ExplicitAuthFlows:               toAuthFlows(desired.ExplicitAuthFlows),
	}
	if desired.RefreshTokenValidity > 0 {
		input.RefreshTokenValidity = desired.RefreshTokenValidity
	}
	if desired.PreventUserExistenceErrors {
		input.PreventUserExistenceErrors = types.PreventUserExistenceErrorTypesEnabled
	}

	resp, err := p.cognitoIdpClient.UpdateUserPoolClient(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to update user pool client: %w", err)
	}

	// The update response does not echo the secret back, keep the recorded one.
	return userPoolClientResponse(resp.UserPoolClient, prior.ClientSecret)
}

func toOAuthFlows(flows []string) []types.OAuthFlowType {
	var out []types.OAuthFlowType
	for _, f := range flows {
		out = append(out, types.OAuthFlowType(f))
	}
	return out
}

func toAuthFlows(flows []string) []types.ExplicitAuthFlowsType {
	var out []types.ExplicitAuthFlowsType
	for _, f := range flows {
		out = append(out, types.ExplicitAuthFlowsType(f))
	}
	return out
}

func toValidityUnits(cfg *TokenValidityUnitsCfg) *types.TokenValidityUnitsType {
	if cfg == nil {
		return nil
	}
	return &types.TokenValidityUnitsType{
		AccessToken:  types.TimeUnitsType(cfg.AccessToken),
		IdToken:      types.TimeUnitsType(cfg.IdToken),
		RefreshToken: types.TimeUnitsType(cfg.RefreshToken),
	}
}

func userPoolClientResponse(client *types.UserPoolClientType, fallbackSecret string) (*provider.ApplyResponse, error) {
	state := UserPoolClientState{
		ID:           derefStr(client.ClientId),
		UserPoolID:   derefStr(client.UserPoolId),
		Name:         derefStr(client.ClientName),
		ClientSecret: derefStr(client.ClientSecret),
	}
	if state.ClientSecret == "" {
		state.ClientSecret = fallbackSecret
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteUserPoolClient(ctx context.Context, req *provider.DeleteRequest) error {
	var prior UserPoolClientState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteUserPoolClient(ctx, &cognitoidentityprovider.DeleteUserPoolClientInput{
		UserPoolId: &prior.UserPoolID,
		ClientId:   &prior.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete user pool client: %w", err)
	}
	return nil
}

func (p *Provider) readUserPoolClient(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var prior UserPoolClientState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	resp, err := p.cognitoIdpClient.DescribeUserPoolClient(ctx, &cognitoidentityprovider.DescribeUserPoolClientInput{
		UserPoolId: &prior.UserPoolID,
		ClientId:   &prior.ID,
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe user pool client: %w", err)
	}

	out, err := userPoolClientResponse(resp.UserPoolClient, prior.ClientSecret)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, OutputsJSON: out.OutputsJSON}, nil
}
