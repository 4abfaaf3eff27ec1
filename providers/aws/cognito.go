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

// Cognito User Pool

type UserPoolConfig struct {
	PoolName               string             `json:"pool_name"`
	PasswordPolicy         *PasswordPolicyCfg `json:"password_policy"`
	AllowUserSelfSignUp    bool               `json:"allow_user_self_sign_up"`
	AutoVerifiedAttributes []string           `json:"auto_verified_attributes"`
	UsernameAttributes     []string           `json:"username_attributes"`
	MfaConfiguration       string             `json:"mfa_configuration"`
	EmailConfiguration     *EmailConfigCfg    `json:"email_configuration"`
	SchemaAttributes       []SchemaAttrCfg    `json:"schema_attributes"`
	DeletionProtection     bool               `json:"deletion_protection"`
	AdvancedSecurityMode   string             `json:"advanced_security_mode"`
	LambdaConfig           *LambdaConfigCfg   `json:"lambda_config"`
	Tags                   map[string]string  `json:"tags"`
}

type PasswordPolicyCfg struct {
	MinimumLength                 int  `json:"minimum_length"`
	RequireUppercase              bool `json:"require_uppercase"`
	RequireLowercase              bool `json:"require_lowercase"`
	RequireNumbers                bool `json:"require_numbers"`
	RequireSymbols                bool `json:"require_symbols"`
	TemporaryPasswordValidityDays int  `json:"temporary_password_validity_days"`
}

type EmailConfigCfg struct {
	EmailSendingAccount string `json:"email_sending_account"`
	SourceArn           string `json:"source_arn"`
	ReplyToEmailAddress string `json:"reply_to_email_address"`
}

type SchemaAttrCfg struct {
	Name              string `json:"name"`
	AttributeDataType string `json:"attribute_data_type"`
	Required          bool   `json:"required"`
	Mutable           bool   `json:"mutable"`
}

type LambdaConfigCfg struct {
	PreTokenGeneration        string `json:"pre_token_generation"`
	PreTokenGenerationVersion string `json:"pre_token_generation_version"`
	PreSignUp                 string `json:"pre_sign_up"`
	PostConfirmation          string `json:"post_confirmation"`
}

type UserPoolState struct {
	ID       string `json:"id"`
	ARN      string `json:"arn"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

func (p *Provider) applyUserPool(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserPoolConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		return p.createUserPool(ctx, &desired)
	}

	var prior UserPoolState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	return p.updateUserPool(ctx, &desired, &prior)
}

func (p *Provider) createUserPool(ctx context.Context, desired *UserPoolConfig) (*provider.ApplyResponse, error) {
	input := &cognitoidentityprovider.CreateUserPoolInput{
		PoolName:               &desired.PoolName,
		AutoVerifiedAttributes: toVerifiedAttrs(desired.AutoVerifiedAttributes),
		MfaConfiguration:       types.UserPoolMfaType(desired.MfaConfiguration),
		UserPoolTags:           desired.Tags,
		Policies:               userPoolPolicies(desired.PasswordPolicy),
		EmailConfiguration:     emailConfiguration(desired.EmailConfiguration),
		Schema:                 schemaAttributes(desired.SchemaAttributes),
		LambdaConfig:           lambdaConfig(desired.LambdaConfig),
	}

	for _, a := range desired.UsernameAttributes {
		input.UsernameAttributes = append(input.UsernameAttributes, types.UsernameAttributeType(a))
	}
	if !desired.AllowUserSelfSignUp {
		input.AdminCreateUserConfig = &types.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: true,
		}
	}
	if desired.DeletionProtection {
		input.DeletionProtection = types.DeletionProtectionTypeActive
	}
	if desired.AdvancedSecurityMode != "" {
		input.UserPoolAddOns = &types.UserPoolAddOnsType{
			AdvancedSecurityMode: types.AdvancedSecurityModeType(desired.AdvancedSecurityMode),
		}
	}

	resp, err := p.cognitoIdpClient.CreateUserPool(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create user pool: %w", err)
	}

	return userPoolResponse(resp.UserPool)
}

func (p *Provider) updateUserPool(ctx context.Context, desired *UserPoolConfig, prior *UserPoolState) (*provider.ApplyResponse, error) {
	input := &cognitoidentityprovider.UpdateUserPoolInput{
		UserPoolId:             &prior.ID,
		AutoVerifiedAttributes: toVerifiedAttrs(desired.AutoVerifiedAttributes),
		MfaConfiguration:       types.UserPoolMfaType(desired.MfaConfiguration),
		UserPoolTags:           desired.Tags,
		Policies:               userPoolPolicies(desired.PasswordPolicy),
		EmailConfiguration:     emailConfiguration(desired.EmailConfiguration),
		LambdaConfig:           lambdaConfig(desired.LambdaConfig),
	}

	if !desired.AllowUserSelfSignUp {
		input.AdminCreateUserConfig = &types.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: true,
		}
	}
	if desired.DeletionProtection {
		input.DeletionProtection = types.DeletionProtectionTypeActive
	} else {
		input.DeletionProtection = types.DeletionProtectionTypeInactive
	}
	if desired.AdvancedSecurityMode != "" {
		input.UserPoolAddOns = &types.UserPoolAddOnsType{
			AdvancedSecurityMode: types.AdvancedSecurityModeType(desired.AdvancedSecurityMode),
		}
	}

	if _, err := p.cognitoIdpClient.UpdateUserPool(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to update user pool: %w", err)
	}

	desc, err := p.cognitoIdpClient.DescribeUserPool(ctx, &cognitoidentityprovider.DescribeUserPoolInput{
		UserPoolId: &prior.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe user pool after update: %w", err)
	}
	return userPoolResponse(desc.UserPool)
}

func (p *Provider) deleteUserPool(ctx context.Context, req *provider.DeleteRequest) error {
	var prior UserPoolState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.ID == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteUserPool(ctx, &cognitoidentityprovider.DeleteUserPoolInput{
		UserPoolId: &prior.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete user pool: %w", err)
	}
	return nil
}

func (p *Provider) readUserPool(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var prior UserPoolState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	desc, err := p.cognitoIdpClient.DescribeUserPool(ctx, &cognitoidentityprovider.DescribeUserPoolInput{
		UserPoolId: &prior.ID,
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return &provider.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to describe user pool: %w", err)
	}

	resp, err := userPoolResponse(desc.UserPool)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, OutputsJSON: resp.OutputsJSON}, nil
}

func userPoolResponse(pool *types.UserPoolType) (*provider.ApplyResponse, error) {
	state := UserPoolState{
		ID:   derefStr(pool.Id),
		ARN:  derefStr(pool.Arn),
		Name: derefStr(pool.Name),
	}
	if pool.Id != nil {
		state.Endpoint = fmt.Sprintf("cognito-idp.amazonaws.com/%s", *pool.Id)
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func userPoolPolicies(cfg *PasswordPolicyCfg) *types.UserPoolPolicyType {
	if cfg == nil {
		return nil
	}
	return &types.UserPoolPolicyType{
		PasswordPolicy: &types.PasswordPolicyType{
			MinimumLength:                 int32Ptr(int32(cfg.MinimumLength)),
			RequireUppercase:              cfg.RequireUppercase,
			RequireLowercase:              cfg.RequireLowercase,
			RequireNumbers:                cfg.RequireNumbers,
			RequireSymbols:                cfg.RequireSymbols,
			TemporaryPasswordValidityDays: int32(cfg.TemporaryPasswordValidityDays),
		},
	}
}

func emailConfiguration(cfg *EmailConfigCfg) *types.EmailConfigurationType {
	if cfg == nil {
		return nil
	}
	out := &types.EmailConfigurationType{
		EmailSendingAccount: types.EmailSendingAccountType(cfg.EmailSendingAccount),
	}
	if cfg.SourceArn != "" {
		out.SourceArn = &cfg.SourceArn
	}
	if cfg.ReplyToEmailAddress != "" {
		out.ReplyToEmailAddress = &cfg.ReplyToEmailAddress
	}
	return out
}

func schemaAttributes(attrs []SchemaAttrCfg) []types.SchemaAttributeType {
	var schema []types.SchemaAttributeType
	for _, a := range attrs {
		schema = append(schema, types.SchemaAttributeType{
			Name:              strPtr(a.Name),
			AttributeDataType: types.AttributeDataType(a.AttributeDataType),
			Required:          boolPtr(a.Required),
			Mutable:           boolPtr(a.Mutable),
		})
	}
	return schema
}

func lambdaConfig(cfg *LambdaConfigCfg) *types.LambdaConfigType {
	if cfg == nil {
		return nil
	}
	out := &types.LambdaConfigType{}
	if cfg.PreSignUp != "" {
		out.PreSignUp = &cfg.PreSignUp
	}
	if cfg.PostConfirmation != "" {
		out.PostConfirmation = &cfg.PostConfirmation
	}
	if cfg.PreTokenGeneration != "" {
		out.PreTokenGeneration = &cfg.PreTokenGeneration
		version := types.PreTokenGenerationLambdaVersionTypeV10
		if cfg.PreTokenGenerationVersion != "" {
			version = types.PreTokenGenerationLambdaVersionType(cfg.PreTokenGenerationVersion)
		}
		out.PreTokenGenerationConfig = &types.PreTokenGenerationVersionConfigType{
			LambdaArn:     &cfg.PreTokenGeneration,
			LambdaVersion: version,
		}
	}
	return out
}

func toVerifiedAttrs(attrs []string) []types.VerifiedAttributeType {
	var result []types.VerifiedAttributeType
	for _, a := range attrs {
		result = append(result, types.VerifiedAttributeType(a))
	}
	return result
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Cognito User Pool Domain

type UserPoolDomainConfig struct {
	Domain         string `json:"domain"`
	UserPoolID     string `json:"user_pool_id"`
	CertificateArn string `json:"certificate_arn"`
}

type UserPoolDomainState struct {
	Domain           string `json:"domain"`
	UserPoolID       string `json:"user_pool_id"`
	CloudFrontDomain string `json:"cloudfront_distribution"`
}

func (p *Provider) applyUserPoolDomain(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserPoolDomainConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	state := UserPoolDomainState{
		Domain:     desired.Domain,
		UserPoolID: desired.UserPoolID,
	}

	if req.PriorJSON == nil {
		input := &cognitoidentityprovider.CreateUserPoolDomainInput{
			Domain:     &desired.Domain,
			UserPoolId: &desired.UserPoolID,
		}
		if desired.CertificateArn != "" {
			input.CustomDomainConfig = &types.CustomDomainConfigType{
				CertificateArn: &desired.CertificateArn,
			}
		}
		resp, err := p.cognitoIdpClient.CreateUserPoolDomain(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create user pool domain: %w", err)
		}
		state.CloudFrontDomain = derefStr(resp.CloudFrontDomain)
	} else {
		// Only the custom certificate can change in place.
		input := &cognitoidentityprovider.UpdateUserPoolDomainInput{
			Domain:     &desired.Domain,
			UserPoolId: &desired.UserPoolID,
			CustomDomainConfig: &types.CustomDomainConfigType{
				CertificateArn: &desired.CertificateArn,
			},
		}
		resp, err := p.cognitoIdpClient.UpdateUserPoolDomain(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to update user pool domain: %w", err)
		}
		state.CloudFrontDomain = derefStr(resp.CloudFrontDomain)
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteUserPoolDomain(ctx context.Context, req *provider.DeleteRequest) error {
	var prior UserPoolDomainState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Domain == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteUserPoolDomain(ctx, &cognitoidentityprovider.DeleteUserPoolDomainInput{
		Domain:     &prior.Domain,
		UserPoolId: &prior.UserPoolID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete user pool domain: %w", err)
	}
	return nil
}
