package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/floehq/floe/internal/provider"
)

// Cognito User Group

type UserGroupConfig struct {
	UserPoolID  string `json:"user_pool_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Precedence  *int32 `json:"precedence"`
	RoleArn     string `json:"role_arn"`
}

type UserGroupState struct {
	UserPoolID string `json:"user_pool_id"`
	Name       string `json:"name"`
}

func (p *Provider) applyUserGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserGroupConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		input := &cognitoidentityprovider.CreateGroupInput{
			GroupName:  &desired.Name,
			UserPoolId: &desired.UserPoolID,
			Precedence: desired.Precedence,
		}
		if desired.Description != "" {
			input.Description = &desired.Description
		}
		if desired.RoleArn != "" {
			input.RoleArn = &desired.RoleArn
		}
		if _, err := p.cognitoIdpClient.CreateGroup(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to create user group: %w", err)
		}
	} else {
		input := &cognitoidentityprovider.UpdateGroupInput{
			GroupName:  &desired.Name,
			UserPoolId: &desired.UserPoolID,
			Precedence: desired.Precedence,
		}
		if desired.Description != "" {
			input.Description = &desired.Description
		}
		if desired.RoleArn != "" {
			input.RoleArn = &desired.RoleArn
		}
		if _, err := p.cognitoIdpClient.UpdateGroup(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to update user group: %w", err)
		}
	}

	state := UserGroupState{UserPoolID: desired.UserPoolID, Name: desired.Name}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) deleteUserGroup(ctx context.Context, req *provider.DeleteRequest) error {
	var prior UserGroupState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Name == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.DeleteGroup(ctx, &cognitoidentityprovider.DeleteGroupInput{
		GroupName:  &prior.Name,
		UserPoolId: &prior.UserPoolID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete user group: %w", err)
	}
	return nil
}

// Cognito User

type UserConfig struct {
	UserPoolID        string            `json:"user_pool_id"`
	Username          string            `json:"username"`
	Attributes        map[string]string `json:"attributes"`
	Groups            []string          `json:"groups"`
	MessageAction     string            `json:"message_action"`
	TemporaryPassword string            `json:"temporary_password"`
}

type UserState struct {
	UserPoolID string   `json:"user_pool_id"`
	Username   string   `json:"username"`
	Groups     []string `json:"groups"`
}

func (p *Provider) applyUser(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired UserConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired: %w", err)
	}

	if req.PriorJSON == nil {
		input := &cognitoidentityprovider.AdminCreateUserInput{
			UserPoolId:     &desired.UserPoolID,
			Username:       &desired.Username,
			UserAttributes: userAttributes(desired.Attributes),
		}
		if desired.MessageAction != "" {
			input.MessageAction = types.MessageActionType(desired.MessageAction)
		}
		if desired.TemporaryPassword != "" {
			input.TemporaryPassword = &desired.TemporaryPassword
		}
		if _, err := p.cognitoIdpClient.AdminCreateUser(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	} else if len(desired.Attributes) > 0 {
		_, err := p.cognitoIdpClient.AdminUpdateUserAttributes(ctx, &cognitoidentityprovider.AdminUpdateUserAttributesInput{
			UserPoolId:     &desired.UserPoolID,
			Username:       &desired.Username,
			UserAttributes: userAttributes(desired.Attributes),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update user attributes: %w", err)
		}
	}

	// Membership adds are idempotent; stale memberships are dropped on the
	// next update against the recorded list.
	var priorGroups []string
	if req.PriorJSON != nil {
		var prior UserState
		if err := json.Unmarshal(req.PriorJSON, &prior); err == nil {
			priorGroups = prior.Groups
		}
	}
	if err := p.syncUserGroups(ctx, &desired, priorGroups); err != nil {
		return nil, err
	}

	state := UserState{
		UserPoolID: desired.UserPoolID,
		Username:   desired.Username,
		Groups:     desired.Groups,
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) syncUserGroups(ctx context.Context, desired *UserConfig, priorGroups []string) error {
	want := make(map[string]bool, len(desired.Groups))
	for _, g := range desired.Groups {
		want[g] = true
	}

	for _, g := range sortedStrings(desired.Groups) {
		_, err := p.cognitoIdpClient.AdminAddUserToGroup(ctx, &cognitoidentityprovider.AdminAddUserToGroupInput{
			UserPoolId: &desired.UserPoolID,
			Username:   &desired.Username,
			GroupName:  strPtr(g),
		})
		if err != nil {
			return fmt.Errorf("failed to add user to group %s: %w", g, err)
		}
	}
	for _, g := range sortedStrings(priorGroups) {
		if want[g] {
			continue
		}
		_, err := p.cognitoIdpClient.AdminRemoveUserFromGroup(ctx, &cognitoidentityprovider.AdminRemoveUserFromGroupInput{
			UserPoolId: &desired.UserPoolID,
			Username:   &desired.Username,
			GroupName:  strPtr(g),
		})
		if err != nil {
			return fmt.Errorf("failed to remove user from group %s: %w", g, err)
		}
	}
	return nil
}

func (p *Provider) deleteUser(ctx context.Context, req *provider.DeleteRequest) error {
	var prior UserState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Username == "" {
		return nil
	}
	_, err := p.cognitoIdpClient.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: &prior.UserPoolID,
		Username:   &prior.Username,
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func userAttributes(attrs map[string]string) []types.AttributeType {
	var out []types.AttributeType
	for _, name := range sortedKeysOf(attrs) {
		out = append(out, types.AttributeType{
			Name:  strPtr(name),
			Value: strPtr(attrs[name]),
		})
	}
	return out
}

func sortedKeysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStrings(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
