// ABOUTME: Microsoft Graph implementation of the identity Directory interface
// ABOUTME: Looks users up by mail/UPN or object id and adds them to the plan's group
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/harperreed/plansync/models"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
)

var userSelect = []string{"id", "displayName", "mail", "userPrincipalName"}

// GraphDirectory resolves identities against the Graph users and groups endpoints.
type GraphDirectory struct {
	graph *GraphService
}

func NewGraphDirectory(graph *GraphService) *GraphDirectory {
	return &GraphDirectory{graph: graph}
}

func userToModel(u graphmodels.Userable) *models.ExternalIdentity {
	email := deref(u.GetMail())
	if email == "" {
		email = deref(u.GetUserPrincipalName())
	}
	return &models.ExternalIdentity{ID: deref(u.GetId()), DisplayName: deref(u.GetDisplayName()), Email: email}
}

func (d *GraphDirectory) FindUserByEmail(ctx context.Context, email string) (*models.ExternalIdentity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	quoted := strings.ReplaceAll(email, "'", "''")
	filter := fmt.Sprintf("mail eq '%s' or userPrincipalName eq '%s'", quoted, quoted)

	page, err := d.graph.client.Users().Get(ctx, &users.UsersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UsersRequestBuilderGetQueryParameters{Filter: &filter, Select: userSelect},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email %s: %w", email, asGraphError(err))
	}

	found := page.GetValue()
	if len(found) == 0 {
		return nil, nil
	}
	return userToModel(found[0]), nil
}

func (d *GraphDirectory) FindUserByID(ctx context.Context, id string) (*models.ExternalIdentity, error) {
	user, err := d.graph.client.Users().ByUserId(id).Get(ctx, &users.UserItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{Select: userSelect},
	})
	err = asGraphError(err)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", id, err)
	}

	return userToModel(user), nil
}

func (d *GraphDirectory) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	ref := graphmodels.NewReferenceCreate()
	odataID := d.graph.BaseURL() + "/directoryObjects/" + url.PathEscape(userID)
	ref.SetOdataId(&odataID)

	err := asGraphError(d.graph.client.Groups().ByGroupId(groupID).Members().Ref().Post(ctx, ref, nil))
	if err == nil {
		return nil
	}

	var gerr *GraphError
	if errors.As(err, &gerr) && gerr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(gerr.Message), "already exist") {
		return nil
	}

	return fmt.Errorf("failed to add user %s to group %s: %w", userID, groupID, err)
}
