package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-authsessions/core"
)

func TestGetSessionQuery_QueryDelegates(t *testing.T) {
	expected := &core.Session{
		ID:          "sess_1",
		AccessToken: "tok_1",
		Account:     core.SessionAccount{ID: "acct_1", Label: "octocat"},
		Scopes:      []string{"repo"},
	}
	called := false
	reader := stubSessionReader{
		getSessionFn: func(_ context.Context, req core.GetSessionRequest) (*core.Session, error) {
			called = true
			if req.ProviderID != "github" || req.ExtensionID != "ext.copilot" {
				t.Fatalf("unexpected request: %#v", req)
			}
			return expected, nil
		},
	}

	qry := NewGetSessionQuery(reader)
	result, err := qry.Query(context.Background(), GetSessionMessage{Request: core.GetSessionRequest{
		ProviderID:  "github",
		Scopes:      []string{"repo"},
		ExtensionID: "ext.copilot",
	}})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if !called {
		t.Fatalf("expected session reader invocation")
	}
	if result == nil || result.ID != expected.ID {
		t.Fatalf("unexpected session result: %#v", result)
	}
}

func TestGetAccountsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubSessionReader{
		getAccountsFn: func(_ context.Context, providerID string) ([]core.SessionAccount, error) {
			called = true
			if providerID != "github" {
				t.Fatalf("unexpected provider id %q", providerID)
			}
			return []core.SessionAccount{{ID: "acct_1", Label: "octocat"}}, nil
		},
	}

	result, err := NewGetAccountsQuery(reader).Query(context.Background(), GetAccountsMessage{ProviderID: "github"})
	if err != nil {
		t.Fatalf("query accounts: %v", err)
	}
	if !called || len(result) != 1 || result[0].Label != "octocat" {
		t.Fatalf("expected account delegation, got %#v", result)
	}
}

func TestAccessAndUsageQueries_Delegate(t *testing.T) {
	calledAccess := false
	access := stubAccessReader{
		allowedFn: func(_ context.Context, providerID string, accountLabel string) ([]core.AccessEntry, error) {
			calledAccess = true
			if providerID != "github" || accountLabel != "octocat" {
				t.Fatalf("unexpected access target: %q %q", providerID, accountLabel)
			}
			return []core.AccessEntry{{ID: "ext.copilot", Name: "Copilot", Allowed: true}}, nil
		},
	}

	entries, err := NewListAllowedExtensionsQuery(access).Query(context.Background(), ListAllowedExtensionsMessage{
		ProviderID:   "github",
		AccountLabel: "octocat",
	})
	if err != nil {
		t.Fatalf("query allowed extensions: %v", err)
	}
	if !calledAccess || len(entries) != 1 || !entries[0].Allowed {
		t.Fatalf("expected access delegation, got %#v", entries)
	}

	calledUsage := false
	usage := stubUsageReader{
		readFn: func(_ context.Context, providerID string, accountLabel string) ([]core.UsageRecord, error) {
			calledUsage = true
			if providerID != "github" || accountLabel != "octocat" {
				t.Fatalf("unexpected usage target: %q %q", providerID, accountLabel)
			}
			return []core.UsageRecord{{ExtensionID: "ext.copilot", ExtensionName: "Copilot", LastUsed: 42}}, nil
		},
	}

	usages, err := NewListAccountUsagesQuery(usage).Query(context.Background(), ListAccountUsagesMessage{
		ProviderID:   "github",
		AccountLabel: "octocat",
	})
	if err != nil {
		t.Fatalf("query account usages: %v", err)
	}
	if !calledUsage || len(usages) != 1 || usages[0].LastUsed != 42 {
		t.Fatalf("expected usage delegation, got %#v", usages)
	}
}

func TestListInteractedProvidersQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubDynamicProviderReader{
		listFn: func(_ context.Context) ([]core.DynamicProviderInfo, error) {
			called = true
			return []core.DynamicProviderInfo{{
				ProviderID:          "dynamic-1a2b3c4d5e6f7a8b",
				Label:               "auth.example.com",
				AuthorizationServer: "https://auth.example.com",
				ClientID:            "client_1",
			}}, nil
		},
	}

	result, err := NewListInteractedProvidersQuery(reader).Query(context.Background(), ListInteractedProvidersMessage{})
	if err != nil {
		t.Fatalf("query interacted providers: %v", err)
	}
	if !called || len(result) != 1 || result[0].ClientID != "client_1" {
		t.Fatalf("expected dynamic provider delegation, got %#v", result)
	}
}

type stubSessionReader struct {
	getSessionFn  func(ctx context.Context, req core.GetSessionRequest) (*core.Session, error)
	getAccountsFn func(ctx context.Context, providerID string) ([]core.SessionAccount, error)
}

func (s stubSessionReader) GetSession(ctx context.Context, req core.GetSessionRequest) (*core.Session, error) {
	if s.getSessionFn == nil {
		return nil, fmt.Errorf("get session not configured")
	}
	return s.getSessionFn(ctx, req)
}

func (s stubSessionReader) GetAccounts(ctx context.Context, providerID string) ([]core.SessionAccount, error) {
	if s.getAccountsFn == nil {
		return nil, fmt.Errorf("get accounts not configured")
	}
	return s.getAccountsFn(ctx, providerID)
}

type stubAccessReader struct {
	allowedFn func(ctx context.Context, providerID string, accountLabel string) ([]core.AccessEntry, error)
}

func (s stubAccessReader) AllowedExtensions(ctx context.Context, providerID string, accountLabel string) ([]core.AccessEntry, error) {
	if s.allowedFn == nil {
		return nil, fmt.Errorf("allowed extensions not configured")
	}
	return s.allowedFn(ctx, providerID, accountLabel)
}

type stubUsageReader struct {
	readFn func(ctx context.Context, providerID string, accountLabel string) ([]core.UsageRecord, error)
}

func (s stubUsageReader) ReadAccountUsages(ctx context.Context, providerID string, accountLabel string) ([]core.UsageRecord, error) {
	if s.readFn == nil {
		return nil, fmt.Errorf("read account usages not configured")
	}
	return s.readFn(ctx, providerID, accountLabel)
}

type stubDynamicProviderReader struct {
	listFn func(ctx context.Context) ([]core.DynamicProviderInfo, error)
}

func (s stubDynamicProviderReader) InteractedProviders(ctx context.Context) ([]core.DynamicProviderInfo, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("interacted providers not configured")
	}
	return s.listFn(ctx)
}
