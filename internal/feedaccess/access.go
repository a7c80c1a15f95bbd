// Package feedaccess reads feeds through the running daemon when it is
// reachable and straight from the database otherwise.
package feedaccess

import (
	"context"
	"fmt"

	"planet/internal/api"
	"planet/internal/feeds"
	"planet/internal/ipc"
)

// Access provides read-only feed views regardless of IPC or direct store backing.
type Access interface {
	List(ctx context.Context, kind string) ([]api.Feed, error)
	Describe(ctx context.Context, id string) (*api.FeedDetail, error)
	// Live reports whether answers come from a running daemon.
	Live() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct database reads. Publish
// and update activity is unknown without the daemon and reported as idle.
func NewStoreAccess(store *feeds.Store) Access {
	return &storeAccess{service: api.NewFeedService(store, nil)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) List(_ context.Context, kind string) ([]api.Feed, error) {
	resp, err := a.client.FeedList(kind)
	if err != nil {
		return nil, err
	}
	return resp.Feeds, nil
}

func (a *ipcAccess) Describe(_ context.Context, id string) (*api.FeedDetail, error) {
	resp, err := a.client.FeedShow(id)
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Found {
		return nil, nil
	}
	return &api.FeedDetail{Feed: resp.Feed, Articles: resp.Articles}, nil
}

func (a *ipcAccess) Live() bool { return true }

type storeAccess struct {
	service *api.FeedService
}

func (a *storeAccess) List(ctx context.Context, kind string) ([]api.Feed, error) {
	return a.service.List(ctx, feeds.ParseKind(kind))
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.FeedDetail, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Live() bool { return false }

// Session represents a feed access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct store access.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*feeds.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{Access: NewIPCAccess(client), close: client.Close}, nil
		}
	}
	if openStore == nil {
		return Session{}, fmt.Errorf("open feed store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open feed store: %w", err)
	}
	return Session{Access: NewStoreAccess(store), close: store.Close}, nil
}
