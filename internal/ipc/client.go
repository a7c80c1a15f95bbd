package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start its background work.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop its background work.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// FeedList returns feeds of the given kind ("local", "followed" or "").
func (c *Client) FeedList(kind string) (*FeedListResponse, error) {
	return call[FeedListResponse](c, "FeedList", FeedListRequest{Kind: kind})
}

// FeedShow returns one feed with its articles.
func (c *Client) FeedShow(id string) (*FeedShowResponse, error) {
	return call[FeedShowResponse](c, "FeedShow", FeedShowRequest{ID: id})
}

// FeedCreate creates a local feed.
func (c *Client) FeedCreate(name, about string) (*FeedResponse, error) {
	return call[FeedResponse](c, "FeedCreate", FeedCreateRequest{Name: name, About: about})
}

// FeedDelete removes a local feed or unfollows a followed one.
func (c *Client) FeedDelete(id string) (*AckResponse, error) {
	return call[AckResponse](c, "FeedDelete", FeedIDRequest{ID: id})
}

// Follow starts following the feed published under address.
func (c *Client) Follow(address string) (*FeedResponse, error) {
	return call[FeedResponse](c, "Follow", FollowRequest{Address: address})
}

// Unfollow stops following a feed.
func (c *Client) Unfollow(id string) (*AckResponse, error) {
	return call[AckResponse](c, "Unfollow", FeedIDRequest{ID: id})
}

// Publish publishes one local feed and waits for the result.
func (c *Client) Publish(id string) (*AckResponse, error) {
	return call[AckResponse](c, "Publish", FeedIDRequest{ID: id})
}

// Update refreshes one followed feed and waits for the result.
func (c *Client) Update(id string) (*AckResponse, error) {
	return call[AckResponse](c, "Update", FeedIDRequest{ID: id})
}

// PublishAll runs a publish pass over every local feed.
func (c *Client) PublishAll() (*PassResponse, error) {
	return call[PassResponse](c, "PublishAll", PassRequest{})
}

// UpdateAll runs an update pass over every followed feed.
func (c *Client) UpdateAll() (*PassResponse, error) {
	return call[PassResponse](c, "UpdateAll", PassRequest{})
}

// ArticleAdd adds an article to a local feed.
func (c *Client) ArticleAdd(feedID, title, content string) (*ArticleResponse, error) {
	return call[ArticleResponse](c, "ArticleAdd", ArticleAddRequest{FeedID: feedID, Title: title, Content: content})
}

// ArticleURL resolves where an article can be read.
func (c *Client) ArticleURL(feedID, articleID string) (*ArticleURLResponse, error) {
	return call[ArticleURLResponse](c, "ArticleURL", ArticleURLRequest{FeedID: feedID, ArticleID: articleID})
}

// NodeStart enables and launches the content daemon.
func (c *Client) NodeStart() (*AckResponse, error) {
	return call[AckResponse](c, "NodeStart", NodeRequest{})
}

// NodeStop disables and shuts down the content daemon.
func (c *Client) NodeStop() (*AckResponse, error) {
	return call[AckResponse](c, "NodeStop", NodeRequest{})
}

// Ports returns the configured and in-use ports.
func (c *Client) Ports() (*PortsResponse, error) {
	return call[PortsResponse](c, "Ports", PortsRequest{})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
