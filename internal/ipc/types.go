package ipc

import "planet/internal/api"

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started        bool   `json:"started"`
	AlreadyRunning bool   `json:"alreadyRunning,omitempty"`
	Message        string `json:"message"`
}

// StopRequest stops the daemon's background work.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// Feed mirrors the HTTP API feed DTO for IPC callers.
type Feed = api.Feed

// Article mirrors the HTTP API article DTO for IPC callers.
type Article = api.Article

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// StatusResponse represents combined daemon and node status information.
type StatusResponse = api.DaemonStatus

// FeedListRequest filters feeds by kind ("local", "followed" or empty for all).
type FeedListRequest struct {
	Kind string `json:"kind"`
}

// FeedListResponse contains feed summaries.
type FeedListResponse struct {
	Feeds []Feed `json:"feeds"`
}

// FeedShowRequest fetches one feed with its articles.
type FeedShowRequest struct {
	ID string `json:"id"`
}

// FeedShowResponse carries the feed detail. Found is false for unknown ids.
type FeedShowResponse struct {
	Found    bool      `json:"found"`
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// FeedCreateRequest creates a local feed.
type FeedCreateRequest struct {
	Name  string `json:"name"`
	About string `json:"about"`
}

// FeedResponse returns a single created or followed feed.
type FeedResponse struct {
	Feed Feed `json:"feed"`
}

// FeedIDRequest addresses a feed by id.
type FeedIDRequest struct {
	ID string `json:"id"`
}

// FollowRequest follows a remote feed by IPNS address.
type FollowRequest struct {
	Address string `json:"address"`
}

// AckResponse acknowledges a command with no payload.
type AckResponse struct {
	OK bool `json:"ok"`
}

// PassRequest triggers a publish or update pass over all feeds.
type PassRequest struct{}

// PassResponse reports how many feeds a pass covered.
type PassResponse struct {
	Feeds int `json:"feeds"`
}

// ArticleAddRequest adds an article to a local feed.
type ArticleAddRequest struct {
	FeedID  string `json:"feed_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ArticleResponse returns a created article.
type ArticleResponse struct {
	Article Article `json:"article"`
}

// ArticleURLRequest resolves the readable location of an article.
type ArticleURLRequest struct {
	FeedID    string `json:"feed_id"`
	ArticleID string `json:"article_id"`
}

// ArticleURLResponse carries the resolved URL.
type ArticleURLResponse struct {
	URL string `json:"url"`
}

// NodeRequest starts or stops the supervised content daemon.
type NodeRequest struct{}

// PortsRequest fetches the negotiated ports.
type PortsRequest struct{}

// PortsResponse reports configured and in-use ports.
type PortsResponse struct {
	DesiredAPI     uint16 `json:"desired_api"`
	DesiredGateway uint16 `json:"desired_gateway"`
	SwarmPort      uint16 `json:"swarm_port"`
	APIPort        uint16 `json:"api_port"`
	GatewayPort    uint16 `json:"gateway_port"`
	RepoPath       string `json:"repo_path"`
	BinaryPath     string `json:"binary_path"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
// Source selects "planet" (default) or "ipfs" for the content daemon log.
type LogTailRequest struct {
	Source     string `json:"source"`
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Contains   string `json:"contains"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
