package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Feed describes a local or followed feed in a transport-friendly format.
type Feed struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	About         string `json:"about,omitempty"`
	Address       string `json:"address"`
	Local         bool   `json:"local"`
	Placeholder   bool   `json:"placeholder,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	LastPublished string `json:"lastPublished,omitempty"`
	LastUpdated   string `json:"lastUpdated,omitempty"`
	Articles      int    `json:"articles"`
	Unread        int    `json:"unread"`
	Publishing    bool   `json:"publishing,omitempty"`
	Updating      bool   `json:"updating,omitempty"`
}

// Article describes a single article. Content is only set in detail views.
type Article struct {
	ID        string `json:"id"`
	FeedID    string `json:"feedId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt,omitempty"`
	Read      bool   `json:"read"`
	Stub      bool   `json:"stub"`
	Content   string `json:"content,omitempty"`
}

// FeedDetail pairs a feed with its articles.
type FeedDetail struct {
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// BandwidthSample is one bandwidth observation.
type BandwidthSample struct {
	Time     int64   `json:"time"`
	TotalIn  int64   `json:"totalIn"`
	TotalOut int64   `json:"totalOut"`
	RateIn   float64 `json:"rateIn"`
	RateOut  float64 `json:"rateOut"`
}

// NodeHealth mirrors the most recent status poll.
type NodeHealth struct {
	Online       bool              `json:"online"`
	CheckedAt    string            `json:"checkedAt,omitempty"`
	PeerID       string            `json:"peerId,omitempty"`
	AgentVersion string            `json:"agentVersion,omitempty"`
	IPFSVersion  string            `json:"ipfsVersion,omitempty"`
	Peers        int               `json:"peers"`
	RepoSize     *int64            `json:"repoSize,omitempty"`
	RepoObjects  int64             `json:"repoObjects,omitempty"`
	Bandwidth    []BandwidthSample `json:"bandwidth,omitempty"`
}

// NodeStatus summarizes the supervised daemon.
type NodeStatus struct {
	State         string     `json:"state"`
	LaunchEnabled bool       `json:"launchEnabled"`
	PID           int        `json:"pid,omitempty"`
	APIPort       uint16     `json:"apiPort"`
	GatewayPort   uint16     `json:"gatewayPort"`
	SwarmPort     uint16     `json:"swarmPort"`
	LastError     string     `json:"lastError,omitempty"`
	ErrorKind     string     `json:"errorKind,omitempty"`
	Health        NodeHealth `json:"health"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	DatabasePath  string             `json:"databasePath"`
	LockFilePath  string             `json:"lockFilePath"`
	Node          NodeStatus         `json:"node"`
	LocalFeeds    int                `json:"localFeeds"`
	FollowedFeeds int                `json:"followedFeeds"`
	Publishing    []string           `json:"publishing,omitempty"`
	Updating      []string           `json:"updating,omitempty"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// FeedListResponse wraps a collection of feeds.
type FeedListResponse struct {
	Feeds []Feed `json:"feeds"`
}

// ArticleURLResponse carries a resolved article URL.
type ArticleURLResponse struct {
	URL string `json:"url"`
}
