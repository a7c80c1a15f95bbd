package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"planet/internal/api"
	"planet/internal/daemon"
	"planet/internal/feeds"
	"planet/internal/logging"
	"planet/internal/logs"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Planet"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun planet stop"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.AlreadyRunning = errors.Is(err, daemon.ErrAlreadyRunning)
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) FeedList(req FeedListRequest, resp *FeedListResponse) error {
	items, err := s.daemon.Feeds().List(s.ctx, feeds.ParseKind(req.Kind))
	if err != nil {
		return err
	}
	resp.Feeds = items
	return nil
}

func (s *service) FeedShow(req FeedShowRequest, resp *FeedShowResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("feed id is required")
	}
	detail, err := s.daemon.Feeds().Describe(s.ctx, id)
	if err != nil {
		return err
	}
	if detail == nil {
		return nil
	}
	resp.Found = true
	resp.Feed = detail.Feed
	resp.Articles = detail.Articles
	return nil
}

func (s *service) FeedCreate(req FeedCreateRequest, resp *FeedResponse) error {
	feed, err := s.daemon.CreateFeed(s.ctx, req.Name, req.About)
	if err != nil {
		return err
	}
	resp.Feed = api.FromFeed(feed)
	s.log().Info("feed created via IPC",
		logging.String(logging.FieldEventType, "feed_created"),
		logging.FeedID(feed.ID))
	return nil
}

func (s *service) FeedDelete(req FeedIDRequest, resp *AckResponse) error {
	if err := s.daemon.DeleteFeed(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	s.log().Info("feed deleted via IPC",
		logging.String(logging.FieldEventType, "feed_deleted"),
		logging.FeedID(req.ID))
	return nil
}

func (s *service) Follow(req FollowRequest, resp *FeedResponse) error {
	feed, err := s.daemon.Follow(s.ctx, req.Address)
	if err != nil {
		return err
	}
	resp.Feed = api.FromFeed(feed)
	return nil
}

func (s *service) Unfollow(req FeedIDRequest, resp *AckResponse) error {
	if err := s.daemon.Unfollow(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Publish(req FeedIDRequest, resp *AckResponse) error {
	if err := s.daemon.Publish(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Update(req FeedIDRequest, resp *AckResponse) error {
	if err := s.daemon.Update(s.ctx, req.ID); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) PublishAll(_ PassRequest, resp *PassResponse) error {
	n, err := s.daemon.PublishAll(s.ctx)
	resp.Feeds = n
	return err
}

func (s *service) UpdateAll(_ PassRequest, resp *PassResponse) error {
	n, err := s.daemon.UpdateAll(s.ctx)
	resp.Feeds = n
	return err
}

func (s *service) ArticleAdd(req ArticleAddRequest, resp *ArticleResponse) error {
	article, err := s.daemon.AddArticle(s.ctx, req.FeedID, req.Title, req.Content)
	if err != nil {
		return err
	}
	resp.Article = api.FromArticle(article, false)
	return nil
}

func (s *service) ArticleURL(req ArticleURLRequest, resp *ArticleURLResponse) error {
	url, err := s.daemon.ArticleURL(s.ctx, req.FeedID, req.ArticleID)
	if err != nil {
		return err
	}
	resp.URL = url
	return nil
}

func (s *service) NodeStart(_ NodeRequest, resp *AckResponse) error {
	if err := s.daemon.NodeStart(); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) NodeStop(_ NodeRequest, resp *AckResponse) error {
	s.daemon.NodeStop(s.ctx)
	resp.OK = true
	return nil
}

func (s *service) Ports(_ PortsRequest, resp *PortsResponse) error {
	desired, apiPort, gatewayPort := s.daemon.Ports()
	resp.DesiredAPI = desired.APIPort
	resp.DesiredGateway = desired.GatewayPort
	resp.SwarmPort = desired.SwarmPort
	resp.RepoPath = desired.RepoPath
	resp.BinaryPath = desired.BinaryPath
	resp.APIPort = apiPort
	resp.GatewayPort = gatewayPort
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	var logPath string
	switch strings.ToLower(strings.TrimSpace(req.Source)) {
	case "", "planet":
		logPath = s.daemon.LogPath()
	case "ipfs", "node":
		logPath = s.daemon.NodeLogPath()
	default:
		return fmt.Errorf("unknown log source %q", req.Source)
	}
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset:   req.Offset,
		Limit:    req.Limit,
		Follow:   req.Follow,
		Wait:     wait,
		Contains: req.Contains,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
