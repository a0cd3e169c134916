package channel

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/events"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
)

var ErrInvalidOrExpiredChallenge = errors.New("invalid or expired challenge")

// FundingError carries the reason the node gave for not funding a channel.
type FundingError struct {
	Reason string
}

func (err FundingError) Error() string {
	return "channel funding failed: " + err.Reason
}

type Publisher interface {
	Publish(event *events.Event) int
}

type Config struct {
	Node     node.Node
	Registry *challenge.Registry
	Callback string
	// AdvertisedUri replaces the uri reported by the node when set.
	AdvertisedUri string
	// ConnectPeer makes sure the wallet is a peer before funding. Funding
	// is attempted even if that fails.
	ConnectPeer bool
	NodeTimeout time.Duration
	Events      Publisher
	Logger      Logger
}

// Service hands out channel requests and funds channels for redeemed ones.
type Service struct {
	node          node.Node
	registry      *challenge.Registry
	callback      string
	advertisedUri string
	connectPeer   bool
	nodeTimeout   time.Duration
	events        Publisher
	logger        Logger
}

func New(config *Config) *Service {
	service := &Service{
		node:          config.Node,
		registry:      config.Registry,
		callback:      config.Callback,
		advertisedUri: config.AdvertisedUri,
		connectPeer:   config.ConnectPeer,
		nodeTimeout:   config.NodeTimeout,
		events:        config.Events,
		logger:        config.Logger,
	}

	if service.nodeTimeout == 0 {
		service.nodeTimeout = 30 * time.Second
	}

	if service.logger == nil {
		service.logger = noopLogger{}
	}

	return service
}

// Offer issues a fresh k1 and describes how to reach the node.
func (s *Service) Offer(ctx context.Context) (*lnurl.ChannelRequestResponse, error) {
	uri := s.advertisedUri

	if uri == "" {
		nodeCtx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
		defer cancel()

		identity, err := s.node.GetIdentity(nodeCtx)
		if err != nil {
			return nil, errors.Errorf("Could not get node identity: %w", err)
		}

		uri = identity.Uri()
	}

	c, err := s.registry.Issue(ctx, lnurl.TagChannelRequest)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(events.New(events.ChallengeIssued, lnurl.TagChannelRequest))
	}

	return &lnurl.ChannelRequestResponse{
		Status:   lnurl.StatusOK,
		Tag:      lnurl.TagChannelRequest,
		Uri:      uri,
		K1:       c.Token,
		Callback: s.callback,
	}, nil
}

// Request is a redeemed channelRequest callback.
type Request struct {
	Token        string
	RemoteNodeId string
	// RemoteUri optionally tells where the wallet listens.
	RemoteUri string
	AmountSat int64
	Private   bool
}

// Handle consumes the token and funds the channel. The token is burnt
// before funding, so a failed funding can not be retried with it and the
// wallet has to fetch a new one.
func (s *Service) Handle(ctx context.Context, req *Request) (*node.FundingResult, error) {
	if _, err := s.registry.Consume(ctx, lnurl.TagChannelRequest, req.Token); err != nil {
		return nil, errors.Errorf("%w: %v", ErrInvalidOrExpiredChallenge, err)
	}

	if s.connectPeer {
		s.connect(ctx, req)
	}

	nodeCtx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
	defer cancel()

	result, err := s.node.FundChannel(nodeCtx, req.RemoteNodeId, req.AmountSat, !req.Private)
	if err != nil {
		fundings.WithLabelValues("failed").Inc()
		s.logger.Errorf("Could not fund channel with %v: %v", req.RemoteNodeId, err)

		if s.events != nil {
			s.events.Publish(events.New(events.ChannelFailed, req.RemoteNodeId))
		}

		return nil, FundingError{Reason: reason(err)}
	}

	fundings.WithLabelValues("ok").Inc()
	s.logger.Infof("Funded channel %v:%d with %v over %d sat",
		result.FundingTxid, result.OutputIndex, req.RemoteNodeId, req.AmountSat)

	if s.events != nil {
		s.events.Publish(events.New(events.ChannelFunded, result))
	}

	return result, nil
}

// connect is best effort. Its timeout is separate from the funding call.
func (s *Service) connect(ctx context.Context, req *Request) {
	ctx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
	defer cancel()

	peer := req.RemoteUri
	if peer == "" {
		peer = req.RemoteNodeId
	}

	if err := s.node.Connect(ctx, peer); err != nil {
		s.logger.Warnf("Could not connect to %v: %v", peer, err)
	}
}

func reason(err error) string {
	var rpcErr *node.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}

	return err.Error()
}
