package gateway

import (
	"context"
	"time"
)

// Credentials carry everything needed to open the real-time media connection
// for one channel.
type Credentials struct {
	AppID   string
	Channel string
	Token   string
}

type ChannelStatus string

const (
	ChannelStatusWaiting   ChannelStatus = "waiting"
	ChannelStatusActive    ChannelStatus = "active"
	ChannelStatusOngoing   ChannelStatus = "ongoing"
	ChannelStatusCompleted ChannelStatus = "completed"
)

type Channel struct {
	ChannelName string
	Status      ChannelStatus
	CreatedAt   *time.Time
	AnsweredAt  *time.Time
}

// Client is the boundary to the call gateway: channel credentials, the
// channel roster, channel termination, and the liveness probe.
type Client interface {
	StartCall(ctx context.Context) (Credentials, error)
	JoinCall(ctx context.Context, channelName string) (Credentials, error)
	EndCall(ctx context.Context, channelName string) error
	ListCalls(ctx context.Context) ([]Channel, error)
	Heartbeat(ctx context.Context, channelName string) (bool, error)
}
