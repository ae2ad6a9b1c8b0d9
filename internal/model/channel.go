package model

// Channel names the source a log arrived through.
const (
	ChannelPoll = "poll"
	ChannelPush = "push"
)
