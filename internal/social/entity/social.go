package entity

import (
	msgentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/message/entity"
	userentity "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
)

// Follow is a directed edge: FollowerID follows FollowedID.
type Follow struct {
	FollowerID int64 `db:"follower_id" json:"follower_id"`
	FollowedID int64 `db:"followed_id" json:"followed_id"`
}

// Like records that UserID liked MessageID. At most one per pair.
type Like struct {
	UserID    int64 `db:"user_id" json:"user_id"`
	MessageID int64 `db:"message_id" json:"message_id"`
}

// Profile is a user together with the counts and relations a profile page
// shows. Following/FollowedBy are relative to the viewer and false for
// anonymous viewers.
type Profile struct {
	User           *userentity.User    `json:"user"`
	Messages       []msgentity.Message `json:"messages"`
	MessageCount   int                 `json:"message_count"`
	FollowerCount  int                 `json:"follower_count"`
	FollowingCount int                 `json:"following_count"`
	LikeCount      int                 `json:"like_count"`
	Following      bool                `json:"viewer_follows"`
	FollowedBy     bool                `json:"follows_viewer"`
}
