package model

import (
	"encoding/json"
	"fmt"
)

// OperationKind identifies a rate-limited operation class on the target
// platform. Each connected account gets one token bucket per kind.
type OperationKind string

const (
	OpProfileVisit OperationKind = "profile_visit"
	OpInvitation   OperationKind = "invitation"
	OpMessage      OperationKind = "message"
	OpPostComment  OperationKind = "post_comment"
	OpPostReaction OperationKind = "post_reaction"
)

// StepKind identifies one outreach action in a campaign's step sequence.
type StepKind string

const (
	StepVisitProfile    StepKind = "visit_profile"
	StepSendInvitation  StepKind = "send_invitation"
	StepCheckInvitation StepKind = "check_invitation"
	StepSendFollowup    StepKind = "send_followup"
	StepLikePosts       StepKind = "like_posts"
	StepCommentOnPosts  StepKind = "comment_on_posts"
)

type Step struct {
	Kind   StepKind          `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// Operation maps a step to the bucket its dispatch consumes from.
func (s Step) Operation() OperationKind {
	switch s.Kind {
	case StepVisitProfile:
		return OpProfileVisit
	case StepSendInvitation, StepCheckInvitation:
		return OpInvitation
	case StepSendFollowup:
		return OpMessage
	case StepLikePosts:
		return OpPostReaction
	case StepCommentOnPosts:
		return OpPostComment
	}
	return OpProfileVisit
}

// StepSequence is the ordered list of actions applied to every lead.
type StepSequence []Step

func ParseStepSequence(raw []byte) (StepSequence, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var steps StepSequence
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("invalid step sequence: %w", err)
	}
	return steps, nil
}
