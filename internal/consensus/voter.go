// Package consensus fuses multiple sources' claims about product attributes
// into one trusted value via weighted voting.
package consensus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pimworks/golden-cli/internal/model"
)

// Conflict reasons emitted by the voter.
const (
	ReasonNoVotes             = "no_votes"
	ReasonInsufficientSources = "insufficient_sources"
	ReasonCloseVote           = "close_vote"
)

var foldCaser = cases.Fold()

// Weight is the voting power one source contributes to one attribute value.
func Weight(v model.ConsensusVote) float64 {
	return v.TrustScore * v.SimilarityScore
}

// ValueKey canonicalizes a vote value for grouping. Strings are trimmed,
// NFKC-normalized and case-folded so that "Rouge " and "rouge" land in the
// same group; everything else is compared by its JSON serialization.
func ValueKey(value any) string {
	if s, ok := value.(string); ok {
		return foldCaser.String(norm.NFKC.String(strings.TrimSpace(s)))
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}

// Label renders a vote value for display.
func Label(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}

// Group is one candidate value with its agreeing votes.
type Group struct {
	Value  any
	Label  string
	Count  int
	Weight float64
	Votes  []model.ConsensusVote
}

// VoteResult is the outcome of one attribute's election.
type VoteResult struct {
	Attribute string
	// Winner is the top-weighted group, nil when there were no votes.
	Winner *Group
	// Ranking holds all groups sorted by descending weight; ties keep the
	// first-seen group ahead (the sort is stable over insertion order).
	Ranking []Group
	// MinVotes is informational metadata: groups below it still win, but
	// BelowFloor is set so callers can decide whether to honor the floor.
	MinVotes   int
	BelowFloor bool
	// Conflict is non-nil when the election did not converge cleanly.
	Conflict *model.ConflictRecord
}

// Options tunes the election.
type Options struct {
	// MinVotes is the advisory agreement floor, default 1.
	MinVotes int
	// ConflictThreshold is the minimum lead ratio (winner weight minus
	// runner-up weight, over winner weight) below which the attribute is
	// flagged as a close vote. Default 0.1.
	ConflictThreshold float64
}

func (o Options) withDefaults() Options {
	if o.MinVotes <= 0 {
		o.MinVotes = 1
	}
	if o.ConflictThreshold <= 0 {
		o.ConflictThreshold = 0.1
	}
	return o
}

// Vote groups the attribute's votes by normalized value, accumulates weight
// per group and elects the heaviest group. Weight is kept unrounded; display
// rounding is the caller's concern.
func Vote(attribute string, votes []model.ConsensusVote, opts Options) VoteResult {
	opts = opts.withDefaults()
	result := VoteResult{Attribute: attribute, MinVotes: opts.MinVotes}

	if len(votes) == 0 {
		result.Conflict = &model.ConflictRecord{
			AttributeName: attribute,
			Reason:        ReasonNoVotes,
			Values:        []model.ConsensusVote{},
		}
		return result
	}

	groups := groupVotes(votes)

	// Stable sort preserves insertion order between equal-weight groups, so
	// the first-seen group wins ties deterministically.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Weight > groups[j].Weight
	})
	result.Ranking = groups
	result.Winner = &groups[0]

	if result.Winner.Count < opts.MinVotes {
		result.BelowFloor = true
		result.Conflict = &model.ConflictRecord{
			AttributeName: attribute,
			Reason:        ReasonInsufficientSources,
			Values:        votes,
		}
		return result
	}

	if len(groups) > 1 {
		lead := result.Winner.Weight - groups[1].Weight
		ratio := 0.0
		if result.Winner.Weight > 0 {
			ratio = lead / result.Winner.Weight
		}
		if ratio < opts.ConflictThreshold {
			result.Conflict = &model.ConflictRecord{
				AttributeName: attribute,
				Reason:        ReasonCloseVote,
				Values:        votes,
			}
		}
	}

	return result
}

// groupVotes buckets votes by normalized value key, insertion-ordered.
func groupVotes(votes []model.ConsensusVote) []Group {
	index := make(map[string]int, len(votes))
	var groups []Group
	for _, v := range votes {
		key := ValueKey(v.Value)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Value: v.Value, Label: Label(v.Value)})
		}
		groups[i].Count++
		groups[i].Weight += Weight(v)
		groups[i].Votes = append(groups[i].Votes, v)
	}
	return groups
}

// WinnerProvenance builds the provenance record for an elected attribute.
// The first vote of the winning group is credited as the deciding source,
// with every other vote listed as an alternate.
func WinnerProvenance(result VoteResult, now time.Time) *model.Provenance {
	if result.Winner == nil || len(result.Winner.Votes) == 0 {
		return nil
	}
	lead := result.Winner.Votes[0]
	var alternates []model.ConsensusVote
	for _, g := range result.Ranking {
		for _, v := range g.Votes {
			if v.MatchID != lead.MatchID || v.SourceName != lead.SourceName {
				alternates = append(alternates, v)
			}
		}
	}
	return &model.Provenance{
		AttributeName:    result.Attribute,
		Value:            lead.Value,
		SourceID:         lead.SourceID,
		SourceName:       lead.SourceName,
		TrustScore:       lead.TrustScore,
		SimilarityScore:  lead.SimilarityScore,
		MatchID:          lead.MatchID,
		Weight:           Weight(lead),
		ResolvedAt:       now,
		Alternates:       alternates,
		ConflictDetected: result.Conflict != nil,
	}
}
