package router

import "strings"

// Score contributions for a single rule match. An exact string match beats
// any combination of segment scores; among wildcard rules, literal segments
// outweigh single-level wildcards, which outweigh the multi-level catch-all.
const (
	scoreExact       = 1000
	scoreLiteral     = 10
	scoreSingleLevel = 5
	scoreMultiLevel  = 1
	scoreNoMatch     = -1
)

// matchScore rates how specifically filter matches topic. It returns
// scoreNoMatch when the filter does not match at all, including the case of
// a multi-level wildcard anywhere but the final segment.
func matchScore(filter, topic string) int {
	if filter == topic {
		return scoreExact
	}

	filterSegs := strings.Split(filter, "/")
	topicSegs := strings.Split(topic, "/")

	score := 0
	for i, seg := range filterSegs {
		switch seg {
		case "#":
			// Legal only as the last filter segment; swallows all
			// remaining topic levels, including none.
			if i != len(filterSegs)-1 {
				return scoreNoMatch
			}
			return score + scoreMultiLevel
		case "+":
			if i >= len(topicSegs) {
				return scoreNoMatch
			}
			score += scoreSingleLevel
		default:
			if i >= len(topicSegs) || topicSegs[i] != seg {
				return scoreNoMatch
			}
			score += scoreLiteral
		}
	}

	// Without a terminal '#' the filter must consume the whole topic.
	if len(topicSegs) != len(filterSegs) {
		return scoreNoMatch
	}
	return score
}
