package curriculum

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrTopicNotFound  = errors.New("topic not found")
	ErrCourseNotFound = errors.New("course not found")
)

// Graph answers ordering queries over an immutable set of topics.
// It is safe for concurrent use without locking.
type Graph struct {
	topics  map[string]Topic
	courses map[string][]Topic // sorted by SequenceIndex
	index   map[string]int     // topic ID -> position in its course slice
}

// NewGraph indexes topics by course. Duplicate topic IDs, two topics sharing a
// sequence index within one course, and required prerequisites that are not
// earlier topics of the same course are rejected.
func NewGraph(topics []Topic) (*Graph, error) {
	g := &Graph{
		topics:  make(map[string]Topic, len(topics)),
		courses: make(map[string][]Topic),
		index:   make(map[string]int, len(topics)),
	}

	for _, t := range topics {
		if _, dup := g.topics[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		g.topics[t.ID] = t
		g.courses[t.CourseID] = append(g.courses[t.CourseID], t)
	}

	for courseID, list := range g.courses {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].SequenceIndex < list[j].SequenceIndex
		})
		for i, t := range list {
			if i > 0 && list[i-1].SequenceIndex == t.SequenceIndex {
				return nil, fmt.Errorf("course %q: topics %q and %q share sequence index %d",
					courseID, list[i-1].ID, t.ID, t.SequenceIndex)
			}
			g.index[t.ID] = i
		}
	}

	for _, t := range g.topics {
		for _, req := range t.Prerequisites.Required {
			p, ok := g.topics[req]
			if !ok {
				return nil, fmt.Errorf("topic %q: unknown prerequisite %q", t.ID, req)
			}
			if p.CourseID != t.CourseID {
				return nil, fmt.Errorf("topic %q: prerequisite %q belongs to another course", t.ID, req)
			}
			if p.SequenceIndex >= t.SequenceIndex {
				return nil, fmt.Errorf("topic %q: prerequisite %q does not come before it", t.ID, req)
			}
		}
	}

	return g, nil
}

// Topic returns a topic by ID.
func (g *Graph) Topic(id string) (Topic, error) {
	t, ok := g.topics[id]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return t, nil
}

// TopicsForCourse returns the course's topics ordered by SequenceIndex.
// The returned slice is a copy; callers may iterate it any number of times.
func (g *Graph) TopicsForCourse(courseID string) ([]Topic, error) {
	list, ok := g.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	return append([]Topic(nil), list...), nil
}

// FirstTopic returns the lowest-sequence topic of a course.
func (g *Graph) FirstTopic(courseID string) (Topic, error) {
	list, ok := g.courses[courseID]
	if !ok || len(list) == 0 {
		return Topic{}, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	return list[0], nil
}

// NextTopic returns the topic with the next-higher sequence index in the same
// course. ok is false when topicID is the last topic.
func (g *Graph) NextTopic(topicID string) (next Topic, ok bool, err error) {
	t, found := g.topics[topicID]
	if !found {
		return Topic{}, false, fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	list := g.courses[t.CourseID]
	i := g.index[topicID]
	if i+1 >= len(list) {
		return Topic{}, false, nil
	}
	return list[i+1], true, nil
}

// Courses returns all course IDs in lexical order.
func (g *Graph) Courses() []string {
	ids := make([]string, 0, len(g.courses))
	for id := range g.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
