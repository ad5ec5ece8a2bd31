package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load walks rootDir for topic YAML files and builds the curriculum graph.
func Load(rootDir string) (*Graph, error) {
	var topics []Topic

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		if strings.HasSuffix(path, ".assessments.yaml") || strings.HasSuffix(path, ".examples.yaml") {
			return nil // Skip non-topic YAML
		}

		topic, ok, err := loadTopic(path)
		if err != nil {
			return err
		}
		if ok {
			topics = append(topics, topic)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	g, err := NewGraph(topics)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "courses", len(g.courses), "topics", len(g.topics))
	return g, nil
}

func loadTopic(path string) (Topic, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topic{}, false, err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return Topic{}, false, nil
	}

	if topic.ID == "" {
		return Topic{}, false, nil // Not a topic file
	}

	if err := validateTopicYAML(data); err != nil {
		slog.Warn("skipping topic that fails schema", "path", path, "topic_id", topic.ID, "error", err)
		return Topic{}, false, nil
	}

	return topic, true, nil
}
