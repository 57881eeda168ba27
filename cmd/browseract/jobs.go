package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/browseract/pkg/schema"
)

// readJobs loads the jobs of an apply batch. .json and .yaml files hold a
// list of job items; anything else is one URL per line with blank lines and
// # comments skipped.
func readJobs(path string) ([]schema.JobItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	var jobs []schema.JobItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &jobs)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &jobs)
	default:
		jobs, err = parseURLList(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse jobs %s: %w", path, err)
	}
	for i, j := range jobs {
		if strings.TrimSpace(j.URL) == "" {
			return nil, fmt.Errorf("parse jobs %s: job %d has no url", path, i+1)
		}
	}
	return jobs, nil
}

func parseURLList(data []byte) ([]schema.JobItem, error) {
	jobs := []schema.JobItem{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		jobs = append(jobs, schema.JobItem{URL: line})
	}
	return jobs, sc.Err()
}
