// Package automan is a client for the annotation project service that knows which topics
// of an uploaded bag can be extracted.
package automan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// ErrDuplicateTopic is returned when two requested candidates read the same topic.
var ErrDuplicateTopic = errors.New("candidates share a topic")

// Info locates the service and carries the caller's token.
type Info struct {
	Host string `json:"host"`
	JWT  string `json:"jwt"`
}

// Candidate is an extractable topic of a bag.
type Candidate struct {
	CandidateID int    `json:"candidate_id"`
	MsgType     string `json:"msg_type"`
	TopicName   string `json:"topic_name"`
}

// StatusError is returned for any non 2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	info       Info
	httpClient *http.Client
	logger     golog.Logger
}

// NewClient returns a client for info. A nil httpClient uses http.DefaultClient.
func NewClient(info Info, httpClient *http.Client, logger golog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		info:       info,
		httpClient: httpClient,
		logger:     logger,
	}
}

type candidatesResponse struct {
	Records []struct {
		CandidateID  int             `json:"candidate_id"`
		AnalyzedInfo json.RawMessage `json:"analyzed_info"`
	} `json:"records"`
}

type analyzedInfo struct {
	MsgType   string `json:"msg_type"`
	TopicName string `json:"topic_name"`
}

// Candidates lists every candidate known for the original bag, in service order.
func (c *Client) Candidates(ctx context.Context, projectID, originalID int) ([]Candidate, error) {
	path := fmt.Sprintf("/projects/%d/originals/%d/candidates/", projectID, originalID)
	var res candidatesResponse
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(res.Records))
	for _, record := range res.Records {
		info, err := decodeAnalyzedInfo(record.AnalyzedInfo)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid analyzed_info for candidate %d", record.CandidateID)
		}

		candidates = append(candidates, Candidate{
			CandidateID: record.CandidateID,
			MsgType:     info.MsgType,
			TopicName:   info.TopicName,
		})
	}

	c.logger.Debugw("fetched candidates", "project_id", projectID, "original_id", originalID, "count", len(candidates))
	return candidates, nil
}

// Resolve returns the candidates whose id is in wanted, in service order. Unknown ids are
// ignored. Two wanted candidates on the same topic are rejected with ErrDuplicateTopic.
func (c *Client) Resolve(ctx context.Context, projectID, originalID int, wanted []int) ([]Candidate, error) {
	all, err := c.Candidates(ctx, projectID, originalID)
	if err != nil {
		return nil, err
	}
	return Filter(all, wanted)
}

// Filter keeps the candidates whose id is in wanted, preserving their order.
func Filter(candidates []Candidate, wanted []int) ([]Candidate, error) {
	ids := make(map[int]struct{}, len(wanted))
	for _, id := range wanted {
		ids[id] = struct{}{}
	}

	var filtered []Candidate
	topics := make(map[string]int)
	for _, candidate := range candidates {
		if _, ok := ids[candidate.CandidateID]; !ok {
			continue
		}

		if other, ok := topics[candidate.TopicName]; ok {
			return nil, errors.Wrapf(ErrDuplicateTopic, "candidates %d and %d both read %s",
				other, candidate.CandidateID, candidate.TopicName)
		}
		topics[candidate.TopicName] = candidate.CandidateID
		filtered = append(filtered, candidate)
	}
	return filtered, nil
}

// decodeAnalyzedInfo accepts analyzed_info both as a JSON encoded string and as an object.
func decodeAnalyzedInfo(raw json.RawMessage) (analyzedInfo, error) {
	var info analyzedInfo
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return info, err
		}
		raw = json.RawMessage(s)
	}

	err := json.Unmarshal(raw, &info)
	return info, err
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	url := strings.TrimSuffix(c.info.Host, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "JWT "+c.info.JWT)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Wrapf(&StatusError{StatusCode: resp.StatusCode, Body: string(body)}, "GET %s", path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode response of GET %s", path)
	}
	return nil
}
