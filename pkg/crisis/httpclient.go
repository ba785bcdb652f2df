package crisis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mindcare/realtime/pkg/model"
)

// HTTPClassifier calls the platform's classifier service. The service owns
// the model; this client only carries the score request and decision back.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

type scoreResponse struct {
	Flagged      bool     `json:"flagged"`
	Block        bool     `json:"block"`
	Confidence   float64  `json:"confidence"`
	Category     string   `json:"category"`
	MatchedTerms []string `json:"matched_terms"`
}

func (c *HTTPClassifier) Score(ctx context.Context, msg *model.Message) (Decision, error) {
	body, err := json.Marshal(scoreRequest{RoomID: msg.RoomID, SenderID: msg.SenderID, Content: msg.Content})
	if err != nil {
		return Decision{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, err
	}
	return Decision{
		Flagged:      out.Flagged,
		Block:        out.Block,
		Confidence:   out.Confidence,
		Category:     out.Category,
		MatchedTerms: out.MatchedTerms,
	}, nil
}
