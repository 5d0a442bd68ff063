package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/contracts"
	"github.com/tzeusy/switchboard/internal/router"
)

// HTTPSink delivers the envelope to an external classification endpoint
// and decodes its response into a router.Decision. The classifier model
// itself is out of scope (spec.md section 1 Non-goals); this is only the
// port to it, following router.HTTPClient's plain encoding/json over
// net/http style rather than a generated SDK, since no LLM client
// package appears anywhere in the example pack.
type HTTPSink struct {
	client      *router.HTTPClient
	endpointURL string
}

func NewHTTPSink(client *router.HTTPClient, endpointURL string) *HTTPSink {
	return &HTTPSink{client: client, endpointURL: endpointURL}
}

type classifyResponse struct {
	Targets []struct {
		Butler        string  `json:"butler"`
		Prompt        string  `json:"prompt"`
		PromptVersion string  `json:"prompt_version"`
		Confidence    float64 `json:"confidence"`
	} `json:"targets"`
	FanoutMode  string `json:"fanout_mode"`
	JoinPolicy  string `json:"join_policy"`
	QuorumK     int    `json:"quorum_k"`
	AbortPolicy string `json:"abort_policy"`
	ThresholdK  int    `json:"threshold_k"`
}

func (s *HTTPSink) Classify(ctx context.Context, envelope contracts.IngressEnvelope) (router.Decision, error) {
	_, body, err := s.client.Deliver(ctx, envelope.Event.ExternalEventID, s.endpointURL, envelope)
	if err != nil {
		return router.Decision{}, err
	}

	var resp classifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return router.Decision{}, apperrors.NewDownstreamFailure(fmt.Sprintf("classifier returned unparseable response: %v", err), err)
	}
	if len(resp.Targets) == 0 {
		return router.Decision{}, apperrors.NewDownstreamFailure("classifier returned no targets", nil)
	}

	targets := make([]router.Target, len(resp.Targets))
	for i, t := range resp.Targets {
		targets[i] = router.Target{
			Butler:        t.Butler,
			Prompt:        t.Prompt,
			PromptVersion: t.PromptVersion,
			Confidence:    t.Confidence,
		}
	}

	return router.Decision{
		Targets:     targets,
		FanoutMode:  router.FanoutMode(resp.FanoutMode),
		JoinPolicy:  router.JoinPolicy(resp.JoinPolicy),
		QuorumK:     resp.QuorumK,
		AbortPolicy: router.AbortPolicy(resp.AbortPolicy),
		ThresholdK:  resp.ThresholdK,
		ParseSource: router.ParseSourceClassifier,
	}, nil
}
