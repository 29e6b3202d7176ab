// Package kb queries the hosted knowledge-base retrieve-and-generate API
// and turns its raw citation spans into numbered, reconciled citations.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/citations"
	"github.com/Ammar793/realestate-backend/internal/metrics"
)

const defaultTopK = 6

const promptTemplate = "$output_format_instructions$\n" +
	"User question:\n$query$\n\n" +
	"Property context (not from KB):\n<context>\n%s\n</context>\n\n" +
	"Relevant excerpts from the knowledge base:\n$search_results$\n\n" +
	"Instructions:\n" +
	"- Cite specific SMC sections with [1], [2], etc.\n" +
	"- If information is missing, say so.\n" +
	"Final answer:"

// Config identifies the knowledge base and model to query.
type Config struct {
	Endpoint        string
	KnowledgeBaseID string
	ModelARN        string
	TopK            int
}

// Client calls the retrieve-and-generate endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// QueryResult is the caller-facing shape of a synchronous answer.
type QueryResult struct {
	Answer      string                        `json:"answer"`
	Citations   []citations.Citation          `json:"citations"`
	CitationMap map[string]citations.Citation `json:"citation_map"`
	Confidence  float64                       `json:"confidence"`
}

// NewClient builds a KB client. TopK <= 0 uses the default of 6.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Query runs one retrieve-and-generate round trip and reconciles the
// response into a cited answer.
func (c *Client) Query(ctx context.Context, question, contextText string) (*QueryResult, error) {
	resp, err := c.retrieveAndGenerate(ctx, question, contextText)
	if err != nil {
		return nil, err
	}

	answer := resp.Output.Text
	spans := spansFrom(resp)
	withCites, ordered := citations.InjectInline(answer, spans)

	if withCites == "" {
		withCites = fmt.Sprintf("I found relevant info for: %q, but no direct model output was returned.", question)
	}

	metrics.CitationsPerResponse.Observe(float64(len(ordered)))

	return &QueryResult{
		Answer:      withCites,
		Citations:   ordered,
		CitationMap: citations.CitationMap(ordered),
		Confidence:  citations.Confidence(len(ordered)),
	}, nil
}

func (c *Client) retrieveAndGenerate(ctx context.Context, question, contextText string) (*retrieveAndGenerateResponse, error) {
	var req retrieveAndGenerateRequest
	req.Input.Text = question
	kbc := &req.RetrieveAndGenerateConfiguration
	kbc.Type = "KNOWLEDGE_BASE"
	kbc.KnowledgeBaseConfiguration.KnowledgeBaseID = c.cfg.KnowledgeBaseID
	kbc.KnowledgeBaseConfiguration.ModelARN = c.cfg.ModelARN
	kbc.KnowledgeBaseConfiguration.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults = c.cfg.TopK
	kbc.KnowledgeBaseConfiguration.GenerationConfiguration.PromptTemplate.TextPromptTemplate = fmt.Sprintf(promptTemplate, contextText)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("knowledge base request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		c.logger.Warn("Knowledge base returned non-OK status",
			zap.Int("status", httpResp.StatusCode),
		)
		return nil, fmt.Errorf("knowledge base status %d", httpResp.StatusCode)
	}

	var out retrieveAndGenerateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// spansFrom maps wire citations to span records. Missing spans are dropped;
// absent metadata degrades to the package's Unknown values during
// reconciliation.
func spansFrom(resp *retrieveAndGenerateResponse) []citations.Span {
	var spans []citations.Span
	for _, wc := range resp.Citations {
		span := wc.GeneratedResponsePart.TextResponsePart.Span
		if span == nil {
			continue
		}
		s := citations.Span{End: span.End}
		for _, wr := range wc.RetrievedReferences {
			s.Refs = append(s.Refs, referenceFrom(wr))
		}
		if len(s.Refs) > 0 {
			spans = append(spans, s)
		}
	}
	return spans
}

func referenceFrom(wr wireReference) citations.RetrievedReference {
	ref := citations.RetrievedReference{Snippet: wr.Content.Text}
	if wr.Location.WebLocation != nil && wr.Location.WebLocation.URL != "" {
		ref.URI = wr.Location.WebLocation.URL
	} else if wr.Location.S3Location != nil {
		ref.URI = wr.Location.S3Location.URI
	}
	ref.Page = metaString(wr.Metadata, metaPageKey)
	ref.Chunk = metaString(wr.Metadata, metaChunkKey)
	return ref
}

// metaString stringifies a metadata value; pages arrive as JSON numbers.
func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
