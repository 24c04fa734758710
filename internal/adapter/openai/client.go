// Package openai implements the embedding provider contract against the
// OpenAI embeddings and batch APIs. Batch jobs carry the entity id as each
// line's custom_id; that id is the only way results are matched back.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"

	"vectorloom/internal/apperr"
	"vectorloom/internal/embedding"
)

const defaultBaseURL = "https://api.openai.com"

type Client struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	pool    *ants.Pool
}

// NewClient builds a provider for one OpenAI embedding model. The pool bounds
// concurrent direct-mode requests and may be shared across clients.
func NewClient(model, apiKey string, pool *ants.Pool) *Client {
	return &Client{
		model:   model,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		pool:    pool,
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) SupportsBatchProcessing() bool {
	return true
}

func (c *Client) checkCredentials() error {
	if c.apiKey == "" {
		return apperr.Validation("openai api key not configured")
	}
	return nil
}

// GenerateEmbeddings vectorizes every item with one request each. All
// requests are in flight together before any result is awaited.
func (c *Client) GenerateEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	results := make([]embedding.Result, len(items))
	errs := make([]error, len(items))

	embedding.FanOut(c.pool, len(items), func(i int) {
		vec, err := c.embed(ctx, items[i].Markdown)
		if err != nil {
			errs[i] = err
			return
		}
		results[i] = embedding.Result{
			EntityID:   items[i].EntityID,
			EntityType: items[i].EntityType,
			SchemaName: items[i].SchemaName,
			Embedding:  vec,
		}
	})

	for i, err := range errs {
		if err != nil {
			return nil, apperr.Provider(fmt.Sprintf("embedding item %s failed", items[i].EntityID), err)
		}
	}
	return results, nil
}

func (c *Client) embed(ctx context.Context, input string) ([]float32, error) {
	reqBody := map[string]any{
		"model":           c.model,
		"input":           input,
		"encoding_format": "float",
	}
	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/embeddings", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai embeddings api error: %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings api returned no data")
	}
	return result.Data[0].Embedding, nil
}

// GenerateBatchEmbeddings packages one JSONL line per item, submits a batch
// job and returns immediately with one placeholder result per item carrying
// the job id.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, items []embedding.Item) ([]embedding.Result, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	for _, item := range items {
		line := batchLine{
			CustomID: item.EntityID,
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body: batchLineBody{
				Model:          c.model,
				Input:          item.Markdown,
				EncodingFormat: "float",
			},
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode batch line for %s: %w", item.EntityID, err)
		}
	}

	fileID, err := c.uploadFile(ctx, payload.Bytes())
	if err != nil {
		return nil, apperr.Provider("upload batch input file", err)
	}

	batchID, err := c.createBatch(ctx, fileID)
	if err != nil {
		return nil, apperr.Provider("create batch job", err)
	}

	slog.InfoContext(ctx, "batch job submitted", "model", c.model, "batch_id", batchID, "items", len(items))

	results := make([]embedding.Result, len(items))
	for i, item := range items {
		results[i] = embedding.Result{
			EntityID:   item.EntityID,
			EntityType: item.EntityType,
			SchemaName: item.SchemaName,
			BatchID:    batchID,
		}
	}
	return results, nil
}

type batchLine struct {
	CustomID string        `json:"custom_id"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Body     batchLineBody `json:"body"`
}

type batchLineBody struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
}

func (c *Client) uploadFile(ctx context.Context, jsonl []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", "batch.jsonl")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai files api error: %d: %s", resp.StatusCode, body)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *Client) createBatch(ctx context.Context, inputFileID string) (string, error) {
	reqBody := map[string]any{
		"input_file_id":     inputFileID,
		"endpoint":          "/v1/embeddings",
		"completion_window": "24h",
	}
	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/batches", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai batches api error: %d: %s", resp.StatusCode, body)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// GetBatchEmbeddings polls a batch job. While the job runs it returns one
// placeholder per requested id and done=false. A terminally failed, expired
// or cancelled job is a ValidationError. A completed job's output file is
// parsed line by line and matched back by custom_id; ids that errored or are
// absent come back with a nil embedding.
func (c *Client) GetBatchEmbeddings(ctx context.Context, batchID string, itemIDs []string, schemaName, entityType string) ([]embedding.Result, bool, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, false, err
	}

	status, outputFileID, err := c.batchStatus(ctx, batchID)
	if err != nil {
		return nil, false, apperr.Provider("poll batch job", err)
	}

	switch status {
	case "validating", "in_progress", "finalizing", "cancelling":
		return placeholders(batchID, itemIDs, schemaName, entityType), false, nil
	case "failed", "expired", "cancelled":
		return nil, false, apperr.Validation("batch job %s terminated with status %q", batchID, status)
	case "completed":
		// fall through to download
	default:
		return nil, false, apperr.Provider(fmt.Sprintf("batch job %s has unknown status %q", batchID, status), nil)
	}

	if outputFileID == "" {
		return nil, false, apperr.Provider(fmt.Sprintf("batch job %s completed without an output file", batchID), nil)
	}

	vectors, err := c.downloadOutput(ctx, outputFileID)
	if err != nil {
		return nil, false, apperr.Provider("download batch output", err)
	}

	results := make([]embedding.Result, len(itemIDs))
	for i, id := range itemIDs {
		results[i] = embedding.Result{
			EntityID:   id,
			EntityType: entityType,
			SchemaName: schemaName,
			Embedding:  vectors[id],
			BatchID:    batchID,
		}
	}
	return results, true, nil
}

func placeholders(batchID string, itemIDs []string, schemaName, entityType string) []embedding.Result {
	results := make([]embedding.Result, len(itemIDs))
	for i, id := range itemIDs {
		results[i] = embedding.Result{
			EntityID:   id,
			EntityType: entityType,
			SchemaName: schemaName,
			BatchID:    batchID,
		}
	}
	return results
}

func (c *Client) batchStatus(ctx context.Context, batchID string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/batches/"+batchID, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("openai batches api error: %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Status       string `json:"status"`
		OutputFileID string `json:"output_file_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Status, result.OutputFileID, nil
}

func (c *Client) downloadOutput(ctx context.Context, fileID string) (map[string][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai files api error: %d: %s", resp.StatusCode, body)
	}

	vectors := make(map[string][]float32)

	scanner := bufio.NewScanner(resp.Body)
	// Output lines hold full vectors, far beyond the default scanner buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var out struct {
			CustomID string `json:"custom_id"`
			Response *struct {
				StatusCode int `json:"status_code"`
				Body       struct {
					Data []struct {
						Embedding []float32 `json:"embedding"`
					} `json:"data"`
				} `json:"body"`
			} `json:"response"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(line, &out); err != nil {
			slog.WarnContext(ctx, "skipping unparseable batch output line", "error", err)
			continue
		}

		if out.Error != nil {
			slog.WarnContext(ctx, "batch line failed", "custom_id", out.CustomID, "error", out.Error.Message)
			continue
		}
		if out.Response == nil || out.Response.StatusCode >= 300 || len(out.Response.Body.Data) == 0 {
			slog.WarnContext(ctx, "batch line has no embedding", "custom_id", out.CustomID)
			continue
		}

		vectors[out.CustomID] = out.Response.Body.Data[0].Embedding
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch output: %w", err)
	}

	return vectors, nil
}
